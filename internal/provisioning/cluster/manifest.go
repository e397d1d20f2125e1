package cluster

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/runner"
	"github.com/imamik/metal/internal/util/naming"
)

// controlPlaneMachineCount is fixed; the control plane is not scaled.
const controlPlaneMachineCount = 1

// manifestStage renders the cluster-api manifest and persists it together
// with the clusterctl version as the audit record of what gets applied.
func (p *provision) manifestStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "manifest",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return ctx.Cluster.HasManifest(), nil
		},
		Do: func(ctx *provisioning.Context) error {
			template, err := fetch(ctx, ctx.Config.Templates.ClusterTemplateURL)
			if err != nil {
				return fmt.Errorf("failed to fetch cluster template: %w", err)
			}
			template, err = patchClusterTemplate(template, naming.CredentialsSecret(ctx.Cluster.TeamID))
			if err != nil {
				return err
			}

			version, err := clusterctlVersion(ctx)
			if err != nil {
				return err
			}
			manifest, err := generateManifest(ctx, template)
			if err != nil {
				return err
			}
			manifest, err = addNodeGroups(manifest, ctx.Cluster.Name, ctx.NodeGroups)
			if err != nil {
				return err
			}

			if err := ctx.Store.UpdateClusterManifest(ctx, ctx.Cluster.ID, string(manifest), version); err != nil {
				return fmt.Errorf("failed to persist manifest: %w", err)
			}
			ctx.Cluster.Manifest = string(manifest)
			ctx.Cluster.ClusterctlVersion = version
			ctx.Log.Info("manifest generated", "clusterctl", version, "bytes", len(manifest))

			archive(ctx, manifest, version)
			return nil
		},
	}
}

// archive uploads the manifest when an archive is configured. The row
// written above stays the authoritative record, so upload errors are
// only logged.
func archive(ctx *provisioning.Context, manifest []byte, version string) {
	if ctx.Archive == nil {
		return
	}
	key, err := ctx.Archive.Store(ctx, ctx.Cluster.ID, version, manifest)
	if err != nil {
		ctx.Log.Error(err, "failed to archive manifest")
		return
	}
	ctx.Log.V(1).Info("manifest archived", "key", key)
}

func fetch(ctx *provisioning.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := ctx.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func clusterctlVersion(ctx *provisioning.Context) (string, error) {
	res, err := ctx.Runner.Run(ctx, runner.Command{
		Span: "clusterctl-version",
		Name: ctx.Config.Tools.Clusterctl,
		Args: []string{"version", "-o", "short"},
	})
	if err != nil {
		return "", err
	}
	version := string(bytes.TrimSpace(res.Stdout))
	if version == "" {
		return "", fmt.Errorf("clusterctl reported an empty version")
	}
	return version, nil
}

// generateManifest renders the patched template with clusterctl. The first
// node group becomes the md-0 worker deployment.
func generateManifest(ctx *provisioning.Context, template []byte) ([]byte, error) {
	f, err := os.CreateTemp("", "metal-template-*.yaml")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(f.Name()) }()
	if _, err := f.Write(template); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	first := ctx.NodeGroups[0]
	res, err := ctx.Runner.Run(ctx, runner.Command{
		Span: "clusterctl-generate",
		Name: ctx.Config.Tools.Clusterctl,
		Args: []string{
			"generate", "cluster", ctx.Cluster.Name,
			"--from", f.Name(),
			"--kubernetes-version", kubernetesVersion(ctx),
			"--control-plane-machine-count", strconv.Itoa(controlPlaneMachineCount),
			"--worker-machine-count", strconv.Itoa(first.MaxNodes),
			"--target-namespace", managementNamespace(ctx),
		},
		Env: []string{
			"HCLOUD_SSH_KEY=" + ctx.Project.SSHKeyName,
			"HCLOUD_REGION=" + ctx.Cluster.Location,
			"HCLOUD_NETWORK_ZONE=" + ctx.Cluster.NetworkZone,
			"HCLOUD_CONTROL_PLANE_MACHINE_TYPE=" + first.InstanceType,
			"HCLOUD_WORKER_MACHINE_TYPE=" + first.InstanceType,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(res.Stdout)) == 0 {
		return nil, fmt.Errorf("clusterctl generated an empty manifest")
	}
	return res.Stdout, nil
}

func kubernetesVersion(ctx *provisioning.Context) string {
	if ctx.Cluster.KubernetesVersion != "" {
		return ctx.Cluster.KubernetesVersion
	}
	return ctx.Config.KubernetesVersion
}

// markInitializingStage records that the manifest exists and the control
// plane is being brought up.
func markInitializingStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "mark-initializing",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return ctx.Cluster.Status != model.StatusCreating, nil
		},
		Do: func(ctx *provisioning.Context) error {
			return setStatus(ctx, model.StatusInitializing)
		},
	}
}
