package destroy

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/provisioning/cluster"
	"github.com/imamik/metal/internal/store"
	"github.com/imamik/metal/internal/util/naming"
	"github.com/imamik/metal/internal/workflow"
)

// Engine names of the deletion workflows.
const (
	WorkflowDelete             = "delete-hetzner-cluster"
	WorkflowForceDeleteServers = "force-delete-hetzner-servers"
	WorkflowConfirmDestroyed   = "confirm-hetzner-cluster-destroyed"
)

// DeleteHetznerCluster issues the teardown of a provisioned cluster and
// marks it destroying. It may be invoked again; deletes of objects that are
// already gone succeed. The returned error is nil or a *workflow.Failure.
func DeleteHetznerCluster(ctx context.Context, deps *provisioning.Deps, clusterID string) error {
	if err := deleteCluster(ctx, deps, clusterID); err != nil {
		return workflow.Boundary(err)
	}
	return nil
}

func deleteCluster(ctx context.Context, deps *provisioning.Deps, clusterID string) error {
	pctx := provisioning.NewContext(ctx, WorkflowDelete, deps)

	c, err := load(ctx, deps, clusterID)
	if err != nil {
		return err
	}
	if !c.HasManifest() {
		return workflow.NonRetryable(workflow.KindClusterManifestMissing,
			"cluster %s was never provisioned, nothing to delete", clusterID)
	}
	pctx.WithCluster(c)

	stages := []provisioning.Stage{
		uninstallReleasesStage(),
		deleteManagementObjectStage("delete-cluster-api", kube.ClusterGVK, func(ctx *provisioning.Context) (string, string) {
			return ctx.Config.ManagementNamespace, ctx.Cluster.Name
		}),
		deleteManagementObjectStage("delete-dns", kube.DNSEndpointGVK, func(ctx *provisioning.Context) (string, string) {
			return ctx.Config.DNSNamespace, naming.DNSEndpoint(ctx.Cluster.Name)
		}),
		deleteManagementObjectStage("delete-certificate", kube.CertificateGVK, func(ctx *provisioning.Context) (string, string) {
			return ctx.Config.ManagementNamespace, naming.Certificate(ctx.Cluster.Name)
		}),
		deleteCertificateSecretStage(),
		markDestroyingStage(),
	}
	if err := provisioning.RunStages(pctx, stages); err != nil {
		return err
	}
	pctx.Log.Info("cluster teardown issued")
	return nil
}

func load(ctx context.Context, deps *provisioning.Deps, clusterID string) (*model.Cluster, error) {
	c, err := deps.Store.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, workflow.NonRetryable(workflow.KindClusterNotFound, "cluster %s not found", clusterID)
	}
	return c, nil
}

// uninstallReleasesStage removes the releases owning persistent volumes so
// the CSI driver deletes their cloud volumes while it still runs. A tenant
// whose API server does not answer is skipped: nothing can be released
// through it.
func uninstallReleasesStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "uninstall-releases",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return !ctx.Cluster.HasKubeconfig(), nil
		},
		Do: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				ctx.Log.Error(err, "tenant cluster unreachable, volumes are not released")
				return nil
			}
			if err := t.Ready(ctx); err != nil {
				ctx.Log.Error(err, "tenant API server not ready, volumes are not released")
				return nil
			}
			for _, r := range cluster.StatefulReleases {
				if err := t.Uninstall(ctx, r.Namespace, r.Name, ctx.Timeouts.Uninstall); err != nil {
					return fmt.Errorf("failed to uninstall %s/%s: %w", r.Namespace, r.Name, err)
				}
				provisioning.LogResourceDeleted(ctx.Observer, "uninstall-releases", "HelmRelease", r.Namespace+"/"+r.Name)
			}
			return nil
		},
	}
}

// deleteManagementObjectStage deletes one object from the management
// cluster. Failures are logged and do not stop the teardown.
func deleteManagementObjectStage(name string, gvk schema.GroupVersionKind, ref func(*provisioning.Context) (string, string)) provisioning.Stage {
	return provisioning.Step{
		StageName: name,
		Do: func(ctx *provisioning.Context) error {
			ns, objName := ref(ctx)
			provisioning.LogResourceDeleting(ctx.Observer, name, gvk.Kind, objName)
			if err := ctx.Management.Delete(ctx, gvk, ns, objName); err != nil {
				ctx.Log.Error(err, "delete failed", "kind", gvk.Kind, "namespace", ns, "name", objName)
				return nil
			}
			provisioning.LogResourceDeleted(ctx.Observer, name, gvk.Kind, objName)
			return nil
		},
	}
}

func deleteCertificateSecretStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "delete-certificate-secret",
		Do: func(ctx *provisioning.Context) error {
			name := naming.CertificateSecret(ctx.Cluster.Name)
			if err := ctx.Management.DeleteSecret(ctx, ctx.Config.ManagementNamespace, name); err != nil {
				ctx.Log.Error(err, "delete failed", "kind", "Secret", "name", name)
				return nil
			}
			provisioning.LogResourceDeleted(ctx.Observer, "delete-certificate-secret", "Secret", name)
			return nil
		},
	}
}

// markDestroyingStage leaves clusters in a terminal status alone: a failed
// cluster stays "error" and a destroyed one stays "destroyed".
func markDestroyingStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "mark-destroying",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return !ctx.Cluster.Status.CanTransitionTo(model.StatusDestroying), nil
		},
		Do: func(ctx *provisioning.Context) error {
			return setStatus(ctx, model.StatusDestroying)
		},
	}
}

func setStatus(ctx *provisioning.Context, status model.ClusterStatus) error {
	err := ctx.Store.UpdateClusterStatus(ctx, ctx.Cluster.ID, status)
	if errors.Is(err, store.ErrIllegalTransition) {
		return workflow.NonRetryable(workflow.KindIllegalStatusTransition,
			"cluster %s cannot move from %s to %s", ctx.Cluster.ID, ctx.Cluster.Status, status)
	}
	if err != nil {
		return err
	}
	ctx.Cluster.Status = status
	return nil
}
