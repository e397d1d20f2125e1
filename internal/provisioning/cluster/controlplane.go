package cluster

import (
	"fmt"

	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/util/naming"
)

// kubeconfigKey is where cluster-api stores the admin kubeconfig.
const kubeconfigKey = "value"

// applyManifestStage hands the persisted manifest to cluster-api.
func applyManifestStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "apply-manifest",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return exists(ctx, ctx.Management, kube.ClusterGVK, managementNamespace(ctx), ctx.Cluster.Name)
		},
		Do: func(ctx *provisioning.Context) error {
			if err := ctx.Management.ApplyManifests(ctx, []byte(ctx.Cluster.Manifest)); err != nil {
				return fmt.Errorf("failed to apply cluster manifest: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "apply-manifest", "Cluster", ctx.Cluster.Name)
			return nil
		},
	}
}

// controlPlaneStage waits until the control plane has its certificates and
// cluster-api published the kubeconfig, then persists the kubeconfig.
func controlPlaneStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "control-plane",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return ctx.Cluster.HasKubeconfig(), nil
		},
		Wait: func(ctx *provisioning.Context) error {
			var kubeconfig []byte
			err := ctx.Await("control plane", ctx.Timeouts.ControlPlane, func(ctx *provisioning.Context) (bool, error) {
				kcp, err := ctx.Management.Get(ctx, kube.KubeadmControlPlaneGVK, managementNamespace(ctx), naming.ControlPlane(ctx.Cluster.Name))
				if err != nil {
					return false, err
				}
				if !conditionTrue(kcp, "CertificatesAvailable") {
					return false, nil
				}
				secret, err := ctx.Management.GetSecret(ctx, managementNamespace(ctx), naming.KubeconfigSecret(ctx.Cluster.Name))
				if err != nil {
					return false, err
				}
				if secret == nil || len(secret.Data[kubeconfigKey]) == 0 {
					return false, nil
				}
				kubeconfig = secret.Data[kubeconfigKey]
				return true, nil
			})
			if err != nil {
				return err
			}
			if err := ctx.Store.UpdateClusterKubeconfig(ctx, ctx.Cluster.ID, string(kubeconfig)); err != nil {
				return fmt.Errorf("failed to persist kubeconfig: %w", err)
			}
			ctx.Cluster.Kubeconfig = string(kubeconfig)
			ctx.Log.Info("control plane is up, kubeconfig persisted")
			return nil
		},
	}
}

// apiServerStage waits for the tenant API server's readiness endpoint.
func apiServerStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "api-server",
		Wait: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			return ctx.Await("tenant API server", ctx.Timeouts.APIServer, func(ctx *provisioning.Context) (bool, error) {
				if err := t.Ready(ctx); err != nil {
					ctx.Log.V(1).Info("tenant API server not ready yet", "error", err.Error())
					return false, nil
				}
				return true, nil
			})
		},
	}
}

// finalizeStage persists the kubeconfig once more and marks the cluster
// running.
func finalizeStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "finalize",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return ctx.Cluster.Status == model.StatusRunning, nil
		},
		Do: func(ctx *provisioning.Context) error {
			if err := ctx.Store.UpdateClusterKubeconfig(ctx, ctx.Cluster.ID, ctx.Cluster.Kubeconfig); err != nil {
				return fmt.Errorf("failed to persist kubeconfig: %w", err)
			}
			return setStatus(ctx, model.StatusRunning)
		},
	}
}
