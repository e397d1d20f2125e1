package destroy

import (
	"context"

	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/workflow"
)

// ConfirmDestroyed moves a destroying cluster to destroyed once cluster-api
// has removed its Cluster object, which happens after every machine is
// gone. It reports whether the cluster is destroyed.
func ConfirmDestroyed(ctx context.Context, deps *provisioning.Deps, clusterID string) (bool, error) {
	done, err := confirmDestroyed(ctx, deps, clusterID)
	if err != nil {
		return false, workflow.Boundary(err)
	}
	return done, nil
}

func confirmDestroyed(ctx context.Context, deps *provisioning.Deps, clusterID string) (bool, error) {
	pctx := provisioning.NewContext(ctx, WorkflowConfirmDestroyed, deps)

	c, err := load(ctx, deps, clusterID)
	if err != nil {
		return false, err
	}
	switch c.Status {
	case model.StatusDestroyed:
		return true, nil
	case model.StatusDestroying:
	default:
		return false, workflow.NonRetryable(workflow.KindIllegalStatusTransition,
			"cluster %s is %s, not destroying", clusterID, c.Status)
	}
	pctx.WithCluster(c)

	obj, err := deps.Management.Get(pctx, kube.ClusterGVK, deps.Config.ManagementNamespace, c.Name)
	if err != nil {
		return false, err
	}
	if obj != nil {
		pctx.Log.V(1).Info("cluster-api Cluster still present")
		return false, nil
	}
	if err := setStatus(pctx, model.StatusDestroyed); err != nil {
		return false, err
	}
	pctx.Log.Info("cluster destroyed")
	return true, nil
}
