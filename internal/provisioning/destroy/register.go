package destroy

import (
	"context"
	"fmt"

	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/provisioning/cluster"
	"github.com/imamik/metal/internal/workflow"
)

// Register adds the deletion workflows to e. Each takes the cluster id as
// input. Deleting a cluster first cancels its in-flight provisioning and
// waits for it to stop.
func Register(e *workflow.Engine, deps *provisioning.Deps) {
	e.Register(WorkflowDelete, func(ctx context.Context, input any) (any, error) {
		id, err := clusterID(WorkflowDelete, input)
		if err != nil {
			return nil, err
		}
		if f, ok := e.Cancel(cluster.WorkflowProvision, id); ok {
			select {
			case <-f.Done():
			case <-ctx.Done():
				return nil, workflow.Canceled(ctx.Err())
			}
		}
		return nil, DeleteHetznerCluster(ctx, deps, id)
	})
	e.Register(WorkflowForceDeleteServers, func(ctx context.Context, input any) (any, error) {
		id, err := clusterID(WorkflowForceDeleteServers, input)
		if err != nil {
			return nil, err
		}
		return ForceDeleteServers(ctx, deps, id)
	})
	e.Register(WorkflowConfirmDestroyed, func(ctx context.Context, input any) (any, error) {
		id, err := clusterID(WorkflowConfirmDestroyed, input)
		if err != nil {
			return nil, err
		}
		return ConfirmDestroyed(ctx, deps, id)
	})
}

func clusterID(name string, input any) (string, error) {
	id, ok := input.(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected input %T", name, input)
	}
	return id, nil
}
