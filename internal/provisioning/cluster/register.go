package cluster

import (
	"context"
	"fmt"

	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/workflow"
)

// Register adds the provisioning workflow to e. Its input is the cluster
// id.
func Register(e *workflow.Engine, deps *provisioning.Deps) {
	e.Register(WorkflowProvision, func(ctx context.Context, input any) (any, error) {
		id, ok := input.(string)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected input %T", WorkflowProvision, input)
		}
		return nil, ProvisionHetznerCluster(ctx, deps, id)
	})
}
