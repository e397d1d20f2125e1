package project

import (
	"context"
	"fmt"

	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/workflow"
)

// Register adds the project workflows to e. Create expects a CreateInput,
// delete a project id string.
func Register(e *workflow.Engine, deps *provisioning.Deps) {
	e.Register(WorkflowCreate, func(ctx context.Context, input any) (any, error) {
		in, ok := input.(CreateInput)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected input %T", WorkflowCreate, input)
		}
		return CreateHetznerProject(ctx, deps, in)
	})
	e.Register(WorkflowDelete, func(ctx context.Context, input any) (any, error) {
		id, ok := input.(string)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected input %T", WorkflowDelete, input)
		}
		return nil, DeleteHetznerProject(ctx, deps, id)
	})
}
