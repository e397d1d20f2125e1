package handlers

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/provisioning/cluster"
	"github.com/imamik/metal/internal/provisioning/destroy"
	"github.com/imamik/metal/internal/provisioning/project"
	"github.com/imamik/metal/internal/workflow"
)

// app is a workflow engine with every workflow registered.
type app struct {
	engine *workflow.Engine
	deps   *provisioning.Deps
	close  func()
}

// open loads the configuration and assembles an app. Callers must call
// app.close.
func open(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	deps, closeFn, err := newDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeFn == nil {
		closeFn = func() {}
	}

	engine := workflow.NewEngine(log.FromContext(ctx).WithName("workflow"))
	project.Register(engine, deps)
	cluster.Register(engine, deps)
	destroy.Register(engine, deps)
	return &app{engine: engine, deps: deps, close: closeFn}, nil
}

// run invokes a workflow and waits for its result. Interrupting the
// process cancels the run and waits for it to stop, so the store is
// never left mid-write.
func (a *app) run(ctx context.Context, name, id string, input any) (any, error) {
	future, err := a.engine.Invoke(ctx, name, id, input)
	if err != nil {
		return nil, err
	}
	result, fail := future.Wait(ctx)
	if ctx.Err() != nil {
		a.engine.Cancel(name, id)
		<-future.Done()
		return nil, fmt.Errorf("%s interrupted: %w", name, ctx.Err())
	}
	if fail != nil {
		// Partial results, such as the servers deleted before a failure,
		// are still reported.
		return result, fail
	}
	return result, nil
}
