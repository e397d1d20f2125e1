package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Func is a registered workflow body.
type Func func(ctx context.Context, input any) (any, error)

// Future is the eventual result of an invocation.
type Future struct {
	id     string
	done   chan struct{}
	result any
	fail   *Failure
	cancel context.CancelFunc
}

// ID returns the invocation id.
func (f *Future) ID() string { return f.id }

// Done is closed once the workflow returned.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the workflow returns or ctx ends.
func (f *Future) Wait(ctx context.Context) (any, *Failure) {
	select {
	case <-f.done:
		return f.result, f.fail
	case <-ctx.Done():
		return nil, Canceled(ctx.Err())
	}
}

// Engine runs named workflows asynchronously. At most one invocation per
// id runs at a time; invoking a running id returns its existing Future.
type Engine struct {
	mu        sync.Mutex
	workflows map[string]Func
	running   map[string]*Future
	logger    logr.Logger
}

// NewEngine creates an engine that logs through logger.
func NewEngine(logger logr.Logger) *Engine {
	return &Engine{
		workflows: make(map[string]Func),
		running:   make(map[string]*Future),
		logger:    logger,
	}
}

// Register adds a workflow under name.
func (e *Engine) Register(name string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[name] = fn
}

// Invoke starts workflow name with input under the invocation id.
// The invocation outlives ctx's cancellation only through Cancel: ctx
// values are inherited, its deadline and cancellation are not.
func (e *Engine) Invoke(ctx context.Context, name, id string, input any) (*Future, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, ok := e.workflows[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", name)
	}
	key := name + "/" + id
	if f, ok := e.running[key]; ok {
		return f, nil
	}

	logger := e.logger.WithValues("workflow", name, "id", id)
	runCtx, cancel := context.WithCancel(log.IntoContext(context.WithoutCancel(ctx), logger))
	f := &Future{id: key, done: make(chan struct{}), cancel: cancel}
	e.running[key] = f

	go func() {
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.running, key)
			e.mu.Unlock()
			close(f.done)
		}()

		logger.Info("Workflow started")
		result, err := call(runCtx, fn, input)
		f.result, f.fail = result, Boundary(err)
		if f.fail != nil {
			logger.Error(f.fail.Unwrap(), "Workflow failed", "kind", f.fail.Kind, "retryable", f.fail.Retryable)
		} else {
			logger.Info("Workflow completed")
		}
	}()

	return f, nil
}

// call runs fn, turning a panic into an error so that it surfaces as an
// internal failure instead of taking the process down.
func call(ctx context.Context, fn Func, input any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("workflow panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, input)
}

// Running returns the in-flight invocation of name for id, if any.
func (e *Engine) Running(name, id string) (*Future, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.running[name+"/"+id]
	return f, ok
}

// Cancel cancels the in-flight invocation of name for id and returns its
// Future so callers can wait for it to stop. It returns false when nothing
// is running.
func (e *Engine) Cancel(name, id string) (*Future, bool) {
	f, ok := e.Running(name, id)
	if !ok {
		return nil, false
	}
	f.cancel()
	return f, true
}
