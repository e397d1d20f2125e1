package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/imamik/metal/internal/runner"
)

// FakeRunner answers commands by span name and records them.
type FakeRunner struct {
	// Handlers answer commands by span. Commands without a handler
	// succeed with empty output.
	Handlers map[string]func(cmd runner.Command) (*runner.Result, error)

	mu       sync.Mutex
	commands []runner.Command
}

var _ runner.Runner = (*FakeRunner)(nil)

// NewFakeRunner creates a runner without handlers.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Handlers: map[string]func(runner.Command) (*runner.Result, error){}}
}

// Run implements runner.Runner.
func (r *FakeRunner) Run(_ context.Context, cmd runner.Command) (*runner.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	h := r.Handlers[cmd.Span]
	r.mu.Unlock()
	if h == nil {
		return &runner.Result{}, nil
	}
	return h(cmd)
}

// Stdout registers a handler printing out for span.
func (r *FakeRunner) Stdout(span, out string) {
	r.Handlers[span] = func(runner.Command) (*runner.Result, error) {
		return &runner.Result{Stdout: []byte(out)}, nil
	}
}

// Fail registers a handler failing span with the given exit code.
func (r *FakeRunner) Fail(span string, exitCode int) {
	r.Handlers[span] = func(runner.Command) (*runner.Result, error) {
		return nil, &runner.CommandError{Span: span, ExitCode: exitCode, Err: fmt.Errorf("exit status %d", exitCode)}
	}
}

// Commands returns the recorded commands.
func (r *FakeRunner) Commands() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runner.Command(nil), r.commands...)
}

// Spans returns the span names of the recorded commands in order.
func (r *FakeRunner) Spans() []string {
	var spans []string
	for _, c := range r.Commands() {
		spans = append(spans, c.Span)
	}
	return spans
}
