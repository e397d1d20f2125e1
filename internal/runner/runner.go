// Package runner executes external tools such as clusterctl and ssh-keygen.
//
// Every call is recorded as a span: a structured log line and an
// observation in the command duration histogram, both keyed by the span
// name the caller supplies. Command arguments are never logged or placed
// in error messages because they routinely carry credentials.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Command describes one process invocation.
type Command struct {
	// Span names the call in logs and metrics, e.g. "clusterctl-generate".
	Span string
	Name string
	Args []string
	// Env is appended to the current process environment.
	Env   []string
	Dir   string
	Stdin io.Reader
}

// Result is the captured outcome of a command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// CommandError is returned when a command cannot start or exits non-zero.
type CommandError struct {
	Span     string
	ExitCode int
	// Stderr is kept for operator diagnosis and never rendered by Error.
	Stderr []byte
	Err    error
}

func (e *CommandError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("command %s exited with status %d", e.Span, e.ExitCode)
	}
	return fmt.Sprintf("command %s failed: %v", e.Span, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by local processes.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run executes cmd and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	logger := log.FromContext(ctx).WithValues("span", cmd.Span)
	start := time.Now()

	// #nosec G204 -- binaries come from configuration, arguments are built internally
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if err != nil {
		observe(cmd.Span, resultFailed, res.Duration)
		cmdErr := &CommandError{Span: cmd.Span, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			cmdErr.ExitCode = -1
		}
		logger.Error(cmdErr, "Command failed", "duration", res.Duration, "stderr", tail(res.Stderr, 512))
		return res, cmdErr
	}

	observe(cmd.Span, resultSucceeded, res.Duration)
	logger.V(1).Info("Command completed", "duration", res.Duration)
	return res, nil
}

// tail returns at most n trailing bytes of b as a trimmed string.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
