package provisioning

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/imamik/metal/internal/workflow"
)

// Poll checks cond every interval until it returns true, it returns an
// error, or timeout passes. Exceeding the timeout yields a retryable
// timeout failure naming what was awaited; the end of ctx yields a
// canceled failure.
func Poll(ctx context.Context, interval, timeout time.Duration, what string, cond func(context.Context) (bool, error)) error {
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, cond)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return canceled(ctxErr)
	}
	if wait.Interrupted(err) {
		return workflow.Timeout("timed out after %s waiting for %s", timeout, what)
	}
	return err
}

// Await polls cond at the configured interval.
func (c *Context) Await(what string, timeout time.Duration, cond func(*Context) (bool, error)) error {
	return Poll(c, c.Timeouts.PollInterval, timeout, what, func(context.Context) (bool, error) {
		return cond(c)
	})
}

func canceled(err error) error {
	return workflow.Canceled(err)
}
