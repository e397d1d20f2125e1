package testing

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// TestContext returns a context with a reasonable timeout for tests and a
// logger writing through t.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return log.IntoContext(ctx, testr.New(t))
}
