package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundary_PreservesApplicationFailureThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := NonRetryable(KindSSHKeyNameConflict, "ssh key %q already exists", "metal-p1")
	wrapped := fmt.Errorf("stage ssh-key: %w", fmt.Errorf("register key: %w", inner))

	f := Boundary(wrapped)
	require.NotNil(t, f)
	assert.Same(t, inner, f)
	assert.Equal(t, KindSSHKeyNameConflict, f.Kind)
	assert.Equal(t, `ssh key "metal-p1" already exists`, f.Message)
	assert.False(t, f.Retryable)
}

func TestBoundary_HidesInternalErrorText(t *testing.T) {
	t.Parallel()

	cause := errors.New("clusterctl --token=secret failed")
	f := Boundary(fmt.Errorf("generate manifest: %w", cause))

	require.NotNil(t, f)
	assert.Equal(t, KindInternal, f.Kind)
	assert.NotContains(t, f.Error(), "secret")
	assert.True(t, f.Retryable)
	assert.ErrorIs(t, f, cause)
}

func TestBoundary_Canceled(t *testing.T) {
	t.Parallel()

	f := Boundary(fmt.Errorf("poll: %w", context.Canceled))
	require.NotNil(t, f)
	assert.Equal(t, KindCanceled, f.Kind)
	assert.True(t, f.Retryable)
}

func TestBoundary_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Boundary(nil))
}

func TestIsKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrap: %w", Timeout("control plane not ready after %s", "20m"))
	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(err, KindInternal))
	assert.False(t, IsKind(errors.New("plain"), KindTimeout))
}
