// Package workflow defines the failure type every workflow entrypoint
// returns and the engine that invokes workflows asynchronously by id.
package workflow

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a short machine-readable failure code the API layer maps to a
// user-facing error.
type Kind string

const (
	KindUnauthorized            Kind = "unauthorized"
	KindSSHKeyNameConflict      Kind = "ssh_key_name_conflict"
	KindProjectIDConflict       Kind = "hetzner_project_id_conflict"
	KindProjectTeamConflict     Kind = "hetzner_project_team_conflict"
	KindProjectHasClusters      Kind = "hetzner_project_has_clusters"
	KindProjectNotFound         Kind = "hetzner_project_not_found"
	KindClusterNotFound         Kind = "hetzner_cluster_not_found"
	KindClusterManifestMissing  Kind = "hetzner_cluster_manifest_missing"
	KindClusterInvalid          Kind = "hetzner_cluster_invalid"
	KindIllegalStatusTransition Kind = "illegal_status_transition"
	KindInvalidInput            Kind = "invalid_input"
	KindTimeout                 Kind = "timeout"
	KindCanceled                Kind = "canceled"
	KindInternal                Kind = "internal"
)

// Failure is the result error of a workflow.
type Failure struct {
	Kind      Kind
	Message   string
	Retryable bool

	cause error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the cause for operator logs. It is never part of Error().
func (f *Failure) Unwrap() error { return f.cause }

// NonRetryable returns a deterministic application failure.
func NonRetryable(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Timeout returns the failure raised when a bounded wait never observed its
// condition. Re-invoking the workflow resumes past completed stages.
func Timeout(format string, args ...any) *Failure {
	return &Failure{Kind: KindTimeout, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// Canceled returns the failure raised when the invocation's context ends.
func Canceled(cause error) *Failure {
	return &Failure{Kind: KindCanceled, Message: "workflow canceled", Retryable: true, cause: cause}
}

// AsFailure finds a Failure anywhere in err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err carries a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == kind
}

// Boundary converts whatever a workflow returned into the Failure handed to
// callers. Application failures come out unchanged even when wrapped by
// helper context. Anything else becomes a retryable internal failure whose
// message omits the wrapped text, since command arguments carry credentials.
func Boundary(err error) *Failure {
	if err == nil {
		return nil
	}
	if f, ok := AsFailure(err); ok {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled(err)
	}
	return &Failure{Kind: KindInternal, Message: "internal error", Retryable: true, cause: err}
}
