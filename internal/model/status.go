package model

import "fmt"

// ClusterStatus is the lifecycle state of a tenant cluster.
type ClusterStatus string

const (
	StatusCreating     ClusterStatus = "creating"
	StatusInitializing ClusterStatus = "initializing"
	StatusRunning      ClusterStatus = "running"
	StatusUpdating     ClusterStatus = "updating"
	StatusDestroying   ClusterStatus = "destroying"
	StatusDestroyed    ClusterStatus = "destroyed"
	StatusError        ClusterStatus = "error"
)

// lifecycle is the forward order of the non-error states.
var lifecycle = []ClusterStatus{
	StatusCreating,
	StatusInitializing,
	StatusRunning,
	StatusUpdating,
	StatusDestroying,
	StatusDestroyed,
}

func (s ClusterStatus) rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s ClusterStatus) Valid() bool {
	return s == StatusError || s.rank() >= 0
}

// Terminal reports whether no further transition may leave s.
func (s ClusterStatus) Terminal() bool {
	return s == StatusDestroyed || s == StatusError
}

// CanTransitionTo reports whether moving from s to next keeps the status
// monotonic. Staying in the same status is allowed so that re-running a
// stage that already recorded its status is a no-op.
func (s ClusterStatus) CanTransitionTo(next ClusterStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	return next.rank() > s.rank()
}

// Predecessors returns every status from which next may be reached.
func Predecessors(next ClusterStatus) []ClusterStatus {
	var out []ClusterStatus
	for _, s := range append(append([]ClusterStatus{}, lifecycle...), StatusError) {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// ParseClusterStatus converts a stored value into a ClusterStatus.
func ParseClusterStatus(v string) (ClusterStatus, error) {
	s := ClusterStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown cluster status %q", v)
	}
	return s, nil
}
