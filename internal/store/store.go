// Package store defines the persistence boundary of the orchestrator.
//
// Lookups return (nil, nil) when the record does not exist. Write errors
// that callers must tell apart from I/O failures are exported sentinels.
package store

import (
	"context"
	"errors"

	"github.com/imamik/metal/internal/model"
)

var (
	// ErrDuplicateKey is returned when an insert collides with an existing id.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned by updates and deletes targeting a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrIllegalTransition is returned when a status update would move a
	// cluster backward or out of a terminal status.
	ErrIllegalTransition = errors.New("illegal cluster status transition")
)

// ClusterStore reads and writes projects, clusters and node groups.
// UpdateClusterStatus is atomic per row: the current status is checked and
// replaced in a single statement.
type ClusterStore interface {
	GetCluster(ctx context.Context, id string) (*model.Cluster, error)
	GetNodeGroups(ctx context.Context, clusterID string) ([]model.NodeGroup, error)
	GetProject(ctx context.Context, teamID string) (*model.Project, error)
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
	CountActiveClusters(ctx context.Context, projectID string) (int64, error)

	UpdateClusterStatus(ctx context.Context, id string, status model.ClusterStatus) error
	UpdateClusterManifest(ctx context.Context, id, manifest, toolVersion string) error
	UpdateClusterKubeconfig(ctx context.Context, id, kubeconfig string) error

	InsertProject(ctx context.Context, p *model.Project) error
	DeleteProject(ctx context.Context, id string) error

	// InsertCluster and InsertNodeGroup are used by the API layer when a
	// cluster is requested. The workflows never call them.
	InsertCluster(ctx context.Context, c *model.Cluster) error
	InsertNodeGroup(ctx context.Context, g *model.NodeGroup) error
}
