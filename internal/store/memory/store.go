// Package memory is a thread-safe in-memory store.ClusterStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/store"
)

// Store keeps records in maps guarded by a single mutex.
type Store struct {
	mu         sync.RWMutex
	projects   map[string]*model.Project
	clusters   map[string]*model.Cluster
	nodeGroups map[string]*model.NodeGroup

	// statusHistory records every status written per cluster, in order.
	statusHistory map[string][]model.ClusterStatus
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		projects:      make(map[string]*model.Project),
		clusters:      make(map[string]*model.Cluster),
		nodeGroups:    make(map[string]*model.NodeGroup),
		statusHistory: make(map[string][]model.ClusterStatus),
	}
}

var _ store.ClusterStore = (*Store)(nil)

func (s *Store) GetCluster(_ context.Context, id string) (*model.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetNodeGroups(_ context.Context, clusterID string) ([]model.NodeGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.NodeGroup
	for _, g := range s.nodeGroups {
		if g.ClusterID == clusterID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetProject(_ context.Context, teamID string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.TeamID == teamID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetProjectByID(_ context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) CountActiveClusters(_ context.Context, projectID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.clusters {
		if c.ProjectID == projectID && c.Status != model.StatusDestroyed {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateClusterStatus(_ context.Context, id string, status model.ClusterStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[id]
	if !ok {
		return store.ErrNotFound
	}
	if !c.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrIllegalTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	s.statusHistory[id] = append(s.statusHistory[id], status)
	return nil
}

func (s *Store) UpdateClusterManifest(_ context.Context, id, manifest, toolVersion string) error {
	return s.mutate(id, func(c *model.Cluster) {
		c.Manifest = manifest
		c.ClusterctlVersion = toolVersion
	})
}

func (s *Store) UpdateClusterKubeconfig(_ context.Context, id, kubeconfig string) error {
	return s.mutate(id, func(c *model.Cluster) { c.Kubeconfig = kubeconfig })
}

func (s *Store) mutate(id string, fn func(*model.Cluster)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(c)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) InsertProject(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := s.projects[p.ID]; ok {
		return fmt.Errorf("%w: project %s", store.ErrDuplicateKey, p.ID)
	}
	for _, existing := range s.projects {
		if existing.TeamID == p.TeamID {
			return fmt.Errorf("%w: project for team %s", store.ErrDuplicateKey, p.TeamID)
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

func (s *Store) InsertCluster(_ context.Context, c *model.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.clusters[c.ID]; ok {
		return fmt.Errorf("%w: cluster %s", store.ErrDuplicateKey, c.ID)
	}
	if c.Status == "" {
		c.Status = model.StatusCreating
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	s.clusters[c.ID] = &cp
	s.statusHistory[c.ID] = []model.ClusterStatus{c.Status}
	return nil
}

func (s *Store) InsertNodeGroup(_ context.Context, g *model.NodeGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if _, ok := s.nodeGroups[g.ID]; ok {
		return fmt.Errorf("%w: node group %s", store.ErrDuplicateKey, g.ID)
	}
	if g.Type == "" {
		g.Type = model.NodeGroupTypeAll
	}
	g.CreatedAt = time.Now().UTC()
	cp := *g
	s.nodeGroups[g.ID] = &cp
	return nil
}

// StatusHistory returns the statuses written for a cluster, oldest first.
func (s *Store) StatusHistory(id string) []model.ClusterStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ClusterStatus(nil), s.statusHistory[id]...)
}
