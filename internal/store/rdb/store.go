package rdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/store"
)

// Store is the GORM-backed ClusterStore.
type Store struct{ db *gorm.DB }

// New returns a Store using db.
func New(db *gorm.DB) *Store { return &Store{db: db} }

var _ store.ClusterStore = (*Store)(nil)

func projectToRecord(p *model.Project) *ProjectRecord {
	return &ProjectRecord{
		ID:             p.ID,
		TeamID:         p.TeamID,
		CreatorID:      p.CreatorID,
		Name:           p.Name,
		APIToken:       p.EncodedAPIToken,
		SSHKeyName:     p.SSHKeyName,
		PublicKey:      p.EncodedPublicKey,
		PrivateKey:     p.EncodedPrivateKey,
		WebServiceUser: p.EncodedWebServiceUser,
		WebServicePass: p.EncodedWebServicePass,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func projectToModel(r *ProjectRecord) *model.Project {
	return &model.Project{
		ID:                    r.ID,
		TeamID:                r.TeamID,
		CreatorID:             r.CreatorID,
		Name:                  r.Name,
		EncodedAPIToken:       r.APIToken,
		SSHKeyName:            r.SSHKeyName,
		EncodedPublicKey:      r.PublicKey,
		EncodedPrivateKey:     r.PrivateKey,
		EncodedWebServiceUser: r.WebServiceUser,
		EncodedWebServicePass: r.WebServicePass,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

func clusterToRecord(c *model.Cluster) *ClusterRecord {
	return &ClusterRecord{
		ID:                c.ID,
		TeamID:            c.TeamID,
		CreatorID:         c.CreatorID,
		ProjectID:         c.ProjectID,
		Name:              c.Name,
		Status:            string(c.Status),
		NetworkZone:       c.NetworkZone,
		Location:          c.Location,
		KubernetesVersion: c.KubernetesVersion,
		ClusterctlVersion: c.ClusterctlVersion,
		Manifest:          c.Manifest,
		Kubeconfig:        c.Kubeconfig,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func clusterToModel(r *ClusterRecord) (*model.Cluster, error) {
	status, err := model.ParseClusterStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("cluster %s: %w", r.ID, err)
	}
	return &model.Cluster{
		ID:                r.ID,
		TeamID:            r.TeamID,
		CreatorID:         r.CreatorID,
		ProjectID:         r.ProjectID,
		Name:              r.Name,
		Status:            status,
		NetworkZone:       r.NetworkZone,
		Location:          r.Location,
		KubernetesVersion: r.KubernetesVersion,
		ClusterctlVersion: r.ClusterctlVersion,
		Manifest:          r.Manifest,
		Kubeconfig:        r.Kubeconfig,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

func nodeGroupToModel(r *NodeGroupRecord) model.NodeGroup {
	return model.NodeGroup{
		ID:           r.ID,
		ClusterID:    r.ClusterID,
		Type:         r.Type,
		InstanceType: r.InstanceType,
		MinNodes:     r.MinNodes,
		MaxNodes:     r.MaxNodes,
		CreatedAt:    r.CreatedAt,
	}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")) {
		return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
	}
	return err
}

func (s *Store) GetCluster(ctx context.Context, id string) (*model.Cluster, error) {
	var rec ClusterRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return clusterToModel(&rec)
}

func (s *Store) GetNodeGroups(ctx context.Context, clusterID string) ([]model.NodeGroup, error) {
	var recs []NodeGroupRecord
	if err := s.db.WithContext(ctx).Where("cluster_id = ?", clusterID).Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]model.NodeGroup, 0, len(recs))
	for i := range recs {
		out = append(out, nodeGroupToModel(&recs[i]))
	}
	return out, nil
}

func (s *Store) getProject(ctx context.Context, column, value string) (*model.Project, error) {
	var rec ProjectRecord
	if err := s.db.WithContext(ctx).First(&rec, column+" = ?", value).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return projectToModel(&rec), nil
}

func (s *Store) GetProject(ctx context.Context, teamID string) (*model.Project, error) {
	return s.getProject(ctx, "team_id", teamID)
}

func (s *Store) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	return s.getProject(ctx, "id", id)
}

func (s *Store) CountActiveClusters(ctx context.Context, projectID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ClusterRecord{}).
		Where("project_id = ? AND status <> ?", projectID, string(model.StatusDestroyed)).
		Count(&n).Error
	return n, err
}

func (s *Store) UpdateClusterStatus(ctx context.Context, id string, status model.ClusterStatus) error {
	from := model.Predecessors(status)
	allowed := make([]string, 0, len(from))
	for _, st := range from {
		allowed = append(allowed, string(st))
	}

	res := s.db.WithContext(ctx).Model(&ClusterRecord{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := s.GetCluster(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %s -> %s", store.ErrIllegalTransition, current.Status, status)
}

func (s *Store) updateCluster(ctx context.Context, id string, values map[string]any) error {
	values["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&ClusterRecord{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateClusterManifest(ctx context.Context, id, manifest, toolVersion string) error {
	return s.updateCluster(ctx, id, map[string]any{"manifest": manifest, "clusterctl_version": toolVersion})
}

func (s *Store) UpdateClusterKubeconfig(ctx context.Context, id, kubeconfig string) error {
	return s.updateCluster(ctx, id, map[string]any{"kubeconfig": kubeconfig})
}

func (s *Store) InsertProject(ctx context.Context, p *model.Project) error {
	rec := projectToRecord(p)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
		p.ID = rec.ID
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return translate(err)
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&ProjectRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertCluster(ctx context.Context, c *model.Cluster) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.StatusCreating
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	return translate(s.db.WithContext(ctx).Create(clusterToRecord(c)).Error)
}

func (s *Store) InsertNodeGroup(ctx context.Context, g *model.NodeGroup) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Type == "" {
		g.Type = model.NodeGroupTypeAll
	}
	g.CreatedAt = time.Now().UTC()
	rec := &NodeGroupRecord{
		ID:           g.ID,
		ClusterID:    g.ClusterID,
		Type:         g.Type,
		InstanceType: g.InstanceType,
		MinNodes:     g.MinNodes,
		MaxNodes:     g.MaxNodes,
		CreatedAt:    g.CreatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(rec).Error)
}
