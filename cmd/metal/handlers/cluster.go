package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning/cluster"
	"github.com/imamik/metal/internal/provisioning/destroy"
	"github.com/imamik/metal/internal/util/naming"
	"github.com/imamik/metal/internal/workflow"
)

// ClusterRequest describes a cluster row to create.
type ClusterRequest struct {
	TeamID       string
	CreatorID    string
	Name         string
	Location     string
	NetworkZone  string
	InstanceType string
	Nodes        int
}

// CreateCluster records a new cluster in the creating state for the
// team's project and prints its id. Provisioning is a separate step.
func CreateCluster(ctx context.Context, configPath string, req ClusterRequest, out io.Writer) error {
	a, err := open(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.deps.Store.GetProject(ctx, req.TeamID)
	if err != nil {
		return err
	}
	if p == nil {
		return workflow.NonRetryable(workflow.KindProjectNotFound, "team %s has no connected project", req.TeamID)
	}

	name := req.Name
	if name == "" {
		name = naming.ClusterName()
	}
	c := &model.Cluster{
		TeamID:            req.TeamID,
		CreatorID:         req.CreatorID,
		ProjectID:         p.ID,
		Name:              name,
		Status:            model.StatusCreating,
		NetworkZone:       req.NetworkZone,
		Location:          req.Location,
		KubernetesVersion: a.deps.Config.KubernetesVersion,
	}
	g := &model.NodeGroup{
		Type:         model.NodeGroupTypeAll,
		InstanceType: req.InstanceType,
		MinNodes:     req.Nodes,
		MaxNodes:     req.Nodes,
	}
	if err := g.Validate(); err != nil {
		return workflow.NonRetryable(workflow.KindInvalidInput, "%s", err)
	}

	if err := a.deps.Store.InsertCluster(ctx, c); err != nil {
		return fmt.Errorf("failed to insert cluster: %w", err)
	}
	g.ClusterID = c.ID
	if err := a.deps.Store.InsertNodeGroup(ctx, g); err != nil {
		return fmt.Errorf("failed to insert node group: %w", err)
	}
	fmt.Fprintf(out, "Cluster %s (%s) created\n", c.ID, c.Name)
	return nil
}

// ProvisionCluster provisions a created cluster until it is running.
func ProvisionCluster(ctx context.Context, configPath, id string, out io.Writer) error {
	a, err := open(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.run(ctx, cluster.WorkflowProvision, id, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Cluster %s is running\n", id)
	return nil
}

// DeleteCluster starts tearing down a cluster. Completion is confirmed
// with ConfirmDestroyed.
func DeleteCluster(ctx context.Context, configPath, id string, out io.Writer) error {
	a, err := open(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.run(ctx, destroy.WorkflowDelete, id, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Cluster %s is being destroyed\n", id)
	return nil
}

// ForceDeleteServers deletes the cloud servers backing a cluster's nodes.
func ForceDeleteServers(ctx context.Context, configPath, id string, out io.Writer) error {
	a, err := open(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.run(ctx, destroy.WorkflowForceDeleteServers, id, id)
	if ids, ok := result.([]int64); ok {
		for _, sid := range ids {
			fmt.Fprintf(out, "Deleted server %d\n", sid)
		}
	}
	return err
}

// ConfirmDestroyed marks a destroying cluster destroyed once cluster-api
// has removed it. It reports a pending teardown as an error so callers
// can retry.
func ConfirmDestroyed(ctx context.Context, configPath, id string, out io.Writer) error {
	a, err := open(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.run(ctx, destroy.WorkflowConfirmDestroyed, id, id)
	if err != nil {
		return err
	}
	if done, _ := result.(bool); !done {
		return fmt.Errorf("cluster %s is still being destroyed", id)
	}
	fmt.Fprintf(out, "Cluster %s destroyed\n", id)
	return nil
}
