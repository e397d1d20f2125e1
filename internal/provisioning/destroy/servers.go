package destroy

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/metal/internal/platform/hcloud"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/workflow"
)

// ForceDeleteServers deletes the cloud servers backing the tenant's nodes,
// matched by public IPv4 against the nodes' external addresses. It is the
// manual fallback for a teardown the infrastructure provider did not
// finish, and returns the ids of the deleted servers. The returned error is
// nil or a *workflow.Failure.
func ForceDeleteServers(ctx context.Context, deps *provisioning.Deps, clusterID string) ([]int64, error) {
	deleted, err := forceDeleteServers(ctx, deps, clusterID)
	if err != nil {
		return deleted, workflow.Boundary(err)
	}
	return deleted, nil
}

func forceDeleteServers(ctx context.Context, deps *provisioning.Deps, clusterID string) ([]int64, error) {
	pctx := provisioning.NewContext(ctx, WorkflowForceDeleteServers, deps)

	c, err := load(ctx, deps, clusterID)
	if err != nil {
		return nil, err
	}
	if !c.HasKubeconfig() {
		return nil, workflow.NonRetryable(workflow.KindClusterInvalid,
			"cluster %s has no kubeconfig, its nodes are unknown", clusterID)
	}
	pctx.WithCluster(c)

	project, err := deps.Store.GetProject(ctx, c.TeamID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, workflow.NonRetryable(workflow.KindProjectNotFound, "no project for team %s", c.TeamID)
	}
	token, err := project.APIToken()
	if err != nil {
		return nil, err
	}

	t, err := pctx.TenantTarget()
	if err != nil {
		return nil, err
	}
	ips, err := t.NodeExternalIPs(pctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list node addresses: %w", err)
	}
	nodes := make(map[string]bool, len(ips))
	for _, ip := range ips {
		nodes[ip] = true
	}

	cloud := deps.Cloud(token)
	servers, err := cloud.ListServers(pctx)
	if hcloud.IsUnauthorized(err) {
		return nil, workflow.NonRetryable(workflow.KindUnauthorized, "the project's API token was rejected")
	}
	if err != nil {
		return nil, err
	}

	var deleted []int64
	var errs []error
	for _, s := range servers {
		if s.PublicIPv4 == "" || !nodes[s.PublicIPv4] {
			continue
		}
		provisioning.LogResourceDeleting(pctx.Observer, "force-delete-servers", "Server", s.Name)
		if err := cloud.DeleteServer(pctx, s.ID); err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", s.Name, err))
			continue
		}
		provisioning.LogResourceDeleted(pctx.Observer, "force-delete-servers", "Server", s.Name)
		deleted = append(deleted, s.ID)
	}
	pctx.Log.Info("servers deleted", "matched", len(deleted)+len(errs), "deleted", len(deleted))
	return deleted, errors.Join(errs...)
}
