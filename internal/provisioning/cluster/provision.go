package cluster

import (
	"context"
	"errors"

	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/store"
	"github.com/imamik/metal/internal/workflow"
)

// WorkflowProvision is the engine name of ProvisionHetznerCluster.
const WorkflowProvision = "provision-hetzner-cluster"

// provision holds what the stages of one run learn along the way.
type provision struct {
	token         string
	robotUser     string
	robotPassword string

	// externalIP is the first node's public address, looked up on demand.
	externalIP string
}

// ProvisionHetznerCluster brings a persisted cluster from "creating" to
// "running". It may be invoked again after any failure and resumes after the
// last completed stage. The returned error is nil or a *workflow.Failure.
func ProvisionHetznerCluster(ctx context.Context, deps *provisioning.Deps, clusterID string) error {
	if err := provisionCluster(ctx, deps, clusterID); err != nil {
		return workflow.Boundary(err)
	}
	return nil
}

func provisionCluster(ctx context.Context, deps *provisioning.Deps, clusterID string) error {
	pctx := provisioning.NewContext(ctx, WorkflowProvision, deps)

	c, err := deps.Store.GetCluster(ctx, clusterID)
	if err != nil {
		return err
	}
	if c == nil {
		return workflow.NonRetryable(workflow.KindClusterNotFound, "cluster %s not found", clusterID)
	}
	switch c.Status {
	case model.StatusCreating, model.StatusInitializing, model.StatusRunning:
	default:
		return workflow.NonRetryable(workflow.KindIllegalStatusTransition,
			"cluster %s is %s and cannot be provisioned", clusterID, c.Status)
	}
	pctx.WithCluster(c)

	p, err := prepare(pctx)
	if err == nil {
		err = provisioning.RunStages(pctx, p.stages())
	}
	if err != nil {
		markFailed(pctx, err)
		return err
	}
	pctx.Log.Info("cluster is running")
	return nil
}

// prepare loads the node groups and the owning project.
func prepare(ctx *provisioning.Context) (*provision, error) {
	groups, err := ctx.Store.GetNodeGroups(ctx, ctx.Cluster.ID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, workflow.NonRetryable(workflow.KindClusterInvalid, "cluster %s has no node groups", ctx.Cluster.ID)
	}
	for i := range groups {
		if err := groups[i].Validate(); err != nil {
			return nil, workflow.NonRetryable(workflow.KindClusterInvalid, "%s", err.Error())
		}
	}
	ctx.NodeGroups = groups

	project, err := ctx.Store.GetProject(ctx, ctx.Cluster.TeamID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, workflow.NonRetryable(workflow.KindProjectNotFound, "no project for team %s", ctx.Cluster.TeamID)
	}
	ctx.Project = project

	p := &provision{}
	if p.token, err = project.APIToken(); err != nil {
		return nil, err
	}
	if p.robotUser, p.robotPassword, err = project.WebServiceCredentials(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *provision) stages() []provisioning.Stage {
	return []provisioning.Stage{
		// management cluster
		certificateStage(),
		p.credentialsStage(),
		p.manifestStage(),
		markInitializingStage(),
		applyManifestStage(),
		controlPlaneStage(),

		// tenant cluster
		apiServerStage(),
		gatewayAPICRDsStage(),
		cniStage(),
		cniReadyStage(),
		p.hcloudSecretStage(),
		ccmStage(),
		csiStage(),
		p.loadBalancerIPStage(),
		p.dnsStage(),
		controlPlaneTaintStage(),
		metricsServerStage(),
		monitoringStage(),
		objectStorageCredentialsStage(),
		minioOperatorStage(),
		minioTenantStage(),
		quickwitStage(),
		jaegerStage(),
		registryCredentialsStage(),
		registryStage(),
		argoRolloutsStage(),
		certificateCopyStage(),
		p.gatewayStage(),
		p.smokeTestStage(),
		finalizeStage(),
	}
}

// setStatus moves the cluster forward. A transition the store refuses, for
// example because a deletion started meanwhile, is not retryable.
func setStatus(ctx *provisioning.Context, status model.ClusterStatus) error {
	err := ctx.Store.UpdateClusterStatus(ctx, ctx.Cluster.ID, status)
	if errors.Is(err, store.ErrIllegalTransition) {
		return workflow.NonRetryable(workflow.KindIllegalStatusTransition,
			"cluster %s cannot move from %s to %s", ctx.Cluster.ID, ctx.Cluster.Status, status)
	}
	if err != nil {
		return err
	}
	ctx.Cluster.Status = status
	return nil
}

// markFailed records the error status after a failure that retrying cannot
// fix. Timeouts, cancellation and transient errors leave the status alone
// so the next run resumes.
func markFailed(ctx *provisioning.Context, cause error) {
	f, ok := workflow.AsFailure(cause)
	if !ok || f.Retryable || f.Kind == workflow.KindIllegalStatusTransition {
		return
	}
	if err := ctx.Store.UpdateClusterStatus(context.WithoutCancel(ctx), ctx.Cluster.ID, model.StatusError); err != nil {
		ctx.Log.Error(err, "failed to record error status")
		return
	}
	ctx.Cluster.Status = model.StatusError
	ctx.Log.Info("cluster marked as failed", "kind", f.Kind)
}
