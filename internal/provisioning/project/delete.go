package project

import (
	"context"
	"errors"

	"github.com/imamik/metal/internal/platform/hcloud"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/store"
	"github.com/imamik/metal/internal/util/keygen"
	"github.com/imamik/metal/internal/workflow"
)

// DeleteHetznerProject disconnects a project that no longer owns clusters.
// The SSH key registered at creation is removed only while it still holds
// the project's public key. The returned error is nil or a
// *workflow.Failure.
func DeleteHetznerProject(ctx context.Context, deps *provisioning.Deps, projectID string) error {
	if err := deleteProject(ctx, deps, projectID); err != nil {
		return workflow.Boundary(err)
	}
	return nil
}

func deleteProject(ctx context.Context, deps *provisioning.Deps, projectID string) error {
	pctx := provisioning.NewContext(ctx, WorkflowDelete, deps)
	pctx.Log = pctx.Log.WithValues("project", projectID)

	p, err := deps.Store.GetProjectByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return workflow.NonRetryable(workflow.KindProjectNotFound, "project %s not found", projectID)
	}

	active, err := deps.Store.CountActiveClusters(ctx, projectID)
	if err != nil {
		return err
	}
	if active > 0 {
		return workflow.NonRetryable(workflow.KindProjectHasClusters,
			"project %s still has %d cluster(s)", projectID, active)
	}

	token, err := p.APIToken()
	if err != nil {
		return err
	}
	publicKey, err := p.PublicKey()
	if err != nil {
		return err
	}
	cloud := deps.Cloud(token)

	stages := []provisioning.Stage{
		provisioning.Step{
			StageName: "remove-ssh-key",
			Check: func(ctx *provisioning.Context) (bool, error) {
				existing, err := cloud.GetSSHKeyByName(ctx, p.SSHKeyName)
				if hcloud.IsUnauthorized(err) {
					ctx.Log.Info("token no longer accepted, leaving SSH key in place", "sshKey", p.SSHKeyName)
					return true, nil
				}
				if err != nil {
					return false, err
				}
				return existing == nil || !keygen.SamePublicKey(existing.PublicKey, publicKey), nil
			},
			Do: func(ctx *provisioning.Context) error {
				if err := cloud.DeleteSSHKey(ctx, p.SSHKeyName); err != nil {
					return err
				}
				provisioning.LogResourceDeleted(ctx.Observer, "remove-ssh-key", "SSHKey", p.SSHKeyName)
				return nil
			},
		},
		provisioning.Step{
			StageName: "delete-project",
			Do: func(ctx *provisioning.Context) error {
				err := ctx.Store.DeleteProject(ctx, projectID)
				if errors.Is(err, store.ErrNotFound) {
					return nil
				}
				return err
			},
		},
	}
	if err := provisioning.RunStages(pctx, stages); err != nil {
		return err
	}
	pctx.Log.Info("project disconnected")
	return nil
}
