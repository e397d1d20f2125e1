package project

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/platform/hcloud"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/store"
	"github.com/imamik/metal/internal/util/keygen"
	"github.com/imamik/metal/internal/util/naming"
	"github.com/imamik/metal/internal/workflow"
)

// Workflow names registered with the engine.
const (
	WorkflowCreate = "create-hetzner-project"
	WorkflowDelete = "delete-hetzner-project"
)

// labelProject marks cloud resources created for a project.
const labelProject = "metal.dev/project"

// CreateInput describes the project to connect.
type CreateInput struct {
	// ID is generated when empty.
	ID        string
	TeamID    string
	CreatorID string
	Name      string
	APIToken  string
	// PublicKey and PrivateKey are optional pre-supplied key material in
	// OpenSSH format. Both or neither must be set.
	PublicKey          string
	PrivateKey         string
	WebServiceUser     string
	WebServicePassword string
}

func (in CreateInput) validate() error {
	switch {
	case in.TeamID == "":
		return workflow.NonRetryable(workflow.KindInvalidInput, "team id is required")
	case in.APIToken == "":
		return workflow.NonRetryable(workflow.KindInvalidInput, "API token is required")
	case (in.PublicKey == "") != (in.PrivateKey == ""):
		return workflow.NonRetryable(workflow.KindInvalidInput, "public and private key must be supplied together")
	}
	return nil
}

// creation holds what the stages of one CreateHetznerProject run learn.
type creation struct {
	in      CreateInput
	cloud   hcloud.CloudProvider
	keys    *keygen.KeyPair
	keyName string
	project *model.Project
}

// CreateHetznerProject connects a Hetzner Cloud project. The returned error
// is nil or a *workflow.Failure.
func CreateHetznerProject(ctx context.Context, deps *provisioning.Deps, in CreateInput) (*model.Project, error) {
	p, err := createProject(ctx, deps, in)
	if err != nil {
		return nil, workflow.Boundary(err)
	}
	return p, nil
}

func createProject(ctx context.Context, deps *provisioning.Deps, in CreateInput) (*model.Project, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	pctx := provisioning.NewContext(ctx, WorkflowCreate, deps)
	pctx.Log = pctx.Log.WithValues("project", in.ID, "team", in.TeamID)

	c := &creation{
		in:      in,
		cloud:   deps.Cloud(in.APIToken),
		keyName: naming.SSHKey(in.ID),
	}
	if err := provisioning.RunStages(pctx, c.stages()); err != nil {
		return nil, err
	}
	pctx.Log.Info("project connected", "sshKey", c.keyName)
	return c.project, nil
}

func (c *creation) stages() []provisioning.Stage {
	return []provisioning.Stage{
		provisioning.Step{StageName: "validate-token", Do: c.validateToken},
		provisioning.Step{StageName: "check-project-id", Do: c.checkProjectID},
		provisioning.Step{StageName: "check-team", Do: c.checkTeam},
		provisioning.Step{StageName: "ssh-key-material", Check: c.keysSupplied, Do: c.generateKeys},
		provisioning.Step{StageName: "register-ssh-key", Check: c.keyRegistered, Do: c.registerKey},
		provisioning.Step{StageName: "persist-project", Do: c.persist},
	}
}

func (c *creation) validateToken(ctx *provisioning.Context) error {
	if err := c.cloud.ValidateToken(ctx); err != nil {
		if hcloud.IsUnauthorized(err) {
			return workflow.NonRetryable(workflow.KindUnauthorized, "the Hetzner Cloud API token was rejected")
		}
		return err
	}
	return nil
}

// checkTeam enforces one project per team before anything is created in
// the cloud account.
func (c *creation) checkTeam(ctx *provisioning.Context) error {
	existing, err := ctx.Store.GetProject(ctx, c.in.TeamID)
	if err != nil {
		return err
	}
	if existing != nil {
		return workflow.NonRetryable(workflow.KindProjectTeamConflict,
			"team %s already has project %s", c.in.TeamID, existing.ID)
	}
	return nil
}

func (c *creation) checkProjectID(ctx *provisioning.Context) error {
	existing, err := ctx.Store.GetProjectByID(ctx, c.in.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return workflow.NonRetryable(workflow.KindProjectIDConflict, "project %s already exists", c.in.ID)
	}
	return nil
}

// keysSupplied accepts pre-supplied key material after checking the two
// halves belong together.
func (c *creation) keysSupplied(_ *provisioning.Context) (bool, error) {
	if c.in.PublicKey == "" {
		return false, nil
	}
	kp := &keygen.KeyPair{
		PrivateKey: []byte(c.in.PrivateKey),
		PublicKey:  []byte(strings.TrimSpace(c.in.PublicKey)),
	}
	if err := keygen.Validate(kp); err != nil {
		return false, workflow.NonRetryable(workflow.KindInvalidInput, "supplied SSH key material is invalid")
	}
	c.keys = kp
	return true, nil
}

func (c *creation) generateKeys(ctx *provisioning.Context) error {
	kp, err := ctx.Keys.GenerateED25519(ctx, c.keyName)
	if err != nil {
		return err
	}
	c.keys = kp
	return nil
}

// keyRegistered looks up the deterministic key name. A key of that name
// with different material is a conflict; it is never replaced.
func (c *creation) keyRegistered(ctx *provisioning.Context) (bool, error) {
	existing, err := c.cloud.GetSSHKeyByName(ctx, c.keyName)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if !keygen.SamePublicKey(existing.PublicKey, string(c.keys.PublicKey)) {
		return false, workflow.NonRetryable(workflow.KindSSHKeyNameConflict,
			"an SSH key named %s with a different public key already exists", c.keyName)
	}
	provisioning.LogResourceExists(ctx.Observer, "register-ssh-key", "SSHKey", c.keyName)
	return true, nil
}

func (c *creation) registerKey(ctx *provisioning.Context) error {
	_, err := c.cloud.CreateSSHKey(ctx, c.keyName, string(c.keys.PublicKey), map[string]string{
		labelProject: c.in.ID,
	})
	if err != nil {
		return err
	}
	provisioning.LogResourceCreated(ctx.Observer, "register-ssh-key", "SSHKey", c.keyName)
	return nil
}

func (c *creation) persist(ctx *provisioning.Context) error {
	p := &model.Project{
		ID:                    c.in.ID,
		TeamID:                c.in.TeamID,
		CreatorID:             c.in.CreatorID,
		Name:                  c.in.Name,
		EncodedAPIToken:       model.Encode(c.in.APIToken),
		SSHKeyName:            c.keyName,
		EncodedPublicKey:      model.Encode(string(c.keys.PublicKey)),
		EncodedPrivateKey:     model.Encode(string(c.keys.PrivateKey)),
		EncodedWebServiceUser: model.Encode(c.in.WebServiceUser),
		EncodedWebServicePass: model.Encode(c.in.WebServicePassword),
	}
	if err := ctx.Store.InsertProject(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// Lost a race with a concurrent create for the same id or team.
			return workflow.NonRetryable(workflow.KindProjectIDConflict,
				"project %s could not be stored: it or a project of team %s was created concurrently", c.in.ID, c.in.TeamID)
		}
		return err
	}
	c.project = p
	return nil
}
