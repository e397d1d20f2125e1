package project

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/imamik/metal/internal/model"
	mtesting "github.com/imamik/metal/internal/testing"
	"github.com/imamik/metal/internal/workflow"
)

func validInput(id string) CreateInput {
	return CreateInput{
		ID:        id,
		TeamID:    "team-" + id,
		CreatorID: "user-1",
		Name:      "Production",
		APIToken:  mtesting.ValidToken,
	}
}

func TestCreateHetznerProject_GeneratesKeys(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)
	ctx := mtesting.TestContext(t)

	p, err := CreateHetznerProject(ctx, f.Deps, validInput("p1"))
	require.NoError(t, err)

	assert.Equal(t, "metal-p1", p.SSHKeyName)
	assert.NotEmpty(t, p.EncodedPublicKey)
	assert.NotEmpty(t, p.EncodedPrivateKey)
	_, err = base64.StdEncoding.DecodeString(p.EncodedPublicKey)
	assert.NoError(t, err)
	pub, err := p.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, string(f.KeyPair.PublicKey), pub)
	token, err := p.APIToken()
	require.NoError(t, err)
	assert.Equal(t, mtesting.ValidToken, token)

	f.Keys.AssertCalled(t, "GenerateED25519", mock.Anything, "metal-p1")
	key := f.Cloud.SSHKey("metal-p1")
	require.NotNil(t, key)
	assert.Equal(t, string(f.KeyPair.PublicKey), key.PublicKey)

	stored, err := f.Store.GetProjectByID(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, p.EncodedPrivateKey, stored.EncodedPrivateKey)
}

func TestCreateHetznerProject_GeneratesID(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)

	in := validInput("")
	in.TeamID = "team-x"
	p, err := CreateHetznerProject(mtesting.TestContext(t), f.Deps, in)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "metal-"+p.ID, p.SSHKeyName)
}

func TestCreateHetznerProject_UnauthorizedShortCircuits(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)
	ctx := mtesting.TestContext(t)

	in := validInput("p1")
	in.APIToken = "rejected"
	_, err := CreateHetznerProject(ctx, f.Deps, in)

	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindUnauthorized))
	fail, ok := workflow.AsFailure(err)
	require.True(t, ok)
	assert.False(t, fail.Retryable)

	f.Keys.AssertNotCalled(t, "GenerateED25519", mock.Anything, mock.Anything)
	assert.Equal(t, -1, f.Log.Index("cloud create-ssh-key"))
	stored, err := f.Store.GetProjectByID(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCreateHetznerProject_SSHKeyConflict(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)
	ctx := mtesting.TestContext(t)

	other := mtesting.NewKeyPair()
	f.Cloud.AddSSHKey("metal-p1", string(other.PublicKey))

	_, err := CreateHetznerProject(ctx, f.Deps, validInput("p1"))
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindSSHKeyNameConflict))

	key := f.Cloud.SSHKey("metal-p1")
	require.NotNil(t, key)
	assert.Equal(t, string(other.PublicKey), key.PublicKey)
	assert.Equal(t, -1, f.Log.Index("cloud delete-ssh-key"))
	assert.Equal(t, -1, f.Log.Index("cloud create-ssh-key"))

	stored, err := f.Store.GetProjectByID(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCreateHetznerProject_ReusesMatchingKey(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)

	f.Cloud.AddSSHKey("metal-p1", string(f.KeyPair.PublicKey)+" metal-p1")

	p, err := CreateHetznerProject(mtesting.TestContext(t), f.Deps, validInput("p1"))
	require.NoError(t, err)
	assert.Equal(t, "metal-p1", p.SSHKeyName)
	assert.Equal(t, -1, f.Log.Index("cloud create-ssh-key"))
}

func TestCreateHetznerProject_DuplicateID(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)
	ctx := mtesting.TestContext(t)

	first, err := CreateHetznerProject(ctx, f.Deps, validInput("P1"))
	require.NoError(t, err)

	in := validInput("P1")
	in.TeamID = "another-team"
	in.Name = "Second"
	_, err = CreateHetznerProject(ctx, f.Deps, in)
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindProjectIDConflict))

	stored, err := f.Store.GetProjectByID(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.TeamID, stored.TeamID)
	assert.Equal(t, first.Name, stored.Name)
	assert.Equal(t, first.EncodedPublicKey, stored.EncodedPublicKey)
}

func TestCreateHetznerProject_TeamAlreadyConnected(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)
	ctx := mtesting.TestContext(t)

	_, err := CreateHetznerProject(ctx, f.Deps, validInput("P1"))
	require.NoError(t, err)
	created := f.Log.Count("cloud create-ssh-key")

	in := validInput("P2")
	in.TeamID = "team-P1"
	_, err = CreateHetznerProject(ctx, f.Deps, in)
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindProjectTeamConflict), "got %v", err)
	assert.NotContains(t, err.Error(), "id P2")

	assert.Nil(t, f.Cloud.SSHKey("metal-P2"))
	assert.Equal(t, created, f.Log.Count("cloud create-ssh-key"))
	stored, err := f.Store.GetProjectByID(ctx, "P2")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCreateHetznerProject_SuppliedKeys(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)

	supplied := mtesting.NewKeyPair()
	in := validInput("p1")
	in.PublicKey = string(supplied.PublicKey)
	in.PrivateKey = string(supplied.PrivateKey)

	p, err := CreateHetznerProject(mtesting.TestContext(t), f.Deps, in)
	require.NoError(t, err)

	pub, err := p.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, string(supplied.PublicKey), pub)
	f.Keys.AssertNotCalled(t, "GenerateED25519", mock.Anything, mock.Anything)
	assert.Equal(t, string(supplied.PublicKey), f.Cloud.SSHKey("metal-p1").PublicKey)
}

func TestCreateHetznerProject_InvalidInput(t *testing.T) {
	t.Parallel()

	mismatched := validInput("p1")
	mismatched.PublicKey = string(mtesting.NewKeyPair().PublicKey)
	mismatched.PrivateKey = string(mtesting.NewKeyPair().PrivateKey)

	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{"missing team", func(in *CreateInput) { in.TeamID = "" }},
		{"missing token", func(in *CreateInput) { in.APIToken = "" }},
		{"half a key pair", func(in *CreateInput) { in.PublicKey = "ssh-ed25519 AAAA" }},
		{"mismatched key pair", func(in *CreateInput) { *in = mismatched }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := mtesting.NewFixture(t)
			in := validInput("p1")
			tt.mutate(&in)

			_, err := CreateHetznerProject(mtesting.TestContext(t), f.Deps, in)
			require.Error(t, err)
			assert.True(t, workflow.IsKind(err, workflow.KindInvalidInput), "got %v", err)
			assert.Equal(t, -1, f.Log.Index("cloud create-ssh-key"))
		})
	}
}

func TestCreateHetznerProject_ErrorNeverLeaksToken(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)

	in := validInput("p1")
	in.APIToken = "super-secret-token"
	_, err := CreateHetznerProject(mtesting.TestContext(t), f.Deps, in)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-token")
}

func TestCreateHetznerProject_StoreKeepsModelShape(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)

	in := validInput("p1")
	in.WebServiceUser = "robot"
	in.WebServicePassword = "robot-pass"
	p, err := CreateHetznerProject(mtesting.TestContext(t), f.Deps, in)
	require.NoError(t, err)

	user, pass, err := p.WebServiceCredentials()
	require.NoError(t, err)
	assert.Equal(t, "robot", user)
	assert.Equal(t, "robot-pass", pass)
	assert.IsType(t, &model.Project{}, p)
}
