package handlers

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/metal/internal/config"
	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/provisioning/project"
	"github.com/imamik/metal/internal/store/rdb"
	mtesting "github.com/imamik/metal/internal/testing"
	"github.com/imamik/metal/internal/workflow"
)

// useFixture points the factory variables at an in-memory fixture. Tests
// using it must not run in parallel.
func useFixture(t *testing.T) *mtesting.Fixture {
	t.Helper()
	f := mtesting.NewFixture(t)

	origLoad, origDeps := loadConfig, newDeps
	t.Cleanup(func() { loadConfig, newDeps = origLoad, origDeps })

	loadConfig = func(string) (*config.Config, error) { return f.Config, nil }
	newDeps = func(context.Context, *config.Config) (*provisioning.Deps, func(), error) {
		return f.Deps, nil, nil
	}
	return f
}

func TestCreateProject(t *testing.T) {
	f := useFixture(t)
	var out bytes.Buffer

	err := CreateProject(mtesting.TestContext(t), "", project.CreateInput{
		ID:       "p1",
		TeamID:   "team-9",
		Name:     "Staging",
		APIToken: mtesting.ValidToken,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Project p1 connected (ssh key metal-p1)\n", out.String())
	assert.NotContains(t, out.String(), mtesting.ValidToken)
	assert.NotNil(t, f.Cloud.SSHKey("metal-p1"))

	out.Reset()
	require.NoError(t, DeleteProject(mtesting.TestContext(t), "", "p1", &out))
	assert.Equal(t, "Project p1 deleted\n", out.String())
	assert.Nil(t, f.Cloud.SSHKey("metal-p1"))
}

func TestCreateProject_Unauthorized(t *testing.T) {
	useFixture(t)

	err := CreateProject(mtesting.TestContext(t), "", project.CreateInput{
		TeamID:   "team-9",
		APIToken: "rejected",
	}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindUnauthorized))
}

func TestCreateCluster(t *testing.T) {
	f := useFixture(t)
	f.AddProject(t)
	ctx := mtesting.TestContext(t)
	var out bytes.Buffer

	err := CreateCluster(ctx, "", ClusterRequest{
		TeamID:       mtesting.TeamID,
		Name:         "demo",
		Location:     "nbg1",
		NetworkZone:  "eu-central",
		InstanceType: "cx32",
		Nodes:        3,
	}, &out)
	require.NoError(t, err)

	fields := strings.Fields(out.String())
	require.Len(t, fields, 4)
	id := fields[1]
	assert.Equal(t, "(demo)", fields[2])

	c, err := f.Store.GetCluster(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.StatusCreating, c.Status)
	assert.Equal(t, mtesting.ProjectID, c.ProjectID)
	assert.Equal(t, "nbg1", c.Location)
	assert.Equal(t, f.Config.KubernetesVersion, c.KubernetesVersion)

	groups, err := f.Store.GetNodeGroups(ctx, id)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, model.NodeGroupTypeAll, groups[0].Type)
	assert.Equal(t, "cx32", groups[0].InstanceType)
	assert.Equal(t, 3, groups[0].MinNodes)
	assert.Equal(t, 3, groups[0].MaxNodes)
}

func TestCreateCluster_GeneratesName(t *testing.T) {
	f := useFixture(t)
	f.AddProject(t)
	var out bytes.Buffer

	require.NoError(t, CreateCluster(mtesting.TestContext(t), "", ClusterRequest{
		TeamID:       mtesting.TeamID,
		InstanceType: "cx22",
		Nodes:        1,
	}, &out))
	fields := strings.Fields(out.String())
	require.Len(t, fields, 4)
	assert.NotEqual(t, "()", fields[2])
}

func TestCreateCluster_Rejects(t *testing.T) {
	tests := []struct {
		name string
		req  ClusterRequest
		kind workflow.Kind
	}{
		{"unknown team", ClusterRequest{TeamID: "nobody", InstanceType: "cx22", Nodes: 1}, workflow.KindProjectNotFound},
		{"no nodes", ClusterRequest{TeamID: mtesting.TeamID, InstanceType: "cx22"}, workflow.KindInvalidInput},
		{"no instance type", ClusterRequest{TeamID: mtesting.TeamID, Nodes: 1}, workflow.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := useFixture(t)
			f.AddProject(t)

			err := CreateCluster(mtesting.TestContext(t), "", tt.req, &bytes.Buffer{})
			require.Error(t, err)
			assert.True(t, workflow.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestClusterLifecycle(t *testing.T) {
	f := useFixture(t)
	f.AddProject(t)
	f.AddCluster(t)
	ctx := mtesting.TestContext(t)
	var out bytes.Buffer

	require.NoError(t, ProvisionCluster(ctx, "", mtesting.ClusterID, &out))
	assert.Equal(t, model.StatusRunning, f.Cluster(t).Status)

	require.NoError(t, DeleteCluster(ctx, "", mtesting.ClusterID, &out))
	assert.Equal(t, model.StatusDestroying, f.Cluster(t).Status)

	require.NoError(t, ConfirmDestroyed(ctx, "", mtesting.ClusterID, &out))
	assert.Equal(t, model.StatusDestroyed, f.Cluster(t).Status)

	assert.Equal(t, strings.Join([]string{
		"Cluster cluster-1 is running",
		"Cluster cluster-1 is being destroyed",
		"Cluster cluster-1 destroyed",
		"",
	}, "\n"), out.String())
}

func TestProvisionCluster_NotFound(t *testing.T) {
	useFixture(t)

	err := ProvisionCluster(mtesting.TestContext(t), "", "missing", &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindClusterNotFound))
}

func TestRun_Interrupted(t *testing.T) {
	f := useFixture(t)
	f.AddProject(t)
	f.AddCluster(t)

	ctx, cancel := context.WithCancel(mtesting.TestContext(t))
	cancel()

	err := ProvisionCluster(ctx, "", mtesting.ClusterID, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMigrate(t *testing.T) {
	dbURL := "sqlite:" + filepath.Join(t.TempDir(), "metal.db")
	origLoad := loadConfig
	t.Cleanup(func() { loadConfig = origLoad })
	loadConfig = func(string) (*config.Config, error) {
		return &config.Config{DatabaseURL: dbURL}, nil
	}
	var out bytes.Buffer

	require.NoError(t, Migrate(mtesting.TestContext(t), "", &out))
	assert.Equal(t, "Schema is up to date\n", out.String())

	db, err := rdb.OpenFromURL(dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { closeQuietly(db) })
	for _, table := range []string{"hetzner_projects", "hetzner_clusters", "hetzner_node_groups"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
