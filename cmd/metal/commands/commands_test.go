package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := Root()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	SetVersionInfo("v1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "metal v1.2.3\n  commit: abc123\n  built:  2026-01-01\n", out)
}

func TestRoot_Subcommands(t *testing.T) {
	root := Root()
	for _, path := range [][]string{
		{"project", "create"},
		{"project", "delete"},
		{"cluster", "create"},
		{"cluster", "provision"},
		{"cluster", "delete"},
		{"cluster", "force-delete-servers"},
		{"cluster", "confirm-destroyed"},
		{"migrate"},
		{"version"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRoot_Flags(t *testing.T) {
	root := Root()
	for _, name := range []string{"config", "metrics-addr", "zap-log-level", "zap-devel"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestProjectCreate_RequiresTeam(t *testing.T) {
	_, err := execute(t, "project", "create", "--name", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "team")
}

func TestProjectCreate_KeyFilesTogether(t *testing.T) {
	_, err := execute(t, "project", "create", "--team", "t", "--public-key-file", "id.pub")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private-key-file")
}

func TestClusterProvision_RequiresID(t *testing.T) {
	_, err := execute(t, "cluster", "provision")
	require.Error(t, err)
}

func TestReadOptional(t *testing.T) {
	s, err := readOptional("")
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = readOptional(t.TempDir() + "/missing")
	require.Error(t, err)
}
