package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to ClusterStatus
		want     bool
	}{
		{StatusCreating, StatusInitializing, true},
		{StatusCreating, StatusRunning, true},
		{StatusInitializing, StatusRunning, true},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusDestroying, true},
		{StatusDestroying, StatusDestroyed, true},
		{StatusRunning, StatusCreating, false},
		{StatusInitializing, StatusCreating, false},
		{StatusDestroying, StatusRunning, false},
		{StatusCreating, StatusError, true},
		{StatusDestroying, StatusError, true},
		{StatusDestroyed, StatusError, false},
		{StatusError, StatusRunning, false},
		{StatusError, StatusDestroying, false},
		{StatusError, StatusError, true},
		{ClusterStatus("bogus"), StatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPredecessors(t *testing.T) {
	t.Parallel()

	assert.ElementsMatch(t, []ClusterStatus{StatusCreating, StatusInitializing}, Predecessors(StatusInitializing))
	assert.ElementsMatch(t,
		[]ClusterStatus{StatusCreating, StatusInitializing, StatusRunning, StatusUpdating, StatusDestroying, StatusError},
		Predecessors(StatusError))
}

func TestParseClusterStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseClusterStatus("running")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, s)

	_, err = ParseClusterStatus("paused")
	assert.Error(t, err)
}

func TestNodeGroup_Validate(t *testing.T) {
	t.Parallel()

	ok := NodeGroup{ID: "ng", InstanceType: "cx22", MinNodes: 1, MaxNodes: 1}
	assert.NoError(t, ok.Validate())

	scaled := NodeGroup{ID: "ng", InstanceType: "cx22", MinNodes: 1, MaxNodes: 3}
	assert.ErrorContains(t, scaled.Validate(), "must match")

	empty := NodeGroup{ID: "ng", InstanceType: "cx22"}
	assert.Error(t, empty.Validate())

	assert.Equal(t, 4, WorkerCount([]NodeGroup{{MaxNodes: 1}, {MaxNodes: 3}}))
}

func TestProject_Decoding(t *testing.T) {
	t.Parallel()

	p := Project{EncodedAPIToken: Encode("tok"), EncodedPublicKey: Encode("ssh-ed25519 AAAA")}
	tok, err := p.APIToken()
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	user, pass, err := p.WebServiceCredentials()
	require.NoError(t, err)
	assert.Empty(t, user)
	assert.Empty(t, pass)

	p.EncodedAPIToken = "%%%"
	_, err = p.APIToken()
	assert.Error(t, err)
}
