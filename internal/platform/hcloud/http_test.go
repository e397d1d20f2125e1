package hcloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/hetznercloud/hcloud-go/v2/hcloud/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/metal/internal/config"
)

// testServer creates an httptest server that can be used to mock Hetzner Cloud API responses.
type testServer struct {
	server *httptest.Server
	mux    *http.ServeMux
}

// newTestServer creates a new test server for mocking the Hetzner Cloud API.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testServer{server: server, mux: mux}
}

// realClient returns a RealClient configured to use the test server.
func (ts *testServer) realClient() *RealClient {
	return NewRealClient("test-token",
		WithHCloudClient(hcloud.NewClient(
			hcloud.WithToken("test-token"),
			hcloud.WithEndpoint(ts.server.URL),
		)),
		WithTimeouts(config.TestTimeouts()),
	)
}

// handleFunc registers a handler for a specific path.
func (ts *testServer) handleFunc(pattern string, handler http.HandlerFunc) {
	ts.mux.HandleFunc(pattern, handler)
}

// jsonResponse writes a JSON response with the given status code and body.
func jsonResponse(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func errorResponse(w http.ResponseWriter, statusCode int, code hcloud.ErrorCode) {
	jsonResponse(w, statusCode, schema.ErrorResponse{
		Error: schema.Error{Code: string(code), Message: string(code)},
	})
}

func TestRealClient_ValidateToken(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.handleFunc("/locations", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			errorResponse(w, http.StatusUnauthorized, hcloud.ErrorCodeUnauthorized)
			return
		}
		jsonResponse(w, http.StatusOK, schema.LocationListResponse{
			Locations: []schema.Location{{ID: 1, Name: "fsn1"}},
		})
	})

	require.NoError(t, ts.realClient().ValidateToken(context.Background()))
}

func TestRealClient_ValidateToken_Unauthorized(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.handleFunc("/locations", func(w http.ResponseWriter, _ *http.Request) {
		errorResponse(w, http.StatusUnauthorized, hcloud.ErrorCodeUnauthorized)
	})

	err := ts.realClient().ValidateToken(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestRealClient_ValidateToken_OtherErrorIsNotUnauthorized(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.handleFunc("/locations", func(w http.ResponseWriter, _ *http.Request) {
		errorResponse(w, http.StatusBadRequest, hcloud.ErrorCodeInvalidInput)
	})

	err := ts.realClient().ValidateToken(context.Background())
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
}

func TestRealClient_GetSSHKeyByName(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "metal-p1" {
			jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{
				SSHKeys: []schema.SSHKey{{ID: 42, Name: "metal-p1", PublicKey: "ssh-ed25519 AAAA", Fingerprint: "fp"}},
			})
			return
		}
		jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: []schema.SSHKey{}})
	})

	client := ts.realClient()

	key, err := client.GetSSHKeyByName(context.Background(), "metal-p1")
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, int64(42), key.ID)
	assert.Equal(t, "ssh-ed25519 AAAA", key.PublicKey)

	key, err = client.GetSSHKeyByName(context.Background(), "metal-absent")
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestRealClient_CreateSSHKey(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req struct {
			Name      string            `json:"name"`
			PublicKey string            `json:"public_key"`
			Labels    map[string]string `json:"labels"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "metal-p1", req.Name)
		assert.Equal(t, "metal", req.Labels["managed-by"])
		jsonResponse(w, http.StatusCreated, schema.SSHKeyCreateResponse{
			SSHKey: schema.SSHKey{ID: 7, Name: req.Name, PublicKey: req.PublicKey},
		})
	})

	key, err := ts.realClient().CreateSSHKey(context.Background(), "metal-p1", "ssh-ed25519 BBBB", map[string]string{"managed-by": "metal"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), key.ID)
	assert.Equal(t, "ssh-ed25519 BBBB", key.PublicKey)
}

func TestRealClient_DeleteSSHKey(t *testing.T) {
	t.Parallel()

	var deleted atomic.Bool
	ts := newTestServer(t)
	ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "metal-p1" {
			jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: []schema.SSHKey{{ID: 9, Name: "metal-p1"}}})
			return
		}
		jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: []schema.SSHKey{}})
	})
	ts.handleFunc("/ssh_keys/9", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})

	client := ts.realClient()
	require.NoError(t, client.DeleteSSHKey(context.Background(), "metal-p1"))
	assert.True(t, deleted.Load())

	require.NoError(t, client.DeleteSSHKey(context.Background(), "metal-absent"))
}

func TestRealClient_ListServers(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.handleFunc("/servers", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, schema.ServerListResponse{
			Servers: []schema.Server{
				{ID: 1, Name: "brave-otter-md-0-abc", PublicNet: schema.ServerPublicNet{IPv4: schema.ServerPublicNetIPv4{IP: "203.0.113.10"}}},
				{ID: 2, Name: "private-only"},
			},
		})
	})

	servers, err := ts.realClient().ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "203.0.113.10", servers[0].PublicIPv4)
	assert.Empty(t, servers[1].PublicIPv4)
}

func TestRealClient_DeleteServer(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.handleFunc("/servers/789", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			jsonResponse(w, http.StatusOK, schema.ServerDeleteResponse{
				Action: schema.Action{ID: 1, Status: "success"},
			})
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	ts.handleFunc("/actions", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, schema.ActionListResponse{
			Actions: []schema.Action{{ID: 1, Status: "success", Progress: 100}},
		})
	})

	require.NoError(t, ts.realClient().DeleteServer(context.Background(), 789))
}

func TestRealClient_DeleteServer_RetriesWhileLocked(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := newTestServer(t)
	ts.handleFunc("/servers/5", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			errorResponse(w, http.StatusLocked, hcloud.ErrorCodeLocked)
			return
		}
		jsonResponse(w, http.StatusOK, schema.ServerDeleteResponse{
			Action: schema.Action{ID: 2, Status: "success"},
		})
	})
	ts.handleFunc("/actions", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, schema.ActionListResponse{
			Actions: []schema.Action{{ID: 2, Status: "success", Progress: 100}},
		})
	})

	require.NoError(t, ts.realClient().DeleteServer(context.Background(), 5))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRealClient_DeleteServer_NotFoundIsSuccess(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.handleFunc("/servers/6", func(w http.ResponseWriter, _ *http.Request) {
		errorResponse(w, http.StatusNotFound, hcloud.ErrorCodeNotFound)
	})

	require.NoError(t, ts.realClient().DeleteServer(context.Background(), 6))
}

func TestRealClient_DeleteServer_FatalError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := newTestServer(t)
	ts.handleFunc("/servers/8", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		errorResponse(w, http.StatusForbidden, hcloud.ErrorCodeForbidden)
	})

	err := ts.realClient().DeleteServer(context.Background(), 8)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to delete server 8"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFactory(t *testing.T) {
	t.Parallel()

	f := NewFactory(WithTimeouts(config.TestTimeouts()))
	assert.IsType(t, &RealClient{}, f("token"))
}
