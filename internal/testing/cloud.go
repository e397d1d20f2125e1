package testing

import (
	"context"
	"fmt"
	"sync"

	hcloudapi "github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/metal/internal/platform/hcloud"
)

// FakeCloud is an in-memory Hetzner Cloud project. Only ValidToken is
// accepted; any other token gets an unauthorized API error.
type FakeCloud struct {
	ValidToken string
	Log        *CallLog
	// DeleteServerErr fails DeleteServer for a server id.
	DeleteServerErr map[int64]error

	mu      sync.Mutex
	nextID  int64
	keys    map[string]*hcloud.SSHKey
	servers map[int64]hcloud.Server
}

// NewFakeCloud creates an empty project accepting token.
func NewFakeCloud(token string, log *CallLog) *FakeCloud {
	return &FakeCloud{
		ValidToken:      token,
		Log:             log,
		DeleteServerErr: map[int64]error{},
		keys:            map[string]*hcloud.SSHKey{},
		servers:         map[int64]hcloud.Server{},
	}
}

// Factory returns an hcloud.Factory producing clients of this project.
func (c *FakeCloud) Factory() hcloud.Factory {
	return func(token string) hcloud.CloudProvider {
		return &fakeCloudClient{cloud: c, token: token}
	}
}

// AddSSHKey registers a key without recording a call.
func (c *FakeCloud) AddSSHKey(name, publicKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.keys[name] = &hcloud.SSHKey{ID: c.nextID, Name: name, PublicKey: publicKey}
}

// SSHKey returns a registered key, or nil.
func (c *FakeCloud) SSHKey(name string) *hcloud.SSHKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.keys[name]
	if !ok {
		return nil
	}
	cp := *k
	return &cp
}

// AddServer adds a server without recording a call.
func (c *FakeCloud) AddServer(s hcloud.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[s.ID] = s
}

// ServerIDs returns the ids of the remaining servers.
func (c *FakeCloud) ServerIDs() map[int64]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make(map[int64]bool, len(c.servers))
	for id := range c.servers {
		ids[id] = true
	}
	return ids
}

type fakeCloudClient struct {
	cloud *FakeCloud
	token string
}

func (f *fakeCloudClient) authorize(call string) error {
	f.cloud.Log.Add("cloud %s", call)
	if f.token != f.cloud.ValidToken {
		return hcloudapi.Error{Code: hcloudapi.ErrorCodeUnauthorized, Message: "unable to authenticate"}
	}
	return nil
}

func (f *fakeCloudClient) ValidateToken(context.Context) error {
	return f.authorize("validate-token")
}

func (f *fakeCloudClient) GetSSHKeyByName(_ context.Context, name string) (*hcloud.SSHKey, error) {
	if err := f.authorize("get-ssh-key " + name); err != nil {
		return nil, err
	}
	return f.cloud.SSHKey(name), nil
}

func (f *fakeCloudClient) CreateSSHKey(_ context.Context, name, publicKey string, _ map[string]string) (*hcloud.SSHKey, error) {
	if err := f.authorize("create-ssh-key " + name); err != nil {
		return nil, err
	}
	if f.cloud.SSHKey(name) != nil {
		return nil, hcloudapi.Error{Code: hcloudapi.ErrorCodeUniquenessError, Message: "SSH key with the same name already exists"}
	}
	f.cloud.AddSSHKey(name, publicKey)
	return f.cloud.SSHKey(name), nil
}

func (f *fakeCloudClient) DeleteSSHKey(_ context.Context, name string) error {
	if err := f.authorize("delete-ssh-key " + name); err != nil {
		return err
	}
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	delete(f.cloud.keys, name)
	return nil
}

func (f *fakeCloudClient) ListServers(context.Context) ([]hcloud.Server, error) {
	if err := f.authorize("list-servers"); err != nil {
		return nil, err
	}
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	out := make([]hcloud.Server, 0, len(f.cloud.servers))
	for _, s := range f.cloud.servers {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeCloudClient) DeleteServer(_ context.Context, id int64) error {
	if err := f.authorize(fmt.Sprintf("delete-server %d", id)); err != nil {
		return err
	}
	if err := f.cloud.DeleteServerErr[id]; err != nil {
		return err
	}
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	delete(f.cloud.servers, id)
	return nil
}
