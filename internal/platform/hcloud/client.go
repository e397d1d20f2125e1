package hcloud

import "context"

// SSHKey is an SSH key registered on a Hetzner Cloud project.
type SSHKey struct {
	ID          int64
	Name        string
	PublicKey   string
	Fingerprint string
}

// Server is the subset of a compute server the teardown tool matches on.
type Server struct {
	ID         int64
	Name       string
	PublicIPv4 string
	Labels     map[string]string
}

// CloudProvider is the Hetzner Cloud API surface used by the workflows.
// A rejected token surfaces as an error for which IsUnauthorized is true.
type CloudProvider interface {
	// ValidateToken performs a cheap read-only call with the token.
	ValidateToken(ctx context.Context) error

	// GetSSHKeyByName returns nil when no key has that name.
	GetSSHKeyByName(ctx context.Context, name string) (*SSHKey, error)
	CreateSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (*SSHKey, error)
	// DeleteSSHKey succeeds when the key does not exist.
	DeleteSSHKey(ctx context.Context, name string) error

	ListServers(ctx context.Context) ([]Server, error)
	// DeleteServer succeeds when the server does not exist and retries
	// while the server is locked by a running action.
	DeleteServer(ctx context.Context, id int64) error
}

// Factory builds a CloudProvider for a project's API token.
type Factory func(token string) CloudProvider

// NewFactory returns a Factory producing RealClients with opts applied.
func NewFactory(opts ...ClientOption) Factory {
	return func(token string) CloudProvider {
		return NewRealClient(token, opts...)
	}
}
