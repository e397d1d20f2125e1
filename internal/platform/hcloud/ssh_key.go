package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

func sshKeyFromAPI(k *hcloud.SSHKey) *SSHKey {
	return &SSHKey{ID: k.ID, Name: k.Name, PublicKey: k.PublicKey, Fingerprint: k.Fingerprint}
}

// GetSSHKeyByName returns the key with the given name, or nil.
func (c *RealClient) GetSSHKeyByName(ctx context.Context, name string) (*SSHKey, error) {
	key, _, err := c.client.SSHKey.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get ssh key %s: %w", name, err)
	}
	if key == nil {
		return nil, nil
	}
	return sshKeyFromAPI(key), nil
}

// CreateSSHKey registers a public key under name.
func (c *RealClient) CreateSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (*SSHKey, error) {
	key, _, err := c.client.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{
		Name:      name,
		PublicKey: publicKey,
		Labels:    labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh key: %w", err)
	}
	return sshKeyFromAPI(key), nil
}

// DeleteSSHKey deletes the SSH key with the given name.
func (c *RealClient) DeleteSSHKey(ctx context.Context, name string) error {
	key, _, err := c.client.SSHKey.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to get ssh key %s: %w", name, err)
	}
	if key == nil {
		return nil
	}
	if _, err := c.client.SSHKey.Delete(ctx, key); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete ssh key %s: %w", name, err)
	}
	return nil
}
