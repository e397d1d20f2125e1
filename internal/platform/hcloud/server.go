package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/metal/internal/util/retry"
)

// ListServers returns every server of the project.
func (c *RealClient) ListServers(ctx context.Context) ([]Server, error) {
	servers, err := c.client.Server.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	out := make([]Server, 0, len(servers))
	for _, s := range servers {
		srv := Server{ID: s.ID, Name: s.Name, Labels: s.Labels}
		if ip := s.PublicNet.IPv4.IP; ip != nil && !ip.IsUnspecified() {
			srv.PublicIPv4 = ip.String()
		}
		out = append(out, srv)
	}
	return out, nil
}

// DeleteServer deletes a server and waits for the delete action.
func (c *RealClient) DeleteServer(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.ServerDelete)
	defer cancel()

	return retry.WithExponentialBackoff(ctx, func() error {
		result, _, err := c.client.Server.DeleteWithResult(ctx, &hcloud.Server{ID: id})
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			if isResourceLocked(err) {
				return fmt.Errorf("server %d is locked: %w", id, err)
			}
			return retry.Fatal(fmt.Errorf("failed to delete server %d: %w", id, err))
		}
		if result == nil || result.Action == nil {
			return nil
		}
		if err := c.client.Action.WaitFor(ctx, result.Action); err != nil {
			return retry.Fatal(fmt.Errorf("failed waiting for server %d deletion: %w", id, err))
		}
		return nil
	}, retry.WithMaxRetries(c.timeouts.RetryMaxAttempts), retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
}
