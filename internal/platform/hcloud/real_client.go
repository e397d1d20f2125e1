package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/metal/internal/config"
)

// RealClient implements CloudProvider using the Hetzner Cloud API.
type RealClient struct {
	client   *hcloud.Client
	timeouts *config.Timeouts
}

// ClientOption configures a RealClient.
type ClientOption func(*RealClient)

// WithTimeouts sets custom timeouts for the client.
func WithTimeouts(t *config.Timeouts) ClientOption {
	return func(c *RealClient) {
		c.timeouts = t
	}
}

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) ClientOption {
	return func(c *RealClient) {
		c.client = hc
	}
}

// WithEndpoint points the client at a different API endpoint.
func WithEndpoint(token, endpoint string) ClientOption {
	return func(c *RealClient) {
		c.client = hcloud.NewClient(
			hcloud.WithToken(token),
			hcloud.WithEndpoint(endpoint),
			hcloud.WithApplication("metal", ""),
		)
	}
}

// NewRealClient creates a new RealClient with optional configuration.
func NewRealClient(token string, opts ...ClientOption) *RealClient {
	c := &RealClient{
		client:   hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("metal", "")),
		timeouts: config.LoadTimeouts(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ CloudProvider = (*RealClient)(nil)

// ValidateToken lists locations, the cheapest authenticated read.
func (c *RealClient) ValidateToken(ctx context.Context) error {
	if _, err := c.client.Location.All(ctx); err != nil {
		return fmt.Errorf("failed to validate token: %w", err)
	}
	return nil
}
