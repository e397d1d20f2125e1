package kube

import (
	"context"
	"fmt"
)

// Ready queries the API server's /readyz endpoint. Clients built from
// fakes fall back to a version request.
func (c *client) Ready(ctx context.Context) error {
	if c.restConfig == nil {
		if _, err := c.clientset.Discovery().ServerVersion(); err != nil {
			return fmt.Errorf("api server not reachable: %w", err)
		}
		return nil
	}

	body, err := c.clientset.Discovery().RESTClient().Get().AbsPath("/readyz").DoRaw(ctx)
	if err != nil {
		return fmt.Errorf("api server not ready: %w", err)
	}
	if string(body) != "ok" {
		return fmt.Errorf("api server not ready: %s", body)
	}
	return nil
}
