package s3

import (
	"context"
	"fmt"
)

// ManifestArchive stores generated cluster manifests under
// clusters/<cluster-id>/manifest-<clusterctl-version>.yaml.
type ManifestArchive struct {
	client *Client
	bucket string
}

// NewManifestArchive returns an archive writing to bucket.
func NewManifestArchive(client *Client, bucket string) *ManifestArchive {
	return &ManifestArchive{client: client, bucket: bucket}
}

// ManifestKey is the object key for a cluster manifest.
func ManifestKey(clusterID, toolVersion string) string {
	return fmt.Sprintf("clusters/%s/manifest-%s.yaml", clusterID, toolVersion)
}

// Store uploads manifest and returns its object key.
func (a *ManifestArchive) Store(ctx context.Context, clusterID, toolVersion string, manifest []byte) (string, error) {
	if err := a.client.EnsureBucket(ctx, a.bucket); err != nil {
		return "", err
	}
	key := ManifestKey(clusterID, toolVersion)
	if err := a.client.PutObject(ctx, a.bucket, key, "application/yaml", manifest); err != nil {
		return "", err
	}
	return key, nil
}
