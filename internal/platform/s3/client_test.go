package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is a minimal path-style S3 endpoint.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]string
	creates int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.creates++
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case len(parts) == 2 && r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+parts[1]] = string(body)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Options{
		Endpoint:  srv.URL,
		Region:    "eu-central",
		AccessKey: "access",
		SecretKey: "secret",
		PathStyle: true,
	})
	require.NoError(t, err)
	return client, fake
}

func TestManifestArchive_Store(t *testing.T) {
	t.Parallel()

	client, fake := newFakeClient(t)
	archive := NewManifestArchive(client, "manifests")

	key, err := archive.Store(context.Background(), "c1", "v1.9.4", []byte("kind: Cluster\n"))
	require.NoError(t, err)
	assert.Equal(t, "clusters/c1/manifest-v1.9.4.yaml", key)

	_, err = archive.Store(context.Background(), "c1", "v1.9.5", []byte("kind: Cluster\n"))
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.creates)
	assert.Contains(t, fake.objects["manifests/clusters/c1/manifest-v1.9.4.yaml"], "kind: Cluster")
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	assert.False(t, isNotFoundError(nil))
	assert.False(t, isBucketAlreadyOwnedByYou(nil))
	assert.True(t, isNotFoundError(&smithy.GenericAPIError{Code: "NoSuchBucket"}))
	assert.True(t, isBucketAlreadyOwnedByYou(&smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"}))
	assert.False(t, isNotFoundError(errors.New("boom")))
}
