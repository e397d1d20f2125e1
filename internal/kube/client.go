package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	unstructured "k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// FieldManager identifies the orchestrator in server-side apply.
const FieldManager = "metal"

// Client provides Kubernetes operations used by the provisioning stages.
type Client interface {
	// ApplyManifests applies multi-document YAML using Server-Side Apply.
	ApplyManifests(ctx context.Context, manifests []byte) error

	// Apply applies a single object using Server-Side Apply.
	Apply(ctx context.Context, obj *unstructured.Unstructured) error

	// Get returns the object, or nil when it (or its kind) does not exist.
	Get(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) (*unstructured.Unstructured, error)

	// Delete deletes the object, returning nil if not found.
	Delete(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) error

	// GetSecret returns the secret, or nil when it does not exist.
	GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error)

	// EnsureSecret creates the secret unless one with the same name exists,
	// in which case the existing secret is returned unchanged.
	EnsureSecret(ctx context.Context, secret *corev1.Secret) (*corev1.Secret, error)

	// DeleteSecret deletes a secret, returning nil if not found.
	DeleteSecret(ctx context.Context, namespace, name string) error

	// EnsureNamespace creates the namespace if it does not exist.
	EnsureNamespace(ctx context.Context, name string) error

	// NodeExternalIPs returns one external IP per node, ordered by node name.
	NodeExternalIPs(ctx context.Context) ([]string, error)

	// RemoveNodeTaint removes the taint with key from every node and
	// returns how many nodes were changed.
	RemoveNodeTaint(ctx context.Context, key string) (int, error)

	// DaemonSetReady reports whether every scheduled pod of the daemonset
	// is updated and ready.
	DaemonSetReady(ctx context.Context, namespace, name string) (bool, error)

	// ListPods lists pods matching a label selector.
	ListPods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error)

	// Exec runs a command in a pod container and returns its output.
	Exec(ctx context.Context, req ExecRequest) (stdout, stderr string, err error)

	// Ready returns nil when the API server reports itself ready.
	Ready(ctx context.Context) error
}

// client implements the Client interface using k8s.io/client-go.
type client struct {
	clientset     kubernetes.Interface
	dynamicClient dynamic.Interface
	mapper        meta.RESTMapper
	restConfig    *rest.Config
}

var _ Client = (*client)(nil)

// NewFromKubeconfig creates a Client from kubeconfig bytes. No request is
// made until the client is used, so a client can be built for an API
// server that is still coming up.
func NewFromKubeconfig(kubeconfig []byte) (Client, error) {
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create REST config from kubeconfig: %w", err)
	}
	return NewFromRESTConfig(restConfig)
}

// NewFromRESTConfig creates a Client from a REST config.
func NewFromRESTConfig(restConfig *rest.Config) (Client, error) {
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}

	// Discovery is deferred and cached; CRDs installed later are picked up
	// by resetting the mapper on a kind mismatch.
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(discoveryClient))

	return &client{
		clientset:     clientset,
		dynamicClient: dynamicClient,
		mapper:        mapper,
		restConfig:    restConfig,
	}, nil
}

// NewFromClients creates a Client from pre-configured clients.
// This is useful for testing with fake clients; Exec needs a REST config
// and fails on such a client.
func NewFromClients(
	clientset kubernetes.Interface,
	dynamicClient dynamic.Interface,
	mapper meta.RESTMapper,
) Client {
	return &client{
		clientset:     clientset,
		dynamicClient: dynamicClient,
		mapper:        mapper,
	}
}

// resource maps a GVK to its dynamic resource interface, refreshing
// discovery once when the kind is unknown.
func (c *client) resource(gvk schema.GroupVersionKind, namespace string) (dynamic.ResourceInterface, error) {
	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if meta.IsNoMatchError(err) {
		if r, ok := c.mapper.(meta.ResettableRESTMapper); ok {
			r.Reset()
			mapping, err = c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		}
	}
	if err != nil {
		return nil, err
	}

	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		if namespace == "" {
			namespace = corev1.NamespaceDefault
		}
		return c.dynamicClient.Resource(mapping.Resource).Namespace(namespace), nil
	}
	return c.dynamicClient.Resource(mapping.Resource), nil
}
