package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/imamik/metal/internal/helm"
	"github.com/imamik/metal/internal/kube"
)

// Reactor runs after an object of its kind is applied, standing in for the
// controller that would act on it.
type Reactor func(t *FakeTarget, obj *unstructured.Unstructured)

// FakeTarget is an in-memory kube.Target. Mutations are recorded in Log as
// "<name> <verb> <subject>", for example "tenant uninstall minio/tenant".
type FakeTarget struct {
	Name string
	Log  *CallLog

	// ExternalIPs are returned by NodeExternalIPs.
	ExternalIPs []string
	// Taints are the taint keys present on the nodes.
	Taints map[string]bool
	// DaemonSetsReady reports readiness by "namespace/name". Unknown
	// daemonsets use DaemonSetDefault.
	DaemonSetsReady  map[string]bool
	DaemonSetDefault bool
	// Pods are returned by ListPods per namespace.
	Pods map[string][]corev1.Pod
	// ExecFunc answers Exec; nil returns empty output.
	ExecFunc func(req kube.ExecRequest) (string, string, error)
	// ReadyErr is returned by Ready.
	ReadyErr error
	// InstallErr fails InstallOrUpgrade for a release name.
	InstallErr map[string]error
	// Reactors run after Apply, keyed by kind.
	Reactors map[string]Reactor

	mu         sync.Mutex
	objects    map[string]*unstructured.Unstructured
	secrets    map[string]*corev1.Secret
	namespaces map[string]bool
	releases   map[string]helm.Release
}

var _ kube.Target = (*FakeTarget)(nil)

// NewFakeTarget creates an empty target logging to log.
func NewFakeTarget(name string, log *CallLog) *FakeTarget {
	return &FakeTarget{
		Name:             name,
		Log:              log,
		Taints:           map[string]bool{},
		DaemonSetsReady:  map[string]bool{},
		DaemonSetDefault: true,
		Pods:             map[string][]corev1.Pod{},
		InstallErr:       map[string]error{},
		Reactors:         map[string]Reactor{},
		objects:          map[string]*unstructured.Unstructured{},
		secrets:          map[string]*corev1.Secret{},
		namespaces:       map[string]bool{},
		releases:         map[string]helm.Release{},
	}
}

func objectKey(kind, namespace, name string) string {
	return kind + "/" + namespace + "/" + name
}

func (f *FakeTarget) record(verb, subject string) {
	f.Log.Add("%s %s %s", f.Name, verb, subject)
}

// Put stores obj without recording a call or running reactors.
func (f *FakeTarget) Put(obj *unstructured.Unstructured) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey(obj.GetKind(), obj.GetNamespace(), obj.GetName())] = obj.DeepCopy()
}

// PutSecret stores a secret without recording a call.
func (f *FakeTarget) PutSecret(secret *corev1.Secret) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[secret.Namespace+"/"+secret.Name] = secret.DeepCopy()
}

// SetField sets a nested field of a stored object, creating the object if
// needed. Tests use it to simulate status written by controllers.
func (f *FakeTarget) SetField(gvk schema.GroupVersionKind, namespace, name string, value any, fields ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := objectKey(gvk.Kind, namespace, name)
	obj, ok := f.objects[key]
	if !ok {
		obj = &unstructured.Unstructured{Object: map[string]any{}}
		obj.SetGroupVersionKind(gvk)
		obj.SetNamespace(namespace)
		obj.SetName(name)
		f.objects[key] = obj
	}
	if err := unstructured.SetNestedField(obj.Object, value, fields...); err != nil {
		panic(err)
	}
}

// Has reports whether an object exists.
func (f *FakeTarget) Has(kind, namespace, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[objectKey(kind, namespace, name)]
	return ok
}

// Objects returns the stored objects of a kind.
func (f *FakeTarget) Objects(kind string) []*unstructured.Unstructured {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*unstructured.Unstructured
	for _, obj := range f.objects {
		if obj.GetKind() == kind {
			out = append(out, obj.DeepCopy())
		}
	}
	return out
}

func (f *FakeTarget) ApplyManifests(ctx context.Context, manifests []byte) error {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifests), 4096)
	for {
		var obj unstructured.Unstructured
		if err := decoder.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(obj.Object) == 0 {
			continue
		}
		if err := f.Apply(ctx, &obj); err != nil {
			return err
		}
	}
}

func (f *FakeTarget) Apply(_ context.Context, obj *unstructured.Unstructured) error {
	if obj.GetKind() == "" {
		return fmt.Errorf("object %q has no kind set", obj.GetName())
	}
	f.mu.Lock()
	key := objectKey(obj.GetKind(), obj.GetNamespace(), obj.GetName())
	stored := obj.DeepCopy()
	if prev, ok := f.objects[key]; ok {
		if status, found := prev.Object["status"]; found {
			stored.Object["status"] = status
		}
	}
	f.objects[key] = stored
	reactor := f.Reactors[obj.GetKind()]
	f.mu.Unlock()

	f.record("apply", fmt.Sprintf("%s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName()))
	if reactor != nil {
		reactor(f, stored.DeepCopy())
	}
	return nil
}

func (f *FakeTarget) Get(_ context.Context, gvk schema.GroupVersionKind, namespace, name string) (*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectKey(gvk.Kind, namespace, name)]
	if !ok {
		return nil, nil
	}
	return obj.DeepCopy(), nil
}

func (f *FakeTarget) Delete(_ context.Context, gvk schema.GroupVersionKind, namespace, name string) error {
	f.mu.Lock()
	delete(f.objects, objectKey(gvk.Kind, namespace, name))
	f.mu.Unlock()
	f.record("delete", fmt.Sprintf("%s %s/%s", gvk.Kind, namespace, name))
	return nil
}

func (f *FakeTarget) GetSecret(_ context.Context, namespace, name string) (*corev1.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[namespace+"/"+name]
	if !ok {
		return nil, nil
	}
	return s.DeepCopy(), nil
}

func (f *FakeTarget) EnsureSecret(_ context.Context, secret *corev1.Secret) (*corev1.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := secret.Namespace + "/" + secret.Name
	if s, ok := f.secrets[key]; ok {
		return s.DeepCopy(), nil
	}
	stored := secret.DeepCopy()
	if stored.Data == nil {
		stored.Data = map[string][]byte{}
	}
	for k, v := range stored.StringData {
		stored.Data[k] = []byte(v)
	}
	stored.StringData = nil
	f.secrets[key] = stored
	f.Log.Add("%s create secret %s", f.Name, key)
	return stored.DeepCopy(), nil
}

func (f *FakeTarget) DeleteSecret(_ context.Context, namespace, name string) error {
	f.mu.Lock()
	delete(f.secrets, namespace+"/"+name)
	f.mu.Unlock()
	f.record("delete", "Secret "+namespace+"/"+name)
	return nil
}

func (f *FakeTarget) EnsureNamespace(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.namespaces[name] {
		f.namespaces[name] = true
		f.Log.Add("%s create namespace %s", f.Name, name)
	}
	return nil
}

func (f *FakeTarget) NodeExternalIPs(context.Context) ([]string, error) {
	return append([]string(nil), f.ExternalIPs...), nil
}

func (f *FakeTarget) RemoveNodeTaint(_ context.Context, key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Taints[key] {
		return 0, nil
	}
	delete(f.Taints, key)
	f.Log.Add("%s untaint %s", f.Name, key)
	return 1, nil
}

func (f *FakeTarget) DaemonSetReady(_ context.Context, namespace, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ready, ok := f.DaemonSetsReady[namespace+"/"+name]; ok {
		return ready, nil
	}
	return f.DaemonSetDefault, nil
}

func (f *FakeTarget) ListPods(_ context.Context, namespace, _ string) ([]corev1.Pod, error) {
	return f.Pods[namespace], nil
}

func (f *FakeTarget) Exec(_ context.Context, req kube.ExecRequest) (string, string, error) {
	f.record("exec", req.Namespace+"/"+req.Pod)
	if f.ExecFunc == nil {
		return "", "", nil
	}
	return f.ExecFunc(req)
}

func (f *FakeTarget) Ready(context.Context) error {
	return f.ReadyErr
}

func (f *FakeTarget) InstallOrUpgrade(_ context.Context, rel helm.Release) error {
	key := rel.Namespace + "/" + rel.Name
	f.record("install", key)
	if err := f.InstallErr[rel.Name]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases[key] = rel
	return nil
}

func (f *FakeTarget) ReleaseDeployed(_ context.Context, namespace, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.releases[namespace+"/"+name]
	return ok, nil
}

func (f *FakeTarget) Uninstall(_ context.Context, namespace, name string, _ time.Duration) error {
	f.mu.Lock()
	delete(f.releases, namespace+"/"+name)
	f.mu.Unlock()
	f.record("uninstall", namespace+"/"+name)
	return nil
}

// Release returns an installed release.
func (f *FakeTarget) Release(namespace, name string) (helm.Release, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rel, ok := f.releases[namespace+"/"+name]
	return rel, ok
}

// SetRelease marks a release as deployed without recording a call.
func (f *FakeTarget) SetRelease(namespace, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases[namespace+"/"+name] = helm.Release{Name: name, Namespace: namespace}
}
