package testing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/imamik/metal/internal/config"
	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/runner"
	"github.com/imamik/metal/internal/store/memory"
	"github.com/imamik/metal/internal/util/keygen"
)

// Values shared by fixtures and the assertions made against them.
const (
	ValidToken        = "valid-token"
	TeamID            = "team-1"
	ProjectID         = "project-1"
	ClusterID         = "cluster-1"
	ClusterName       = "brave-otter"
	PlatformDomain    = "metal.test"
	ClusterctlVersion = "v1.9.5"
	NodeIP            = "203.0.113.10"
	APIServerHost     = "198.51.100.1"
)

// ClusterTemplate is a trimmed cluster-api provider template with the
// variables clusterctl substitutes.
const ClusterTemplate = `apiVersion: cluster.x-k8s.io/v1beta1
kind: Cluster
metadata:
  name: ${CLUSTER_NAME}
  namespace: ${NAMESPACE}
spec:
  clusterNetwork:
    pods:
      cidrBlocks: ["10.244.0.0/16"]
  controlPlaneRef:
    apiVersion: controlplane.cluster.x-k8s.io/v1beta1
    kind: KubeadmControlPlane
    name: ${CLUSTER_NAME}-control-plane
  infrastructureRef:
    apiVersion: infrastructure.cluster.x-k8s.io/v1beta1
    kind: HetznerCluster
    name: ${CLUSTER_NAME}
---
apiVersion: infrastructure.cluster.x-k8s.io/v1beta1
kind: HetznerCluster
metadata:
  name: ${CLUSTER_NAME}
  namespace: ${NAMESPACE}
spec:
  controlPlaneLoadBalancer:
    region: ${HCLOUD_REGION}
  controlPlaneRegions:
  - ${HCLOUD_REGION}
  hcloudNetwork:
    enabled: true
    networkZone: ${HCLOUD_NETWORK_ZONE}
  hetznerSecretRef:
    key:
      hcloudToken: token
    name: hetzner
  sshKeys:
    hcloud:
    - name: ${HCLOUD_SSH_KEY}
---
apiVersion: controlplane.cluster.x-k8s.io/v1beta1
kind: KubeadmControlPlane
metadata:
  name: ${CLUSTER_NAME}-control-plane
  namespace: ${NAMESPACE}
spec:
  replicas: ${CONTROL_PLANE_MACHINE_COUNT}
  version: ${KUBERNETES_VERSION}
  machineTemplate:
    infrastructureRef:
      apiVersion: infrastructure.cluster.x-k8s.io/v1beta1
      kind: HCloudMachineTemplate
      name: ${CLUSTER_NAME}-control-plane
---
apiVersion: infrastructure.cluster.x-k8s.io/v1beta1
kind: HCloudMachineTemplate
metadata:
  name: ${CLUSTER_NAME}-control-plane
  namespace: ${NAMESPACE}
spec:
  template:
    spec:
      imageName: ubuntu-24.04
      type: ${HCLOUD_CONTROL_PLANE_MACHINE_TYPE}
---
apiVersion: cluster.x-k8s.io/v1beta1
kind: MachineDeployment
metadata:
  name: ${CLUSTER_NAME}-md-0
  namespace: ${NAMESPACE}
spec:
  clusterName: ${CLUSTER_NAME}
  replicas: ${WORKER_MACHINE_COUNT}
  selector:
    matchLabels: {}
  template:
    spec:
      clusterName: ${CLUSTER_NAME}
      failureDomain: ${HCLOUD_REGION}
      version: ${KUBERNETES_VERSION}
      bootstrap:
        configRef:
          apiVersion: bootstrap.cluster.x-k8s.io/v1beta1
          kind: KubeadmConfigTemplate
          name: ${CLUSTER_NAME}-md-0
      infrastructureRef:
        apiVersion: infrastructure.cluster.x-k8s.io/v1beta1
        kind: HCloudMachineTemplate
        name: ${CLUSTER_NAME}-md-0
---
apiVersion: infrastructure.cluster.x-k8s.io/v1beta1
kind: HCloudMachineTemplate
metadata:
  name: ${CLUSTER_NAME}-md-0
  namespace: ${NAMESPACE}
spec:
  template:
    spec:
      imageName: ubuntu-24.04
      type: ${HCLOUD_WORKER_MACHINE_TYPE}
`

// GatewayAPICRDs stands in for the upstream Gateway API install manifest.
const GatewayAPICRDs = `apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: gateways.gateway.networking.k8s.io
spec:
  group: gateway.networking.k8s.io
---
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: httproutes.gateway.networking.k8s.io
spec:
  group: gateway.networking.k8s.io
`

// Kubeconfig returns an admin kubeconfig for a tenant cluster.
func Kubeconfig(cluster string) string {
	return fmt.Sprintf(`apiVersion: v1
kind: Config
clusters:
- name: %[1]s
  cluster:
    server: https://%[2]s:6443
contexts:
- name: %[1]s-admin@%[1]s
  context:
    cluster: %[1]s
    user: %[1]s-admin
current-context: %[1]s-admin@%[1]s
users:
- name: %[1]s-admin
  user:
    token: fake
`, cluster, APIServerHost)
}

// FakeArchive records archived manifests.
type FakeArchive struct {
	Err error

	mu     sync.Mutex
	stored map[string][]byte
}

// Store implements provisioning.ManifestArchive.
func (a *FakeArchive) Store(_ context.Context, clusterID, toolVersion string, manifest []byte) (string, error) {
	if a.Err != nil {
		return "", a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stored == nil {
		a.stored = map[string][]byte{}
	}
	key := clusterID + "/" + toolVersion
	a.stored[key] = manifest
	return key, nil
}

// Stored returns the manifest archived for a cluster and version.
func (a *FakeArchive) Stored(clusterID, toolVersion string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.stored[clusterID+"/"+toolVersion]
	return m, ok
}

// Fixture wires every fake into provisioning.Deps. The management and
// tenant targets share one call log so tests can assert ordering across
// both clusters. Controllers are simulated by reactors: applying the
// cluster-api Cluster publishes a kubeconfig, certificates become ready,
// and rollouts turn healthy.
type Fixture struct {
	Log        *CallLog
	Store      *memory.Store
	Management *FakeTarget
	Tenant     *FakeTarget
	Runner     *FakeRunner
	Cloud      *FakeCloud
	KeyPair    *keygen.KeyPair
	Keys       *MockKeyGenerator
	Archive    *FakeArchive
	Config     *config.Config
	Deps       *provisioning.Deps
	Templates  *httptest.Server

	mu       sync.Mutex
	connects int
}

// NewFixture creates a fixture whose simulated controllers all succeed.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	calls := &CallLog{}
	f := &Fixture{
		Log:        calls,
		Store:      memory.New(),
		Management: NewFakeTarget("mgmt", calls),
		Tenant:     NewFakeTarget("tenant", calls),
		Runner:     NewFakeRunner(),
		Cloud:      NewFakeCloud(ValidToken, calls),
		KeyPair:    NewKeyPair(),
		Archive:    &FakeArchive{},
	}
	f.Keys = NewMockKeyGenerator(f.KeyPair)

	mux := http.NewServeMux()
	mux.HandleFunc("/cluster-template.yaml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(ClusterTemplate))
	})
	mux.HandleFunc("/gateway-api.yaml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(GatewayAPICRDs))
	})
	f.Templates = httptest.NewServer(mux)
	t.Cleanup(f.Templates.Close)

	f.Config = &config.Config{
		ManagementNamespace: "clusters",
		DNSNamespace:        "external-dns",
		PlatformDomain:      PlatformDomain,
		ClusterIssuer:       "letsencrypt-test",
		KubernetesVersion:   "v1.31.6",
		Tools:               config.ToolsConfig{Clusterctl: "clusterctl", SSHKeygen: "ssh-keygen"},
		Templates: config.TemplatesConfig{
			ClusterTemplateURL: f.Templates.URL + "/cluster-template.yaml",
			GatewayAPICRDsURL:  f.Templates.URL + "/gateway-api.yaml",
		},
		Timeouts: config.TestTimeouts(),
	}

	f.Deps = &provisioning.Deps{
		Store:      f.Store,
		Management: f.Management,
		Connect: func([]byte) (kube.Target, error) {
			f.mu.Lock()
			f.connects++
			f.mu.Unlock()
			return f.Tenant, nil
		},
		Runner:     f.Runner,
		Cloud:      f.Cloud.Factory(),
		Keys:       f.Keys,
		Archive:    f.Archive,
		HTTPClient: f.Templates.Client(),
		Config:     f.Config,
		Timeouts:   f.Config.Timeouts,
	}

	f.simulateControllers()
	return f
}

// Connects returns how often the tenant cluster was connected to.
func (f *Fixture) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *Fixture) simulateControllers() {
	f.Runner.Stdout("clusterctl-version", ClusterctlVersion+"\n")
	f.Runner.Handlers["clusterctl-generate"] = RenderTemplate

	f.Management.Reactors["Cluster"] = func(t *FakeTarget, obj *unstructured.Unstructured) {
		ns, name := obj.GetNamespace(), obj.GetName()
		t.SetField(kube.KubeadmControlPlaneGVK, ns, name+"-control-plane", []any{
			map[string]any{"type": "CertificatesAvailable", "status": "True"},
		}, "status", "conditions")
		t.PutSecret(&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: name + "-kubeconfig", Namespace: ns},
			Data:       map[string][]byte{"value": []byte(Kubeconfig(name))},
		})
	}
	f.Management.Reactors["Certificate"] = func(t *FakeTarget, obj *unstructured.Unstructured) {
		t.SetField(kube.CertificateGVK, obj.GetNamespace(), obj.GetName(), []any{
			map[string]any{"type": "Ready", "status": "True"},
		}, "status", "conditions")
		secretName, _, _ := unstructured.NestedString(obj.Object, "spec", "secretName")
		t.PutSecret(&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: secretName, Namespace: obj.GetNamespace()},
			Type:       corev1.SecretTypeTLS,
			Data: map[string][]byte{
				corev1.TLSCertKey:       []byte("certificate"),
				corev1.TLSPrivateKeyKey: []byte("key"),
			},
		})
	}

	f.Tenant.ExternalIPs = []string{NodeIP}
	f.Tenant.Taints["node-role.kubernetes.io/control-plane"] = true
	f.Tenant.Reactors["Rollout"] = func(t *FakeTarget, obj *unstructured.Unstructured) {
		t.SetField(kube.RolloutGVK, obj.GetNamespace(), obj.GetName(), "Healthy", "status", "phase")
	}
	f.Tenant.Pods["smoke-test"] = []corev1.Pod{{
		ObjectMeta: metav1.ObjectMeta{Name: "smoke-test-abc12", Namespace: "smoke-test"},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}}
	f.Tenant.ExecFunc = func(kube.ExecRequest) (string, string, error) {
		return "ok", "", nil
	}
}

// RenderTemplate answers "clusterctl generate cluster" by substituting the
// template variables from the command's flags and environment.
func RenderTemplate(cmd runner.Command) (*runner.Result, error) {
	vars := map[string]string{}
	for _, e := range cmd.Env {
		if k, v, ok := strings.Cut(e, "="); ok {
			vars[k] = v
		}
	}
	var from string
	flags := map[string]string{
		"--kubernetes-version":          "KUBERNETES_VERSION",
		"--control-plane-machine-count": "CONTROL_PLANE_MACHINE_COUNT",
		"--worker-machine-count":        "WORKER_MACHINE_COUNT",
		"--target-namespace":            "NAMESPACE",
	}
	for i := 0; i < len(cmd.Args)-1; i++ {
		switch a := cmd.Args[i]; {
		case a == "--from":
			from = cmd.Args[i+1]
		case a == "cluster":
			vars["CLUSTER_NAME"] = cmd.Args[i+1]
		case flags[a] != "":
			vars[flags[a]] = cmd.Args[i+1]
		}
	}
	template, err := os.ReadFile(from)
	if err != nil {
		return nil, &runner.CommandError{Span: cmd.Span, ExitCode: 1, Err: err}
	}
	out := os.Expand(string(template), func(k string) string { return vars[k] })
	return &runner.Result{Stdout: []byte(out)}, nil
}

// AddProject stores the project of TeamID with the fixture's key pair.
func (f *Fixture) AddProject(t *testing.T) *model.Project {
	t.Helper()
	p := &model.Project{
		ID:                    ProjectID,
		TeamID:                TeamID,
		CreatorID:             "user-1",
		Name:                  "Production",
		EncodedAPIToken:       model.Encode(ValidToken),
		SSHKeyName:            "metal-" + ProjectID,
		EncodedPublicKey:      model.Encode(string(f.KeyPair.PublicKey)),
		EncodedPrivateKey:     model.Encode(string(f.KeyPair.PrivateKey)),
		EncodedWebServiceUser: model.Encode("robot"),
		EncodedWebServicePass: model.Encode("robot-secret"),
	}
	if err := f.Store.InsertProject(context.Background(), p); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return p
}

// AddCluster stores a "creating" cluster of the fixture project with the
// given node groups, or a single one-node group when none are given.
func (f *Fixture) AddCluster(t *testing.T, groups ...model.NodeGroup) *model.Cluster {
	t.Helper()
	c := &model.Cluster{
		ID:          ClusterID,
		TeamID:      TeamID,
		CreatorID:   "user-1",
		ProjectID:   ProjectID,
		Name:        ClusterName,
		Status:      model.StatusCreating,
		NetworkZone: "eu-central",
		Location:    "fsn1",
	}
	if err := f.Store.InsertCluster(context.Background(), c); err != nil {
		t.Fatalf("insert cluster: %v", err)
	}
	if len(groups) == 0 {
		groups = []model.NodeGroup{{InstanceType: "cx22", MinNodes: 1, MaxNodes: 1}}
	}
	for i := range groups {
		groups[i].ClusterID = c.ID
		if groups[i].ID == "" {
			groups[i].ID = fmt.Sprintf("group-%d", i)
		}
		if err := f.Store.InsertNodeGroup(context.Background(), &groups[i]); err != nil {
			t.Fatalf("insert node group: %v", err)
		}
	}
	return c
}

// Cluster reloads the fixture cluster.
func (f *Fixture) Cluster(t *testing.T) *model.Cluster {
	t.Helper()
	c, err := f.Store.GetCluster(context.Background(), ClusterID)
	if err != nil || c == nil {
		t.Fatalf("get cluster: %v", err)
	}
	return c
}
