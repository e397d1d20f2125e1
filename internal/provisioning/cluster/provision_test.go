package cluster

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/imamik/metal/internal/helm"
	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/runner"
	mtesting "github.com/imamik/metal/internal/testing"
	"github.com/imamik/metal/internal/workflow"
)

func newProvisionFixture(t *testing.T, groups ...model.NodeGroup) *mtesting.Fixture {
	t.Helper()
	f := mtesting.NewFixture(t)
	f.AddProject(t)
	f.AddCluster(t, groups...)
	return f
}

func command(t *testing.T, f *mtesting.Fixture, span string) runner.Command {
	t.Helper()
	for _, c := range f.Runner.Commands() {
		if c.Span == span {
			return c
		}
	}
	t.Fatalf("no %s command was run", span)
	return runner.Command{}
}

func flag(args []string, name string) string {
	i := slices.Index(args, name)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestProvisionHetznerCluster(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))

	c := f.Cluster(t)
	assert.Equal(t, model.StatusRunning, c.Status)
	assert.Equal(t, mtesting.Kubeconfig(mtesting.ClusterName), c.Kubeconfig)
	assert.Equal(t, mtesting.ClusterctlVersion, c.ClusterctlVersion)
	assert.Contains(t, c.Manifest, "kind: KubeadmControlPlane")
	assert.Equal(t, []model.ClusterStatus{
		model.StatusCreating, model.StatusInitializing, model.StatusRunning,
	}, f.Store.StatusHistory(mtesting.ClusterID))

	archived, ok := f.Archive.Stored(mtesting.ClusterID, mtesting.ClusterctlVersion)
	require.True(t, ok)
	assert.Equal(t, c.Manifest, string(archived))
	assert.Equal(t, 1, f.Connects())
}

func TestProvisionHetznerCluster_GeneratesManifest(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t, model.NodeGroup{InstanceType: "cpx31", MinNodes: 3, MaxNodes: 3})
	ctx := mtesting.TestContext(t)

	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))

	gen := command(t, f, "clusterctl-generate")
	assert.Equal(t, []string{"generate", "cluster", mtesting.ClusterName}, gen.Args[:3])
	assert.Equal(t, "v1.31.6", flag(gen.Args, "--kubernetes-version"))
	assert.Equal(t, "1", flag(gen.Args, "--control-plane-machine-count"))
	assert.Equal(t, "3", flag(gen.Args, "--worker-machine-count"))
	assert.Equal(t, "clusters", flag(gen.Args, "--target-namespace"))
	assert.Subset(t, gen.Env, []string{
		"HCLOUD_SSH_KEY=metal-" + mtesting.ProjectID,
		"HCLOUD_REGION=fsn1",
		"HCLOUD_NETWORK_ZONE=eu-central",
		"HCLOUD_CONTROL_PLANE_MACHINE_TYPE=cpx31",
		"HCLOUD_WORKER_MACHINE_TYPE=cpx31",
	})

	_, err := os.Stat(flag(gen.Args, "--from"))
	assert.True(t, os.IsNotExist(err), "template file must be removed")

	c := f.Cluster(t)
	assert.Contains(t, c.Manifest, "name: hetzner-"+mtesting.TeamID)
	assert.NotContains(t, c.Manifest, "${")
}

func TestProvisionHetznerCluster_ManagementObjects(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))

	assert.True(t, f.Management.Has("Cluster", "clusters", mtesting.ClusterName))

	secret, err := f.Management.GetSecret(ctx, "clusters", "hetzner-"+mtesting.TeamID)
	require.NoError(t, err)
	require.NotNil(t, secret)
	assert.Equal(t, mtesting.ValidToken, string(secret.Data["hcloud"]))
	assert.Equal(t, "robot", string(secret.Data["robot-user"]))
	assert.Contains(t, secret.Labels, "clusterctl.cluster.x-k8s.io/move")

	cert, err := f.Management.Get(ctx, kube.CertificateGVK, "clusters", mtesting.ClusterName+"-wildcard")
	require.NoError(t, err)
	require.NotNil(t, cert)
	dnsNames, _, _ := unstructured.NestedStringSlice(cert.Object, "spec", "dnsNames")
	domain := mtesting.ClusterName + "." + mtesting.PlatformDomain
	assert.Equal(t, []string{"*." + domain, domain}, dnsNames)
	issuer, _, _ := unstructured.NestedString(cert.Object, "spec", "issuerRef", "name")
	assert.Equal(t, "letsencrypt-test", issuer)

	endpoint, err := f.Management.Get(ctx, kube.DNSEndpointGVK, "external-dns", mtesting.ClusterName+"-wildcard")
	require.NoError(t, err)
	require.NotNil(t, endpoint)
	records, _, _ := unstructured.NestedSlice(endpoint.Object, "spec", "endpoints")
	require.Len(t, records, 2)
	for _, r := range records {
		rec := r.(map[string]any)
		assert.Equal(t, "A", rec["recordType"])
		assert.Equal(t, int64(300), rec["recordTTL"])
		assert.Equal(t, []any{mtesting.NodeIP}, rec["targets"])
	}
	assert.Equal(t, map[string]string{labelCluster: mtesting.ClusterID}, endpoint.GetLabels())
}

func TestProvisionHetznerCluster_TenantBootstrap(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))

	cilium, ok := f.Tenant.Release("kube-system", "cilium")
	require.True(t, ok)
	assert.Equal(t, mtesting.APIServerHost, cilium.Values["k8sServiceHost"])
	assert.Equal(t, "6443", cilium.Values["k8sServicePort"])
	assert.Equal(t, f.Config.Timeouts.Helm, cilium.Timeout)

	for _, r := range []struct{ ns, name string }{
		{"kube-system", "hccm"},
		{"kube-system", "hcloud-csi"},
		{"kube-system", "metrics-server"},
		{"monitoring", "kube-prometheus-stack"},
		{"minio-operator", "minio-operator"},
		{"minio", "object-storage"},
		{"observability", "quickwit"},
		{"observability", "jaeger"},
		{"registry", "registry"},
		{"argo-rollouts", "argo-rollouts"},
	} {
		_, ok := f.Tenant.Release(r.ns, r.name)
		assert.True(t, ok, "release %s/%s", r.ns, r.name)
	}

	registry, _ := f.Tenant.Release("registry", "registry")
	secrets, ok := registry.Values["secrets"].(helm.Values)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(secrets["htpasswd"].(string), "metal:$2a$"))

	hcloud, err := f.Tenant.GetSecret(ctx, "kube-system", "hcloud")
	require.NoError(t, err)
	require.NotNil(t, hcloud)
	assert.Equal(t, mtesting.ValidToken, string(hcloud.Data["token"]))
	assert.Equal(t, mtesting.ClusterName, string(hcloud.Data["network"]))

	minio, err := f.Tenant.GetSecret(ctx, "minio", "object-storage-credentials")
	require.NoError(t, err)
	quickwit, err := f.Tenant.GetSecret(ctx, "observability", "object-storage-credentials")
	require.NoError(t, err)
	assert.Equal(t, minio.Data["accessKey"], quickwit.Data["AWS_ACCESS_KEY_ID"])
	assert.Equal(t, minio.Data["secretKey"], quickwit.Data["AWS_SECRET_ACCESS_KEY"])

	tls, err := f.Tenant.GetSecret(ctx, "gateway", mtesting.ClusterName+"-wildcard-tls")
	require.NoError(t, err)
	require.NotNil(t, tls)
	assert.Equal(t, "certificate", string(tls.Data["tls.crt"]))

	gw, err := f.Tenant.Get(ctx, kube.GatewayGVK, "gateway", "metal-gateway")
	require.NoError(t, err)
	require.NotNil(t, gw)
	addresses, _, _ := unstructured.NestedSlice(gw.Object, "spec", "addresses")
	assert.Equal(t, []any{map[string]any{"type": "IPAddress", "value": mtesting.NodeIP}}, addresses)

	pool, err := f.Tenant.Get(ctx, kube.LBIPPoolGVK, "", "metal-pool")
	require.NoError(t, err)
	require.NotNil(t, pool)
	blocks, _, _ := unstructured.NestedSlice(pool.Object, "spec", "blocks")
	assert.Equal(t, []any{map[string]any{"cidr": mtesting.NodeIP + "/32"}}, blocks)

	assert.Empty(t, f.Tenant.Taints)
	assert.True(t, f.Tenant.Has("HTTPRoute", "smoke-test", "smoke-test"))
	assert.Equal(t, 1, f.Log.Count("tenant exec smoke-test/"))
}

func TestProvisionHetznerCluster_Ordering(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))

	order := []string{
		"mgmt apply Certificate ",
		"mgmt create secret clusters/hetzner-",
		"mgmt apply Cluster ",
		"tenant apply CustomResourceDefinition ",
		"tenant install kube-system/cilium",
		"tenant install kube-system/hccm",
		"tenant install kube-system/hcloud-csi",
		"tenant apply CiliumLoadBalancerIPPool ",
		"mgmt apply DNSEndpoint ",
		"tenant install monitoring/",
		"tenant install minio/",
		"tenant install observability/quickwit",
		"tenant install registry/",
		"tenant install argo-rollouts/",
		"tenant apply Gateway ",
		"tenant apply Rollout ",
		"tenant exec ",
	}
	prev := -1
	for _, call := range order {
		i := f.Log.Index(call)
		require.GreaterOrEqual(t, i, 0, "%q was never called", call)
		assert.Greater(t, i, prev, "%q out of order", call)
		prev = i
	}
}

func TestProvisionHetznerCluster_SecondRunIsNoOp(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))
	calls := len(f.Log.Calls())
	commands := len(f.Runner.Commands())

	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))
	assert.Len(t, f.Log.Calls(), calls)
	assert.Len(t, f.Runner.Commands(), commands)
	assert.Equal(t, model.StatusRunning, f.Cluster(t).Status)
}

func TestProvisionHetznerCluster_ResumesAfterTimeout(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	f.Tenant.DaemonSetsReady["kube-system/cilium"] = false
	err := ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID)
	require.Error(t, err)
	fail, ok := workflow.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, workflow.KindTimeout, fail.Kind)
	assert.True(t, fail.Retryable)
	assert.Contains(t, fail.Message, "cilium daemonset")

	c := f.Cluster(t)
	assert.Equal(t, model.StatusInitializing, c.Status)
	assert.True(t, c.HasKubeconfig())
	assert.Equal(t, -1, f.Log.Index("tenant install kube-system/hccm"))

	f.Tenant.DaemonSetsReady["kube-system/cilium"] = true
	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))

	assert.Equal(t, model.StatusRunning, f.Cluster(t).Status)
	assert.Equal(t, 1, f.Log.Count("mgmt apply Cluster "))
	assert.Equal(t, 1, f.Log.Count("tenant install kube-system/cilium"))
	assert.Equal(t, 1, f.Log.Count("tenant install kube-system/hccm"))
	assert.Equal(t, []string{"clusterctl-version", "clusterctl-generate"}, f.Runner.Spans())
	assert.Equal(t, []model.ClusterStatus{
		model.StatusCreating, model.StatusInitializing, model.StatusRunning,
	}, f.Store.StatusHistory(mtesting.ClusterID))
}

func TestProvisionHetznerCluster_SmokeTestFailureTimesOut(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	f.Tenant.ExecFunc = func(kube.ExecRequest) (string, string, error) {
		return "", "wget: server returned error: HTTP/1.1 404", errors.New("exit code 1")
	}
	err := ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID)
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindTimeout))
	assert.Equal(t, model.StatusInitializing, f.Cluster(t).Status)
}

func TestProvisionHetznerCluster_TransientErrorKeepsStatus(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	f.Tenant.InstallErr["hccm"] = errors.New("chart repository unavailable")
	err := ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID)
	require.Error(t, err)
	fail, ok := workflow.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, workflow.KindInternal, fail.Kind)
	assert.True(t, fail.Retryable)
	assert.Equal(t, model.StatusInitializing, f.Cluster(t).Status)
}

func TestProvisionHetznerCluster_ArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	f.Archive.Err = errors.New("bucket unavailable")

	require.NoError(t, ProvisionHetznerCluster(mtesting.TestContext(t), f.Deps, mtesting.ClusterID))
	assert.Equal(t, model.StatusRunning, f.Cluster(t).Status)
}

func TestProvisionHetznerCluster_MultipleNodeGroups(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t,
		model.NodeGroup{InstanceType: "cx22", MinNodes: 1, MaxNodes: 1},
		model.NodeGroup{InstanceType: "cpx41", MinNodes: 2, MaxNodes: 2},
	)
	ctx := mtesting.TestContext(t)

	require.NoError(t, ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID))
	assert.True(t, f.Management.Has("MachineDeployment", "clusters", mtesting.ClusterName+"-md-0"))
	assert.True(t, f.Management.Has("MachineDeployment", "clusters", mtesting.ClusterName+"-md-1"))

	tmpl, err := f.Management.Get(ctx, kube.ClusterGVK.GroupVersion().WithKind("MachineDeployment"), "clusters", mtesting.ClusterName+"-md-1")
	require.NoError(t, err)
	replicas, _, _ := unstructured.NestedInt64(tmpl.Object, "spec", "replicas")
	assert.Equal(t, int64(2), replicas)
}

func TestProvisionHetznerCluster_InvalidClusterMarksError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		groups []model.NodeGroup
	}{
		{"autoscaling group", []model.NodeGroup{{InstanceType: "cx22", MinNodes: 1, MaxNodes: 3}}},
		{"missing instance type", []model.NodeGroup{{MinNodes: 1, MaxNodes: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newProvisionFixture(t, tt.groups...)
			ctx := mtesting.TestContext(t)

			err := ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID)
			require.Error(t, err)
			fail, ok := workflow.AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, workflow.KindClusterInvalid, fail.Kind)
			assert.False(t, fail.Retryable)
			assert.Equal(t, model.StatusError, f.Cluster(t).Status)
			assert.Empty(t, f.Runner.Commands())

			err = ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID)
			assert.True(t, workflow.IsKind(err, workflow.KindIllegalStatusTransition))
			assert.Equal(t, model.StatusError, f.Cluster(t).Status)
		})
	}
}

func TestProvisionHetznerCluster_MissingProject(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)
	f.AddCluster(t)

	err := ProvisionHetznerCluster(mtesting.TestContext(t), f.Deps, mtesting.ClusterID)
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindProjectNotFound))
	assert.Equal(t, model.StatusError, f.Cluster(t).Status)
}

func TestProvisionHetznerCluster_NotFound(t *testing.T) {
	t.Parallel()
	f := mtesting.NewFixture(t)

	err := ProvisionHetznerCluster(mtesting.TestContext(t), f.Deps, "missing")
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindClusterNotFound))
}

func TestProvisionHetznerCluster_RefusesDeletedCluster(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)
	require.NoError(t, f.Store.UpdateClusterStatus(ctx, mtesting.ClusterID, model.StatusDestroying))

	err := ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID)
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindIllegalStatusTransition))
	assert.Equal(t, model.StatusDestroying, f.Cluster(t).Status)
	assert.Empty(t, f.Log.Calls())
}

func TestProvisionHetznerCluster_Canceled(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)

	ctx, cancel := context.WithCancel(mtesting.TestContext(t))
	cancel()
	err := ProvisionHetznerCluster(ctx, f.Deps, mtesting.ClusterID)
	require.Error(t, err)
	assert.True(t, workflow.IsKind(err, workflow.KindCanceled))
	assert.Equal(t, model.StatusCreating, f.Cluster(t).Status)
}

func TestRegister(t *testing.T) {
	t.Parallel()
	f := newProvisionFixture(t)
	ctx := mtesting.TestContext(t)

	e := workflow.NewEngine(testr.New(t))
	Register(e, f.Deps)

	future, err := e.Invoke(ctx, WorkflowProvision, mtesting.ClusterID, mtesting.ClusterID)
	require.NoError(t, err)
	_, fail := future.Wait(ctx)
	require.Nil(t, fail)
	assert.Equal(t, model.StatusRunning, f.Cluster(t).Status)
}
