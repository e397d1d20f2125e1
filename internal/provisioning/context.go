package provisioning

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/metal/internal/config"
	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/model"
	"github.com/imamik/metal/internal/platform/hcloud"
	"github.com/imamik/metal/internal/runner"
	"github.com/imamik/metal/internal/store"
	"github.com/imamik/metal/internal/util/keygen"
)

// KeyGenerator creates SSH key pairs for projects without supplied keys.
// Implemented by keygen.Generator.
type KeyGenerator interface {
	GenerateED25519(ctx context.Context, comment string) (*keygen.KeyPair, error)
}

// ManifestArchive keeps a copy of every generated cluster manifest.
// Implemented by s3.ManifestArchive.
type ManifestArchive interface {
	Store(ctx context.Context, clusterID, toolVersion string, manifest []byte) (string, error)
}

// Deps are the collaborators shared by every workflow run.
type Deps struct {
	Store      store.ClusterStore
	Management kube.Target
	Connect    kube.Connector
	Runner     runner.Runner
	Cloud      hcloud.Factory
	Keys       KeyGenerator
	// Archive is optional; nil disables manifest archiving.
	Archive    ManifestArchive
	HTTPClient *http.Client
	Config     *config.Config
	Timeouts   *config.Timeouts
}

// Context wraps all dependencies and state needed for one workflow run.
type Context struct {
	context.Context
	*Deps

	Workflow   string
	Cluster    *model.Cluster
	Project    *model.Project
	NodeGroups []model.NodeGroup

	// Tenant is the provisioned cluster, available once its kubeconfig is.
	Tenant kube.Target

	Observer Observer
	Log      logr.Logger
}

// NewContext creates a workflow context. The logger is taken from ctx.
// Missing timeouts and HTTP client are defaulted on a per-run copy of deps;
// the shared Deps is never written.
func NewContext(ctx context.Context, workflow string, shared *Deps) *Context {
	deps := shared
	if shared.Timeouts == nil || shared.HTTPClient == nil {
		run := *shared
		if run.Timeouts == nil {
			if run.Config != nil && run.Config.Timeouts != nil {
				run.Timeouts = run.Config.Timeouts
			} else {
				run.Timeouts = config.LoadTimeouts()
			}
		}
		if run.HTTPClient == nil {
			run.HTTPClient = http.DefaultClient
		}
		deps = &run
	}
	logger := log.FromContext(ctx).WithValues("workflow", workflow)
	return &Context{
		Context:  ctx,
		Deps:     deps,
		Workflow: workflow,
		Observer: NewLogObserver(logger),
		Log:      logger,
	}
}

// WithCluster records the cluster the run operates on and tags the logger.
func (c *Context) WithCluster(cluster *model.Cluster) {
	c.Cluster = cluster
	c.Log = c.Log.WithValues("cluster", cluster.ID, "name", cluster.Name)
	c.Observer = c.Observer.WithFields(map[string]string{"cluster": cluster.ID})
}

// TenantTarget connects to the tenant cluster using the persisted
// kubeconfig. The connection is reused for the rest of the run.
func (c *Context) TenantTarget() (kube.Target, error) {
	if c.Tenant != nil {
		return c.Tenant, nil
	}
	if c.Cluster == nil || !c.Cluster.HasKubeconfig() {
		return nil, fmt.Errorf("tenant kubeconfig is not available yet")
	}
	t, err := c.Connect([]byte(c.Cluster.Kubeconfig))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tenant cluster: %w", err)
	}
	c.Tenant = t
	return t, nil
}
