package cluster

import (
	"fmt"

	"github.com/imamik/metal/internal/helm"
	"github.com/imamik/metal/internal/provisioning"
)

// release is a chart installed on the tenant cluster.
type release struct {
	stage     string
	chart     string
	name      string
	namespace string
	// values may be nil for chart defaults.
	values func(ctx *provisioning.Context) (helm.Values, error)
}

// Stage installs the release unless it is already deployed. A release left
// failed by an earlier attempt is upgraded in place.
func (r release) Stage() provisioning.Stage {
	return provisioning.Step{
		StageName: r.stage,
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			return t.ReleaseDeployed(ctx, r.namespace, r.name)
		},
		Do: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			var values helm.Values
			if r.values != nil {
				if values, err = r.values(ctx); err != nil {
					return err
				}
			}
			if err := t.EnsureNamespace(ctx, r.namespace); err != nil {
				return err
			}
			err = t.InstallOrUpgrade(ctx, helm.Release{
				Name:      r.name,
				Namespace: r.namespace,
				Chart:     helm.Spec(r.chart, ctx.Config.Charts),
				Values:    values,
				Timeout:   ctx.Timeouts.Helm,
			})
			if err != nil {
				return fmt.Errorf("failed to install %s: %w", r.name, err)
			}
			provisioning.LogResourceCreated(ctx.Observer, r.stage, "HelmRelease", r.namespace+"/"+r.name)
			return nil
		},
	}
}

// Tenant namespaces.
const (
	nsKubeSystem    = "kube-system"
	nsMonitoring    = "monitoring"
	nsMinIOOperator = "minio-operator"
	nsMinIO         = "minio"
	nsObservability = "observability"
	nsRegistry      = "registry"
	nsArgoRollouts  = "argo-rollouts"
	nsGateway       = "gateway"
	nsSmokeTest     = "smoke-test"
)

// Release names of the charts whose workloads own persistent volumes.
const (
	releaseMonitoring  = "kube-prometheus-stack"
	releaseMinIOTenant = "object-storage"
	releaseRegistry    = "registry"
)

// ReleaseRef names an installed release.
type ReleaseRef struct {
	Namespace string
	Name      string
}

// StatefulReleases are the releases whose volumes must be released before
// the cluster's machines go away, in uninstall order.
var StatefulReleases = []ReleaseRef{
	{Namespace: nsMonitoring, Name: releaseMonitoring},
	{Namespace: nsMinIO, Name: releaseMinIOTenant},
	{Namespace: nsRegistry, Name: releaseRegistry},
}
