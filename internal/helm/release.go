package helm

import (
	"context"
	"time"

	"github.com/imamik/metal/internal/config"
)

// ChartSpec identifies a chart in a repository.
type ChartSpec struct {
	Repository string
	Name       string
	Version    string
}

// Release is a desired chart installation.
type Release struct {
	Name      string
	Namespace string
	Chart     ChartSpec
	Values    Values
	// Timeout bounds the install or upgrade including the wait for
	// resources to become ready.
	Timeout time.Duration
}

// Installer manages releases on one cluster.
type Installer interface {
	// InstallOrUpgrade installs rel, or upgrades it when it already exists,
	// and waits for its resources to become ready.
	InstallOrUpgrade(ctx context.Context, rel Release) error
	// ReleaseDeployed reports whether the latest revision of the release
	// is in the deployed state.
	ReleaseDeployed(ctx context.Context, namespace, name string) (bool, error)
	// Uninstall removes the release and waits for its resources to be
	// deleted. A missing release is not an error.
	Uninstall(ctx context.Context, namespace, name string, timeout time.Duration) error
}

// Spec returns the chart spec for name with configuration overrides applied.
func Spec(name string, overrides map[string]config.ChartOverride) ChartSpec {
	spec := DefaultChartSpecs[name]
	if o, ok := overrides[name]; ok {
		if o.Repository != "" {
			spec.Repository = o.Repository
		}
		if o.Version != "" {
			spec.Version = o.Version
		}
	}
	return spec
}
