package helm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage/driver"
)

const defaultTimeout = 10 * time.Minute

// Client provides Helm operations against a single cluster. Action
// configurations are created lazily per release namespace.
type Client struct {
	log       logr.Logger
	settings  *cli.EnvSettings
	newConfig func(namespace string) (*action.Configuration, error)

	mu      sync.Mutex
	configs map[string]*action.Configuration
}

var _ Installer = (*Client)(nil)

// NewClient creates a Helm client from kubeconfig bytes.
func NewClient(kubeconfig []byte, log logr.Logger) *Client {
	c := &Client{log: log.WithName("helm")}
	c.newConfig = func(namespace string) (*action.Configuration, error) {
		cfg := new(action.Configuration)
		getter := newKubeconfigGetter(kubeconfig, namespace)
		if err := cfg.Init(getter, namespace, "secret", c.debugf); err != nil {
			return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
		}
		return cfg, nil
	}
	return c
}

func (c *Client) debugf(format string, v ...any) {
	c.log.V(1).Info(fmt.Sprintf(format, v...))
}

func (c *Client) config(namespace string) (*action.Configuration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg, ok := c.configs[namespace]; ok {
		return cfg, nil
	}
	cfg, err := c.newConfig(namespace)
	if err != nil {
		return nil, err
	}
	if c.configs == nil {
		c.configs = make(map[string]*action.Configuration)
	}
	c.configs[namespace] = cfg
	return cfg, nil
}

// InstallOrUpgrade installs a chart or upgrades it if already installed.
func (c *Client) InstallOrUpgrade(ctx context.Context, rel Release) error {
	cfg, err := c.config(rel.Namespace)
	if err != nil {
		return err
	}

	latest, err := latestRevision(cfg, rel.Name)
	if err != nil {
		return err
	}
	if latest != nil && latest.Info != nil && latest.Info.Status.IsPending() {
		if latest, err = c.recoverPending(ctx, cfg, rel, latest); err != nil {
			return err
		}
	}

	ch, err := c.loadChart(rel.Chart)
	if err != nil {
		return fmt.Errorf("failed to load chart %s: %w", rel.Chart.Name, err)
	}

	values := rel.Values.ToMap()
	start := time.Now()
	if latest == nil {
		err = c.install(ctx, cfg, rel, ch, values)
	} else {
		err = c.upgrade(ctx, cfg, rel, ch, values)
	}
	if err != nil {
		return err
	}
	c.log.Info("release ready", "release", rel.Name, "namespace", rel.Namespace,
		"chart", rel.Chart.Name, "version", rel.Chart.Version, "duration", time.Since(start).Round(time.Second))
	return nil
}

// recoverPending clears the lock an interrupted operation left on a
// release. An interrupted install is removed. An interrupted upgrade or
// rollback is marked failed so the next upgrade starts from it.
func (c *Client) recoverPending(ctx context.Context, cfg *action.Configuration, rel Release, latest *release.Release) (*release.Release, error) {
	status := latest.Info.Status
	c.log.Info("recovering interrupted release", "release", rel.Name, "namespace", rel.Namespace,
		"revision", latest.Version, "status", status.String())

	if status == release.StatusPendingInstall {
		if err := c.Uninstall(ctx, rel.Namespace, rel.Name, timeoutOrDefault(rel.Timeout)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	latest.Info.Status = release.StatusFailed
	latest.Info.Description = fmt.Sprintf("Interrupted while %s", status)
	if err := cfg.Releases.Update(latest); err != nil {
		return nil, fmt.Errorf("failed to mark release %s revision %d failed: %w", rel.Name, latest.Version, err)
	}
	return latest, nil
}

func (c *Client) install(ctx context.Context, cfg *action.Configuration, rel Release, ch *chart.Chart, values map[string]any) error {
	install := action.NewInstall(cfg)
	install.ReleaseName = rel.Name
	install.Namespace = rel.Namespace
	install.CreateNamespace = true
	install.Version = rel.Chart.Version
	install.Wait = true
	install.Timeout = timeoutOrDefault(rel.Timeout)

	if _, err := install.RunWithContext(ctx, ch, values); err != nil {
		return fmt.Errorf("failed to install release %s: %w", rel.Name, err)
	}
	return nil
}

func (c *Client) upgrade(ctx context.Context, cfg *action.Configuration, rel Release, ch *chart.Chart, values map[string]any) error {
	upgrade := action.NewUpgrade(cfg)
	upgrade.Namespace = rel.Namespace
	upgrade.Version = rel.Chart.Version
	upgrade.Wait = true
	upgrade.Timeout = timeoutOrDefault(rel.Timeout)
	upgrade.ReuseValues = false

	if _, err := upgrade.RunWithContext(ctx, rel.Name, ch, values); err != nil {
		return fmt.Errorf("failed to upgrade release %s: %w", rel.Name, err)
	}
	return nil
}

// loadChart downloads the chart archive into the local repository cache
// and loads it.
func (c *Client) loadChart(spec ChartSpec) (*chart.Chart, error) {
	if c.settings == nil {
		c.settings = cli.New()
	}
	opts := action.ChartPathOptions{
		RepoURL: spec.Repository,
		Version: spec.Version,
	}
	path, err := opts.LocateChart(spec.Name, c.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to find chart %s in repo %s: %w", spec.Name, spec.Repository, err)
	}
	return loader.Load(path)
}

// ReleaseDeployed reports whether the latest revision of name is deployed.
func (c *Client) ReleaseDeployed(_ context.Context, namespace, name string) (bool, error) {
	cfg, err := c.config(namespace)
	if err != nil {
		return false, err
	}
	latest, err := latestRevision(cfg, name)
	if err != nil {
		return false, err
	}
	if latest == nil || latest.Info == nil {
		return false, nil
	}
	return latest.Info.Status == release.StatusDeployed, nil
}

// Uninstall removes a release and waits for its resources to disappear.
func (c *Client) Uninstall(_ context.Context, namespace, name string, timeout time.Duration) error {
	cfg, err := c.config(namespace)
	if err != nil {
		return err
	}

	uninstall := action.NewUninstall(cfg)
	uninstall.Wait = true
	uninstall.Timeout = timeoutOrDefault(timeout)
	uninstall.IgnoreNotFound = true

	if _, err := uninstall.Run(name); err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return nil
		}
		return fmt.Errorf("failed to uninstall release %s: %w", name, err)
	}
	c.log.Info("release uninstalled", "release", name, "namespace", namespace)
	return nil
}

// latestRevision returns the newest revision of a release, or nil when the
// release has never been installed.
func latestRevision(cfg *action.Configuration, name string) (*release.Release, error) {
	history := action.NewHistory(cfg)
	history.Max = 1
	revisions, err := history.Run(name)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history of release %s: %w", name, err)
	}
	var latest *release.Release
	for _, r := range revisions {
		if latest == nil || r.Version > latest.Version {
			latest = r
		}
	}
	return latest, nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
