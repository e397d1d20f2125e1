package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
management_kubeconfig: /etc/metal/management.kubeconfig
platform_domain: metal.example.com
charts:
  cilium:
    version: 1.16.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/metal/management.kubeconfig", cfg.ManagementKubeconfig)
	assert.Equal(t, "metal.example.com", cfg.PlatformDomain)
	assert.Equal(t, DefaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, DefaultClusterIssuer, cfg.ClusterIssuer)
	assert.Equal(t, DefaultClusterctl, cfg.Tools.Clusterctl)
	assert.Equal(t, "1.16.5", cfg.Charts["cilium"].Version)
	assert.False(t, cfg.Audit.Enabled())
	require.NotNil(t, cfg.Timeouts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
management_kubeconfig: /from/file
platform_domain: file.example.com
`)
	t.Setenv("METAL_PLATFORM_DOMAIN", "env.example.com")
	t.Setenv("METAL_DATABASE_URL", "sqlite::memory:")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.example.com", cfg.PlatformDomain)
	assert.Equal(t, "sqlite::memory:", cfg.DatabaseURL)
	assert.Equal(t, "/from/file", cfg.ManagementKubeconfig)
}

func TestLoad_FallsBackToKUBECONFIG(t *testing.T) {
	t.Setenv("KUBECONFIG", "/home/ops/.kube/config")
	t.Setenv("METAL_PLATFORM_DOMAIN", "metal.example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/home/ops/.kube/config", cfg.ManagementKubeconfig)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("KUBECONFIG", "")
	path := writeConfig(t, "database_url: sqlite::memory:\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "management_kubeconfig")
	assert.Contains(t, err.Error(), "platform_domain")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		c := &Config{ManagementKubeconfig: "/k", PlatformDomain: "d"}
		c.ApplyDefaults()
		return c
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.KubernetesVersion = "1.31.0"
	assert.ErrorContains(t, c.Validate(), "must start with 'v'")

	c = base()
	c.Audit.Bucket = "manifests"
	assert.ErrorContains(t, c.Validate(), "without credentials")

	c.Audit.AccessKey, c.Audit.SecretKey = "a", "s"
	assert.NoError(t, c.Validate())
}

func TestLoadTimeouts(t *testing.T) {
	t.Setenv("METAL_POLL_INTERVAL", "2s")
	t.Setenv("METAL_TIMEOUT_CONTROL_PLANE", "invalid")
	t.Setenv("METAL_RETRY_MAX_ATTEMPTS", "9")

	to := LoadTimeouts()
	assert.Equal(t, 2*time.Second, to.PollInterval)
	assert.Equal(t, 20*time.Minute, to.ControlPlane)
	assert.Equal(t, 10*time.Minute, to.Helm)
	assert.Equal(t, 9, to.RetryMaxAttempts)
}
