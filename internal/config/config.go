package config

import (
	"fmt"
	"strings"
)

// Default values applied by Load.
const (
	DefaultDatabaseURL         = "sqlite:./metal.db"
	DefaultManagementNamespace = "default"
	DefaultClusterIssuer       = "letsencrypt-prod"
	DefaultKubernetesVersion   = "v1.31.6"
	DefaultClusterctl          = "clusterctl"
	DefaultSSHKeygen           = "ssh-keygen"
	DefaultClusterTemplateURL  = "https://github.com/syself/cluster-api-provider-hetzner/releases/download/v1.0.1/cluster-template-hcloud-network.yaml"
	DefaultGatewayAPICRDsURL   = "https://github.com/kubernetes-sigs/gateway-api/releases/download/v1.2.1/standard-install.yaml"
	DefaultAuditRegion         = "eu-central"
)

// Config holds the orchestrator configuration.
type Config struct {
	DatabaseURL          string `yaml:"database_url"`
	ManagementKubeconfig string `yaml:"management_kubeconfig"`
	// ManagementNamespace is where cluster-api objects, certificates and
	// credential secrets are created on the management cluster.
	ManagementNamespace string `yaml:"management_namespace"`
	// DNSNamespace holds the DNSEndpoint objects picked up by the
	// management cluster's external-dns. Defaults to ManagementNamespace.
	DNSNamespace      string `yaml:"dns_namespace"`
	PlatformDomain    string `yaml:"platform_domain"`
	ClusterIssuer     string `yaml:"cluster_issuer"`
	KubernetesVersion string `yaml:"kubernetes_version"`

	Tools     ToolsConfig              `yaml:"tools"`
	Templates TemplatesConfig          `yaml:"templates"`
	Charts    map[string]ChartOverride `yaml:"charts"`
	Audit     AuditConfig              `yaml:"audit"`

	Timeouts *Timeouts `yaml:"-"`
}

// ToolsConfig names the external binaries the orchestrator invokes.
type ToolsConfig struct {
	Clusterctl string `yaml:"clusterctl"`
	SSHKeygen  string `yaml:"ssh_keygen"`
}

// TemplatesConfig points at upstream manifests fetched during provisioning.
type TemplatesConfig struct {
	ClusterTemplateURL string `yaml:"cluster_template_url"`
	GatewayAPICRDsURL  string `yaml:"gateway_api_crds_url"`
}

// ChartOverride replaces the built-in repository or version of a chart.
type ChartOverride struct {
	Repository string `yaml:"repository"`
	Version    string `yaml:"version"`
}

// AuditConfig enables archiving generated manifests to S3-compatible
// object storage. Archiving is off when Bucket is empty.
type AuditConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether manifests should be archived.
func (a AuditConfig) Enabled() bool { return a.Bucket != "" }

// Validate checks required fields.
func (c *Config) Validate() error {
	var missing []string
	if c.ManagementKubeconfig == "" {
		missing = append(missing, "management_kubeconfig")
	}
	if c.PlatformDomain == "" {
		missing = append(missing, "platform_domain")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(c.KubernetesVersion, "v") {
		return fmt.Errorf("kubernetes_version must start with 'v', got %q", c.KubernetesVersion)
	}
	if c.Audit.Enabled() && (c.Audit.AccessKey == "" || c.Audit.SecretKey == "") {
		return fmt.Errorf("audit bucket %q configured without credentials", c.Audit.Bucket)
	}
	return nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	setDefault(&c.DatabaseURL, DefaultDatabaseURL)
	setDefault(&c.ManagementNamespace, DefaultManagementNamespace)
	setDefault(&c.DNSNamespace, c.ManagementNamespace)
	setDefault(&c.ClusterIssuer, DefaultClusterIssuer)
	setDefault(&c.KubernetesVersion, DefaultKubernetesVersion)
	setDefault(&c.Tools.Clusterctl, DefaultClusterctl)
	setDefault(&c.Tools.SSHKeygen, DefaultSSHKeygen)
	setDefault(&c.Templates.ClusterTemplateURL, DefaultClusterTemplateURL)
	setDefault(&c.Templates.GatewayAPICRDsURL, DefaultGatewayAPICRDsURL)
	setDefault(&c.Audit.Region, DefaultAuditRegion)
	if c.Timeouts == nil {
		c.Timeouts = LoadTimeouts()
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
