package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// envOverrides maps environment variables onto config fields.
func envOverrides(c *Config) map[string]*string {
	return map[string]*string{
		"METAL_DATABASE_URL":          &c.DatabaseURL,
		"METAL_MANAGEMENT_KUBECONFIG": &c.ManagementKubeconfig,
		"METAL_MANAGEMENT_NAMESPACE":  &c.ManagementNamespace,
		"METAL_DNS_NAMESPACE":         &c.DNSNamespace,
		"METAL_PLATFORM_DOMAIN":       &c.PlatformDomain,
		"METAL_CLUSTER_ISSUER":        &c.ClusterIssuer,
		"METAL_KUBERNETES_VERSION":    &c.KubernetesVersion,
		"METAL_CLUSTERCTL":            &c.Tools.Clusterctl,
		"METAL_AUDIT_ENDPOINT":        &c.Audit.Endpoint,
		"METAL_AUDIT_BUCKET":          &c.Audit.Bucket,
		"METAL_AUDIT_ACCESS_KEY":      &c.Audit.AccessKey,
		"METAL_AUDIT_SECRET_KEY":      &c.Audit.SecretKey,
	}
}

// Load reads the YAML file at path (optional), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		// #nosec G304
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
		}
	}

	for env, field := range envOverrides(&cfg) {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
	if cfg.ManagementKubeconfig == "" {
		cfg.ManagementKubeconfig = os.Getenv("KUBECONFIG")
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}
