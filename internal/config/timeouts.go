package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the polling interval and the bounds of every wait.
type Timeouts struct {
	PollInterval      time.Duration // Interval between readiness checks
	Certificate       time.Duration // Wildcard certificate issuance
	ControlPlane      time.Duration // Control plane certificates available
	APIServer         time.Duration // Tenant API server readiness
	CNI               time.Duration // CNI daemonset rollout
	Nodes             time.Duration // First node reporting an external IP
	Helm              time.Duration // Single chart install or upgrade
	Uninstall         time.Duration // Single release uninstall
	Rollout           time.Duration // Smoke-test rollout healthy
	ServerDelete      time.Duration // Force deletion of one server
	RetryMaxAttempts  int           // Force deletion retries
	RetryInitialDelay time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - METAL_POLL_INTERVAL (default: 5s)
//   - METAL_TIMEOUT_CERTIFICATE (default: 10m)
//   - METAL_TIMEOUT_CONTROL_PLANE (default: 20m)
//   - METAL_TIMEOUT_API_SERVER (default: 10m)
//   - METAL_TIMEOUT_CNI (default: 10m)
//   - METAL_TIMEOUT_NODES (default: 5m)
//   - METAL_TIMEOUT_HELM (default: 10m)
//   - METAL_TIMEOUT_UNINSTALL (default: 5m)
//   - METAL_TIMEOUT_ROLLOUT (default: 10m)
//   - METAL_TIMEOUT_SERVER_DELETE (default: 5m)
//   - METAL_RETRY_MAX_ATTEMPTS (default: 5)
//   - METAL_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		PollInterval:      parseDuration("METAL_POLL_INTERVAL", 5*time.Second),
		Certificate:       parseDuration("METAL_TIMEOUT_CERTIFICATE", 10*time.Minute),
		ControlPlane:      parseDuration("METAL_TIMEOUT_CONTROL_PLANE", 20*time.Minute),
		APIServer:         parseDuration("METAL_TIMEOUT_API_SERVER", 10*time.Minute),
		CNI:               parseDuration("METAL_TIMEOUT_CNI", 10*time.Minute),
		Nodes:             parseDuration("METAL_TIMEOUT_NODES", 5*time.Minute),
		Helm:              parseDuration("METAL_TIMEOUT_HELM", 10*time.Minute),
		Uninstall:         parseDuration("METAL_TIMEOUT_UNINSTALL", 5*time.Minute),
		Rollout:           parseDuration("METAL_TIMEOUT_ROLLOUT", 10*time.Minute),
		ServerDelete:      parseDuration("METAL_TIMEOUT_SERVER_DELETE", 5*time.Minute),
		RetryMaxAttempts:  parseInt("METAL_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("METAL_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// TestTimeouts returns millisecond-scale timeouts for tests.
func TestTimeouts() *Timeouts {
	return &Timeouts{
		PollInterval:      time.Millisecond,
		Certificate:       200 * time.Millisecond,
		ControlPlane:      200 * time.Millisecond,
		APIServer:         200 * time.Millisecond,
		CNI:               200 * time.Millisecond,
		Nodes:             200 * time.Millisecond,
		Helm:              200 * time.Millisecond,
		Uninstall:         200 * time.Millisecond,
		Rollout:           200 * time.Millisecond,
		ServerDelete:      200 * time.Millisecond,
		RetryMaxAttempts:  2,
		RetryInitialDelay: time.Millisecond,
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
