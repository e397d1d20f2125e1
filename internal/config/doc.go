// Package config loads the orchestrator's process configuration.
//
// Settings come from an optional YAML file with METAL_* environment
// variables taking precedence. Wait timeouts are read separately by
// LoadTimeouts so that operators can tune them without a config file.
package config
