// Package helm installs, inspects and uninstalls Helm releases on a
// cluster reached through in-memory kubeconfig bytes.
//
// Charts are located in their upstream repositories at install time. The
// pinned repository and version of every chart the orchestrator installs
// live in DefaultChartSpecs and can be overridden from configuration.
package helm
