// Package hcloud is the orchestrator's client for the Hetzner Cloud API.
//
// It covers what the project and teardown workflows need: validating a
// project's API token, registering the project SSH key and enumerating
// or deleting compute servers. Every client is bound to one project's
// bearer token; use a Factory to build one per project.
package hcloud
