// Package handlers implements the metal CLI commands.
//
// Each handler loads the configuration, assembles the workflow
// dependencies and runs one workflow to completion through the workflow
// engine. Construction goes through package-level factory variables so
// tests can substitute in-memory collaborators.
package handlers
