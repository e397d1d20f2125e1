// Package provisioning provides the stage executor shared by the project,
// provisioning and deletion workflows.
//
// # Subpackages
//
//   - project/ — CreateHetznerProject, DeleteHetznerProject
//   - cluster/ — ProvisionHetznerCluster and its stages
//   - destroy/ — DeleteHetznerCluster, ForceDeleteServers, ConfirmDestroyed
//
// # Core Types
//
// Deps carries the long-lived collaborators (store, management cluster,
// command runner, cloud client factory) built once at process start.
// Context carries Deps plus the records loaded for one workflow run.
// Stage is a named unit of work with a side-effect free precondition, an
// action and a bounded wait; RunStages executes stages in order and skips
// those whose precondition already holds, which makes every workflow
// resumable after a crash or a timeout.
package provisioning
