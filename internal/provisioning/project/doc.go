// Package project connects and disconnects Hetzner Cloud projects.
//
// CreateHetznerProject validates the API token, obtains an SSH key pair,
// registers the public key as metal-<id> without ever overwriting a
// foreign key of that name, and persists the project. It either fully
// completes or fails before persisting anything.
//
// DeleteHetznerProject refuses while clusters still reference the project.
package project
