// Package kube provides typed access to the management cluster and to
// tenant clusters: server-side apply of manifests, structured reads,
// ignore-not-found deletes, secrets, namespaces, nodes, pod exec and
// readiness checks. A Target pairs a Client with a Helm installer for the
// same cluster.
package kube
