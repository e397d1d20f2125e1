// Package naming derives the names of every resource the orchestrator
// creates, so that reruns find what a previous attempt created.
package naming

import (
	"fmt"

	petname "github.com/dustinkirkland/golang-petname"
)

// SSHKey is the Hetzner Cloud SSH key registered for a project.
func SSHKey(projectID string) string {
	return fmt.Sprintf("metal-%s", projectID)
}

// CredentialsSecret holds a team's cloud token on the management cluster.
func CredentialsSecret(teamID string) string {
	return fmt.Sprintf("hetzner-%s", teamID)
}

// ClusterDomain is the DNS zone delegated to a tenant cluster.
func ClusterDomain(cluster, platformDomain string) string {
	return fmt.Sprintf("%s.%s", cluster, platformDomain)
}

// WildcardHost covers every hostname under the cluster's domain.
func WildcardHost(cluster, platformDomain string) string {
	return "*." + ClusterDomain(cluster, platformDomain)
}

func Certificate(cluster string) string {
	return fmt.Sprintf("%s-wildcard", cluster)
}

func CertificateSecret(cluster string) string {
	return fmt.Sprintf("%s-wildcard-tls", cluster)
}

func DNSEndpoint(cluster string) string {
	return fmt.Sprintf("%s-wildcard", cluster)
}

// KubeconfigSecret is the secret cluster-api writes the admin kubeconfig to.
func KubeconfigSecret(cluster string) string {
	return fmt.Sprintf("%s-kubeconfig", cluster)
}

// ControlPlane is the KubeadmControlPlane of the generated manifest.
func ControlPlane(cluster string) string {
	return fmt.Sprintf("%s-control-plane", cluster)
}

// Network is the Hetzner private network cluster-api creates.
func Network(cluster string) string {
	return cluster
}

// ClusterName returns a random human-readable name such as
// "gently-brave-otter".
func ClusterName() string {
	return petname.Generate(3, "-")
}
