// Package cluster provisions tenant Kubernetes clusters on Hetzner Cloud.
//
// ProvisionHetznerCluster births the cluster through cluster-api on the
// management cluster, then bootstraps the tenant: CNI, cloud controller,
// storage, load-balancer IP announcement, DNS, the observability stack,
// a registry, progressive delivery and a TLS gateway, finishing with a
// smoke test of the ingress path.
//
// Every stage first asks the target system whether its outcome already
// exists, so a run that failed or timed out can simply be invoked again
// and resumes after the last completed stage.
package cluster
