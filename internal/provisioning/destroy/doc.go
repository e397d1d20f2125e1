// Package destroy tears tenant clusters down.
//
// DeleteHetznerCluster releases the tenant's persistent volumes by
// uninstalling the stateful Helm releases first, then removes the
// cluster-api Cluster, DNS endpoint and certificate from the management
// cluster. The infrastructure provider deletes the machines asynchronously;
// ConfirmDestroyed records the end of that teardown and ForceDeleteServers
// removes servers it left behind.
package destroy
