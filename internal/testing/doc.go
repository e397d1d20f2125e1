// Package testing provides fakes and fixtures for workflow tests.
//
// The fakes keep state in memory and record every mutating call in a
// shared CallLog so tests can assert on ordering across clusters:
//   - FakeTarget: kube.Target (objects, secrets, releases, nodes, exec)
//   - FakeRunner: runner.Runner answering by span name
//   - FakeCloud: hcloud.CloudProvider with SSH keys and servers
//   - MockKeyGenerator: testify mock of the SSH key generator
//
// Usage:
//
//	f := testing.NewFixture(t)
//	f.SuccessfulProvisioning()
//	err := cluster.ProvisionHetznerCluster(ctx, f.Deps, f.Cluster.ID)
package testing
