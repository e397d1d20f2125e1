// Package model holds the records the orchestrator reads and writes:
// connected Hetzner projects, tenant clusters and their node groups.
package model

import (
	"encoding/base64"
	"fmt"
	"time"
)

// NodeGroupTypeAll is the only node-group role currently offered.
const NodeGroupTypeAll = "all"

// Project is a connected Hetzner Cloud account. Exactly one exists per team.
//
// Credential and key fields hold base64 text exactly as persisted.
type Project struct {
	ID                    string
	TeamID                string
	CreatorID             string
	Name                  string
	EncodedAPIToken       string
	SSHKeyName            string
	EncodedPublicKey      string
	EncodedPrivateKey     string
	EncodedWebServiceUser string
	EncodedWebServicePass string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// APIToken returns the decoded cloud API token.
func (p *Project) APIToken() (string, error) {
	return decode("api token", p.EncodedAPIToken)
}

// PublicKey returns the decoded OpenSSH public key.
func (p *Project) PublicKey() (string, error) {
	return decode("public key", p.EncodedPublicKey)
}

// WebServiceCredentials returns the decoded robot web-service user and
// password. Both are empty when the project has none.
func (p *Project) WebServiceCredentials() (user, password string, err error) {
	if user, err = decode("web service user", p.EncodedWebServiceUser); err != nil {
		return "", "", err
	}
	if password, err = decode("web service password", p.EncodedWebServicePass); err != nil {
		return "", "", err
	}
	return user, password, nil
}

// Encode returns the persisted representation of a secret value.
func Encode(v string) string {
	if v == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(v))
}

func decode(field, v string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", field, err)
	}
	return string(b), nil
}

// Cluster is a tenant Kubernetes cluster.
type Cluster struct {
	ID                string
	TeamID            string
	CreatorID         string
	ProjectID         string
	Name              string
	Status            ClusterStatus
	NetworkZone       string
	Location          string
	KubernetesVersion string
	ClusterctlVersion string
	Manifest          string
	Kubeconfig        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasManifest reports whether a manifest was generated for the cluster.
func (c *Cluster) HasManifest() bool { return c.Manifest != "" }

// HasKubeconfig reports whether the tenant kubeconfig is known.
func (c *Cluster) HasKubeconfig() bool { return c.Kubeconfig != "" }

// NodeGroup is a homogeneous pool of worker machines.
type NodeGroup struct {
	ID           string
	ClusterID    string
	Type         string
	InstanceType string
	MinNodes     int
	MaxNodes     int
	CreatedAt    time.Time
}

// Validate checks the node group against what provisioning supports.
// Autoscaling is not offered, so the pool size must be fixed.
func (g *NodeGroup) Validate() error {
	if g.InstanceType == "" {
		return fmt.Errorf("node group %s: instance type is required", g.ID)
	}
	if g.MinNodes < 1 {
		return fmt.Errorf("node group %s: at least one node is required", g.ID)
	}
	if g.MinNodes != g.MaxNodes {
		return fmt.Errorf("node group %s: min (%d) and max (%d) nodes must match", g.ID, g.MinNodes, g.MaxNodes)
	}
	return nil
}

// WorkerCount sums the fixed sizes of all node groups.
func WorkerCount(groups []NodeGroup) int {
	n := 0
	for _, g := range groups {
		n += g.MaxNodes
	}
	return n
}
