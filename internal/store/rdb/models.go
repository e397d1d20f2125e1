package rdb

import "time"

// ProjectRecord persistence model. Secret columns hold base64 text.
// Table name: hetzner_projects
type ProjectRecord struct {
	ID             string    `gorm:"primaryKey;type:text;not null"`
	TeamID         string    `gorm:"type:text;not null;uniqueIndex"`
	CreatorID      string    `gorm:"type:text;not null"`
	Name           string    `gorm:"type:text;not null"`
	APIToken       string    `gorm:"type:text;not null"`
	SSHKeyName     string    `gorm:"type:text;not null"`
	PublicKey      string    `gorm:"type:text;not null"`
	PrivateKey     string    `gorm:"type:text;not null"`
	WebServiceUser string    `gorm:"type:text"`
	WebServicePass string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (ProjectRecord) TableName() string { return "hetzner_projects" }

// ClusterRecord persistence model
type ClusterRecord struct {
	ID                string    `gorm:"primaryKey;type:text;not null"`
	TeamID            string    `gorm:"type:text;not null"`
	CreatorID         string    `gorm:"type:text;not null"`
	ProjectID         string    `gorm:"type:text;not null;index"` // references Project
	Name              string    `gorm:"type:text;not null;uniqueIndex"`
	Status            string    `gorm:"type:text;not null"`
	NetworkZone       string    `gorm:"type:text;not null"`
	Location          string    `gorm:"type:text;not null"`
	KubernetesVersion string    `gorm:"type:text;not null"`
	ClusterctlVersion string    `gorm:"type:text"`
	Manifest          string    `gorm:"type:text"`
	Kubeconfig        string    `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (ClusterRecord) TableName() string { return "hetzner_clusters" }

// NodeGroupRecord persistence model
type NodeGroupRecord struct {
	ID           string    `gorm:"primaryKey;type:text;not null"`
	ClusterID    string    `gorm:"type:text;not null;index"` // references Cluster
	Type         string    `gorm:"type:text;not null"`
	InstanceType string    `gorm:"type:text;not null"`
	MinNodes     int       `gorm:"not null"`
	MaxNodes     int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (NodeGroupRecord) TableName() string { return "hetzner_node_groups" }
