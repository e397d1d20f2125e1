package kube

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/imamik/metal/internal/helm"
)

// Target is everything a stage can do against one cluster.
type Target interface {
	Client
	helm.Installer
}

type target struct {
	Client
	helm.Installer
}

// NewTarget pairs a Client with an Installer for the same cluster.
func NewTarget(c Client, i helm.Installer) Target {
	return &target{Client: c, Installer: i}
}

// Connector opens a Target for a tenant kubeconfig.
type Connector func(kubeconfig []byte) (Target, error)

// Connect opens a Target from kubeconfig bytes.
func Connect(kubeconfig []byte, log logr.Logger) (Target, error) {
	c, err := NewFromKubeconfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	return NewTarget(c, helm.NewClient(kubeconfig, log)), nil
}

// NewConnector returns a Connector that logs helm activity to log.
func NewConnector(log logr.Logger) Connector {
	return func(kubeconfig []byte) (Target, error) {
		return Connect(kubeconfig, log)
	}
}

// NewGateway opens the management cluster from the kubeconfig at path. It
// is constructed once at process start and shared by every workflow.
func NewGateway(path string, log logr.Logger) (Target, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read management kubeconfig: %w", err)
	}
	t, err := Connect(data, log.WithName("management"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to management cluster: %w", err)
	}
	return t, nil
}
