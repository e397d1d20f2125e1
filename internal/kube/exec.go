package kube

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
)

// ExecRequest selects the container and command to run.
type ExecRequest struct {
	Namespace string
	Pod       string
	Container string
	Command   []string
}

// errNoRESTConfig is returned by Exec on clients built from fakes.
var errNoRESTConfig = errors.New("exec requires a client built from a kubeconfig")

// Exec runs the command through the pod exec subresource and collects its
// output. A non-zero exit is returned as an error alongside the output.
func (c *client) Exec(ctx context.Context, req ExecRequest) (string, string, error) {
	if c.restConfig == nil {
		return "", "", errNoRESTConfig
	}

	request := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(req.Namespace).
		Name(req.Pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: req.Container,
			Command:   req.Command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(c.restConfig, "POST", request.URL())
	if err != nil {
		return "", "", fmt.Errorf("failed to create executor for %s/%s: %w", req.Namespace, req.Pod, err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("exec in %s/%s failed: %w", req.Namespace, req.Pod, err)
	}
	return stdout.String(), stderr.String(), nil
}
