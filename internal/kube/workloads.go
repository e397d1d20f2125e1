package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DaemonSetReady reports whether the daemonset has scheduled at least one
// pod and every scheduled pod runs the current spec and is ready. A missing
// daemonset is not ready.
func (c *client) DaemonSetReady(ctx context.Context, namespace, name string) (bool, error) {
	ds, err := c.clientset.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get daemonset %s/%s: %w", namespace, name, err)
	}

	s := ds.Status
	return s.ObservedGeneration >= ds.Generation &&
		s.DesiredNumberScheduled > 0 &&
		s.NumberReady == s.DesiredNumberScheduled &&
		s.UpdatedNumberScheduled == s.DesiredNumberScheduled, nil
}

// ListPods lists pods matching a label selector.
func (c *client) ListPods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	return pods.Items, nil
}
