package kube

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientretry "k8s.io/client-go/util/retry"
)

// NodeExternalIPs returns the first external IP of every node, ordered by
// node name so that callers picking the first address are stable across
// runs.
func (c *client) NodeExternalIPs(ctx context.Context) ([]string, error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	items := nodes.Items
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	var externalIPs []string
	for _, node := range items {
		for _, addr := range node.Status.Addresses {
			if addr.Type == corev1.NodeExternalIP && addr.Address != "" {
				externalIPs = append(externalIPs, addr.Address)
				break
			}
		}
	}
	return externalIPs, nil
}

// RemoveNodeTaint removes every taint with the given key. Nodes without the
// taint are left alone.
func (c *client) RemoveNodeTaint(ctx context.Context, key string) (int, error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to list nodes: %w", err)
	}

	changed := 0
	for _, node := range nodes.Items {
		if !hasTaint(node.Spec.Taints, key) {
			continue
		}
		err := clientretry.RetryOnConflict(clientretry.DefaultRetry, func() error {
			current, err := c.clientset.CoreV1().Nodes().Get(ctx, node.Name, metav1.GetOptions{})
			if err != nil {
				return err
			}
			current.Spec.Taints = withoutTaint(current.Spec.Taints, key)
			_, err = c.clientset.CoreV1().Nodes().Update(ctx, current, metav1.UpdateOptions{FieldManager: FieldManager})
			return err
		})
		if err != nil {
			return changed, fmt.Errorf("failed to remove taint %s from node %s: %w", key, node.Name, err)
		}
		changed++
	}
	return changed, nil
}

func hasTaint(taints []corev1.Taint, key string) bool {
	for _, t := range taints {
		if t.Key == key {
			return true
		}
	}
	return false
}

func withoutTaint(taints []corev1.Taint, key string) []corev1.Taint {
	out := taints[:0:0]
	for _, t := range taints {
		if t.Key != key {
			out = append(out, t)
		}
	}
	return out
}
