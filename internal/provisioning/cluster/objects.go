package cluster

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/util/naming"
)

// labelCluster marks objects created for a tenant cluster.
const labelCluster = "metal.dev/cluster"

// newObject builds an object with the given spec. Values must be JSON
// types: strings, bools, int64, []any and map[string]any.
func newObject(gvk schema.GroupVersionKind, namespace, name string, spec map[string]any) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]any{}}
	obj.SetGroupVersionKind(gvk)
	obj.SetNamespace(namespace)
	obj.SetName(name)
	if spec != nil {
		obj.Object["spec"] = spec
	}
	return obj
}

// labeled tags obj with the cluster id.
func labeled(ctx *provisioning.Context, obj *unstructured.Unstructured) *unstructured.Unstructured {
	labels := obj.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	labels[labelCluster] = ctx.Cluster.ID
	obj.SetLabels(labels)
	return obj
}

func exists(ctx *provisioning.Context, c kube.Client, gvk schema.GroupVersionKind, namespace, name string) (bool, error) {
	obj, err := c.Get(ctx, gvk, namespace, name)
	if err != nil {
		return false, err
	}
	return obj != nil, nil
}

// conditionTrue reports whether status.conditions holds condType with
// status "True".
func conditionTrue(obj *unstructured.Unstructured, condType string) bool {
	if obj == nil {
		return false
	}
	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	for _, c := range conditions {
		cond, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if cond["type"] == condType {
			return cond["status"] == "True"
		}
	}
	return false
}

func managementNamespace(ctx *provisioning.Context) string {
	return ctx.Config.ManagementNamespace
}

func clusterDomain(ctx *provisioning.Context) string {
	return naming.ClusterDomain(ctx.Cluster.Name, ctx.Config.PlatformDomain)
}
