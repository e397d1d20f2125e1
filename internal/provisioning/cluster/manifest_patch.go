package cluster

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/yaml"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/imamik/metal/internal/model"
)

// Ports the control-plane load balancer forwards to the nodes.
const (
	apiServerPort = 6443
	httpPort      = 80
	httpsPort     = 443
)

// decodeDocuments splits a multi-document manifest into objects, skipping
// empty documents.
func decodeDocuments(manifests []byte) ([]*unstructured.Unstructured, error) {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifests), 4096)

	var objs []*unstructured.Unstructured
	for {
		var raw unstructured.Unstructured
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML document: %w", err)
		}
		if len(raw.Object) == 0 {
			continue
		}
		objs = append(objs, &raw)
	}
	return objs, nil
}

// encodeDocuments joins objects with the YAML document separator.
func encodeDocuments(objs []*unstructured.Unstructured) ([]byte, error) {
	var buf bytes.Buffer
	for i, obj := range objs {
		out, err := sigsyaml.Marshal(obj.Object)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal YAML document: %w", err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(out)
	}
	return buf.Bytes(), nil
}

// patchClusterTemplate points the HetznerCluster of the provider template at
// the team's credentials secret and makes its load balancer forward the API
// server port plus HTTP and HTTPS.
func patchClusterTemplate(template []byte, secretName string) ([]byte, error) {
	objs, err := decodeDocuments(template)
	if err != nil {
		return nil, err
	}

	patched := false
	for _, obj := range objs {
		if obj.GetKind() != "HetznerCluster" {
			continue
		}
		if err := unstructured.SetNestedField(obj.Object, secretName, "spec", "hetznerSecretRef", "name"); err != nil {
			return nil, fmt.Errorf("failed to set hetznerSecretRef: %w", err)
		}
		if err := unstructured.SetNestedField(obj.Object, "hcloud", "spec", "hetznerSecretRef", "key", "hcloudToken"); err != nil {
			return nil, fmt.Errorf("failed to set hetznerSecretRef key: %w", err)
		}
		if err := unstructured.SetNestedField(obj.Object, int64(apiServerPort), "spec", "controlPlaneLoadBalancer", "port"); err != nil {
			return nil, fmt.Errorf("failed to set load balancer port: %w", err)
		}
		services := []any{
			map[string]any{"protocol": "tcp", "listenPort": int64(httpPort), "destinationPort": int64(httpPort)},
			map[string]any{"protocol": "tcp", "listenPort": int64(httpsPort), "destinationPort": int64(httpsPort)},
		}
		if err := unstructured.SetNestedSlice(obj.Object, services, "spec", "controlPlaneLoadBalancer", "extraServices"); err != nil {
			return nil, fmt.Errorf("failed to set load balancer services: %w", err)
		}
		patched = true
	}
	if !patched {
		return nil, fmt.Errorf("HetznerCluster not found in cluster template")
	}
	return encodeDocuments(objs)
}

// addNodeGroups clones the generated worker MachineDeployment and its
// machine template for every node group after the first, which the
// generator already rendered as md-0.
func addNodeGroups(manifest []byte, clusterName string, groups []model.NodeGroup) ([]byte, error) {
	if len(groups) < 2 {
		return manifest, nil
	}
	objs, err := decodeDocuments(manifest)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("%s-md-0", clusterName)
	var deployment, template *unstructured.Unstructured
	for _, obj := range objs {
		switch {
		case obj.GetKind() == "MachineDeployment" && obj.GetName() == base:
			deployment = obj
		case obj.GetKind() == "HCloudMachineTemplate" && obj.GetName() == base:
			template = obj
		}
	}
	if deployment == nil || template == nil {
		return nil, fmt.Errorf("worker MachineDeployment %q not found in manifest", base)
	}

	for i, g := range groups[1:] {
		name := fmt.Sprintf("%s-md-%d", clusterName, i+1)

		tmpl := template.DeepCopy()
		tmpl.SetName(name)
		if err := unstructured.SetNestedField(tmpl.Object, g.InstanceType, "spec", "template", "spec", "type"); err != nil {
			return nil, fmt.Errorf("node group %s: %w", g.ID, err)
		}

		md := deployment.DeepCopy()
		md.SetName(name)
		if err := unstructured.SetNestedField(md.Object, int64(g.MaxNodes), "spec", "replicas"); err != nil {
			return nil, fmt.Errorf("node group %s: %w", g.ID, err)
		}
		if err := unstructured.SetNestedField(md.Object, name, "spec", "template", "spec", "infrastructureRef", "name"); err != nil {
			return nil, fmt.Errorf("node group %s: %w", g.ID, err)
		}
		if err := unstructured.SetNestedField(md.Object, name, "spec", "selector", "matchLabels", labelDeployment); err != nil {
			return nil, fmt.Errorf("node group %s: %w", g.ID, err)
		}
		if err := unstructured.SetNestedField(md.Object, name, "spec", "template", "metadata", "labels", labelDeployment); err != nil {
			return nil, fmt.Errorf("node group %s: %w", g.ID, err)
		}

		objs = append(objs, tmpl, md)
	}
	return encodeDocuments(objs)
}

// labelDeployment selects the machines of one MachineDeployment.
const labelDeployment = "cluster.x-k8s.io/deployment-name"
