package kube

import "k8s.io/apimachinery/pkg/runtime/schema"

// Kinds the orchestrator reads or writes through the dynamic client.
var (
	ClusterGVK             = schema.GroupVersionKind{Group: "cluster.x-k8s.io", Version: "v1beta1", Kind: "Cluster"}
	KubeadmControlPlaneGVK = schema.GroupVersionKind{Group: "controlplane.cluster.x-k8s.io", Version: "v1beta1", Kind: "KubeadmControlPlane"}
	CertificateGVK         = schema.GroupVersionKind{Group: "cert-manager.io", Version: "v1", Kind: "Certificate"}
	DNSEndpointGVK         = schema.GroupVersionKind{Group: "externaldns.k8s.io", Version: "v1alpha1", Kind: "DNSEndpoint"}
	GatewayGVK             = schema.GroupVersionKind{Group: "gateway.networking.k8s.io", Version: "v1", Kind: "Gateway"}
	HTTPRouteGVK           = schema.GroupVersionKind{Group: "gateway.networking.k8s.io", Version: "v1", Kind: "HTTPRoute"}
	RolloutGVK             = schema.GroupVersionKind{Group: "argoproj.io", Version: "v1alpha1", Kind: "Rollout"}
	LBIPPoolGVK            = schema.GroupVersionKind{Group: "cilium.io", Version: "v2alpha1", Kind: "CiliumLoadBalancerIPPool"}
	L2PolicyGVK            = schema.GroupVersionKind{Group: "cilium.io", Version: "v2alpha1", Kind: "CiliumL2AnnouncementPolicy"}
	ServiceGVK             = schema.GroupVersionKind{Version: "v1", Kind: "Service"}
	CRDGVK                 = schema.GroupVersionKind{Group: "apiextensions.k8s.io", Version: "v1", Kind: "CustomResourceDefinition"}
)
