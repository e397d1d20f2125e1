package helm

// Chart keys used across the provisioning stages.
const (
	ChartCilium         = "cilium"
	ChartHCloudCCM      = "hcloud-ccm"
	ChartHCloudCSI      = "hcloud-csi"
	ChartMetricsServer  = "metrics-server"
	ChartKubePrometheus = "kube-prometheus-stack"
	ChartMinIOOperator  = "minio-operator"
	ChartMinIOTenant    = "minio-tenant"
	ChartQuickwit       = "quickwit"
	ChartJaeger         = "jaeger"
	ChartRegistry       = "docker-registry"
	ChartArgoRollouts   = "argo-rollouts"
)

// DefaultChartSpecs contains the default chart specifications for each
// component installed on tenant clusters.
var DefaultChartSpecs = map[string]ChartSpec{
	ChartCilium: {
		Repository: "https://helm.cilium.io",
		Name:       "cilium",
		Version:    "1.18.5",
	},
	ChartHCloudCCM: {
		Repository: "https://charts.hetzner.cloud",
		Name:       "hcloud-cloud-controller-manager",
		Version:    "1.29.0",
	},
	ChartHCloudCSI: {
		Repository: "https://charts.hetzner.cloud",
		Name:       "hcloud-csi",
		Version:    "2.18.3",
	},
	ChartMetricsServer: {
		Repository: "https://kubernetes-sigs.github.io/metrics-server",
		Name:       "metrics-server",
		Version:    "3.12.2",
	},
	ChartKubePrometheus: {
		Repository: "https://prometheus-community.github.io/helm-charts",
		Name:       "kube-prometheus-stack",
		Version:    "77.0.0",
	},
	ChartMinIOOperator: {
		Repository: "https://operator.min.io",
		Name:       "operator",
		Version:    "7.1.1",
	},
	ChartMinIOTenant: {
		Repository: "https://operator.min.io",
		Name:       "tenant",
		Version:    "7.1.1",
	},
	ChartQuickwit: {
		Repository: "https://helm.quickwit.io",
		Name:       "quickwit",
		Version:    "0.7.17",
	},
	ChartJaeger: {
		Repository: "https://jaegertracing.github.io/helm-charts",
		Name:       "jaeger",
		Version:    "3.4.1",
	},
	ChartRegistry: {
		Repository: "https://helm.twun.io",
		Name:       "docker-registry",
		Version:    "2.3.0",
	},
	ChartArgoRollouts: {
		Repository: "https://argoproj.github.io/argo-helm",
		Name:       "argo-rollouts",
		Version:    "2.40.0",
	},
}
