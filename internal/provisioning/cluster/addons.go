package cluster

import (
	"github.com/imamik/metal/internal/helm"
	"github.com/imamik/metal/internal/provisioning"
)

// In-cluster endpoints the observability components use to find each other.
const (
	minioEndpoint    = "http://minio.minio.svc.cluster.local"
	quickwitSearcher = "quickwit-searcher.observability.svc.cluster.local"
	jaegerQueryURL   = "http://jaeger-query.observability.svc.cluster.local:16686"

	quickwitBucket = "quickwit"
	volumeSize     = "20Gi"

	gatewayAPIPlugin         = "argoproj-labs/gatewayAPI"
	gatewayAPIPluginLocation = "https://github.com/argoproj-labs/rollouts-plugin-trafficrouter-gatewayapi/releases/download/v0.5.0/gatewayapi-plugin-linux-amd64"
)

func metricsServerStage() provisioning.Stage {
	return release{
		stage:     "metrics-server",
		chart:     helm.ChartMetricsServer,
		name:      "metrics-server",
		namespace: nsKubeSystem,
		values: func(*provisioning.Context) (helm.Values, error) {
			return helm.Values{
				"args": []any{"--kubelet-insecure-tls"},
			}, nil
		},
	}.Stage()
}

// monitoringStage installs Prometheus and Grafana with Quickwit logs and
// Jaeger traces pre-wired as datasources.
func monitoringStage() provisioning.Stage {
	return release{
		stage:     "monitoring",
		chart:     helm.ChartKubePrometheus,
		name:      releaseMonitoring,
		namespace: nsMonitoring,
		values: func(*provisioning.Context) (helm.Values, error) {
			return monitoringValues(), nil
		},
	}.Stage()
}

func monitoringValues() helm.Values {
	return helm.Values{
		"prometheus": helm.Values{
			"prometheusSpec": helm.Values{
				"retention": "7d",
				"storageSpec": helm.Values{
					"volumeClaimTemplate": helm.Values{
						"spec": helm.Values{
							"storageClassName": storageClass,
							"accessModes":      []any{"ReadWriteOnce"},
							"resources": helm.Values{
								"requests": helm.Values{"storage": volumeSize},
							},
						},
					},
				},
			},
		},
		"grafana": helm.Values{
			"plugins": []any{"quickwit-quickwit-datasource"},
			"additionalDataSources": []helm.Values{
				{
					"name": "Quickwit",
					"type": "quickwit-quickwit-datasource",
					"url":  "http://" + quickwitSearcher + ":7280/api/v1",
					"jsonData": helm.Values{
						"index":           "otel-logs-v0_7",
						"logMessageField": "body.message",
					},
				},
				{
					"name": "Jaeger",
					"type": "jaeger",
					"url":  jaegerQueryURL,
				},
			},
		},
	}
}

func minioOperatorStage() provisioning.Stage {
	return release{
		stage:     "minio-operator",
		chart:     helm.ChartMinIOOperator,
		name:      "minio-operator",
		namespace: nsMinIOOperator,
	}.Stage()
}

// minioTenantStage creates the object store backing Quickwit, using the
// credentials objectStorageCredentialsStage generated.
func minioTenantStage() provisioning.Stage {
	return release{
		stage:     "minio-tenant",
		chart:     helm.ChartMinIOTenant,
		name:      releaseMinIOTenant,
		namespace: nsMinIO,
		values: func(*provisioning.Context) (helm.Values, error) {
			return helm.Values{
				"tenant": helm.Values{
					"name": releaseMinIOTenant,
					"configSecret": helm.Values{
						"name":           objectStorageSecret,
						"existingSecret": true,
					},
					"pools": []helm.Values{
						{
							"name":             "pool-0",
							"servers":          1,
							"volumesPerServer": 1,
							"size":             volumeSize,
							"storageClassName": storageClass,
						},
					},
					"buckets": []helm.Values{
						{"name": quickwitBucket},
					},
					"certificate": helm.Values{
						"requestAutoCert": false,
					},
				},
			}, nil
		},
	}.Stage()
}

// quickwitStage indexes logs and traces into the MinIO bucket.
func quickwitStage() provisioning.Stage {
	return release{
		stage:     "quickwit",
		chart:     helm.ChartQuickwit,
		name:      "quickwit",
		namespace: nsObservability,
		values: func(*provisioning.Context) (helm.Values, error) {
			return helm.Values{
				"config": helm.Values{
					"default_index_root_uri": "s3://" + quickwitBucket + "/indexes",
					"storage": helm.Values{
						"s3": helm.Values{
							"endpoint":                minioEndpoint,
							"region":                  "us-east-1",
							"force_path_style_access": true,
						},
					},
				},
				"environmentFrom": []helm.Values{
					{"secretRef": helm.Values{"name": objectStorageSecret}},
				},
			}, nil
		},
	}.Stage()
}

// jaegerStage runs only the Jaeger query UI, reading traces from Quickwit
// over the gRPC storage API.
func jaegerStage() provisioning.Stage {
	return release{
		stage:     "jaeger",
		chart:     helm.ChartJaeger,
		name:      "jaeger",
		namespace: nsObservability,
		values: func(*provisioning.Context) (helm.Values, error) {
			return helm.Values{
				"provisionDataStore": helm.Values{"cassandra": false},
				"storage":            helm.Values{"type": "grpc"},
				"allInOne":           helm.Values{"enabled": false},
				"agent":              helm.Values{"enabled": false},
				"collector":          helm.Values{"enabled": false},
				"query": helm.Values{
					"enabled": true,
					"extraEnv": []helm.Values{
						{"name": "SPAN_STORAGE_TYPE", "value": "grpc"},
						{"name": "GRPC_STORAGE_SERVER", "value": quickwitSearcher + ":7281"},
					},
				},
			}, nil
		},
	}.Stage()
}

// registryStage runs a private registry with basic auth on a persistent
// volume.
func registryStage() provisioning.Stage {
	return release{
		stage:     "registry",
		chart:     helm.ChartRegistry,
		name:      releaseRegistry,
		namespace: nsRegistry,
		values: func(ctx *provisioning.Context) (helm.Values, error) {
			htpasswd, err := registryHtpasswd(ctx)
			if err != nil {
				return nil, err
			}
			return helm.Values{
				"secrets": helm.Values{
					"htpasswd": htpasswd,
				},
				"persistence": helm.Values{
					"enabled":      true,
					"size":         volumeSize,
					"storageClass": storageClass,
				},
			}, nil
		},
	}.Stage()
}

// argoRolloutsStage installs the canary controller with the Gateway API
// traffic router plugin.
func argoRolloutsStage() provisioning.Stage {
	return release{
		stage:     "argo-rollouts",
		chart:     helm.ChartArgoRollouts,
		name:      "argo-rollouts",
		namespace: nsArgoRollouts,
		values: func(*provisioning.Context) (helm.Values, error) {
			return helm.Values{
				"controller": helm.Values{
					"trafficRouterPlugins": []helm.Values{
						{"name": gatewayAPIPlugin, "location": gatewayAPIPluginLocation},
					},
				},
				"providerRBAC": helm.Values{"enabled": true},
			}, nil
		},
	}.Stage()
}
