package cluster

import (
	"fmt"
	"net"
	"net/url"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/imamik/metal/internal/helm"
	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/util/naming"
)

const (
	ciliumDaemonSet = "cilium"
	gatewayCRD      = "gateways.gateway.networking.k8s.io"

	// hcloudSecret is the secret the cloud controller and CSI driver read.
	hcloudSecret = "hcloud"

	ipPoolName   = "metal-pool"
	l2PolicyName = "metal-l2"

	controlPlaneTaint = "node-role.kubernetes.io/control-plane"
	storageClass      = "hcloud-volumes"
	podCIDR           = "10.244.0.0/16"
)

// gatewayAPICRDsStage installs the Gateway API CRDs. They go in before the
// CNI because Cilium only starts its gateway controller when they exist.
func gatewayAPICRDsStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "gateway-api-crds",
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			return exists(ctx, t, kube.CRDGVK, "", gatewayCRD)
		},
		Do: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			manifests, err := fetch(ctx, ctx.Config.Templates.GatewayAPICRDsURL)
			if err != nil {
				return fmt.Errorf("failed to fetch Gateway API CRDs: %w", err)
			}
			if err := t.ApplyManifests(ctx, manifests); err != nil {
				return fmt.Errorf("failed to apply Gateway API CRDs: %w", err)
			}
			return nil
		},
	}
}

func cniStage() provisioning.Stage {
	return release{
		stage:     "cni",
		chart:     helm.ChartCilium,
		name:      "cilium",
		namespace: nsKubeSystem,
		values: func(ctx *provisioning.Context) (helm.Values, error) {
			host, port, err := apiServerEndpoint(ctx.Cluster.Kubeconfig)
			if err != nil {
				return nil, err
			}
			return ciliumValues(host, port), nil
		},
	}.Stage()
}

func ciliumValues(apiHost, apiPort string) helm.Values {
	return helm.Values{
		"ipam": helm.Values{
			"mode": "kubernetes",
		},
		"k8sServiceHost":       apiHost,
		"k8sServicePort":       apiPort,
		"kubeProxyReplacement": true,
		"l2announcements": helm.Values{
			"enabled": true,
		},
		"externalIPs": helm.Values{
			"enabled": true,
		},
		"gatewayAPI": helm.Values{
			"enabled": true,
		},
		"operator": helm.Values{
			"replicas": 1,
		},
		"k8sClientRateLimit": helm.Values{
			"qps":   50,
			"burst": 100,
		},
	}
}

// apiServerEndpoint returns the host and port of the current context's
// server. Cilium replaces kube-proxy and cannot use the service IP.
func apiServerEndpoint(kubeconfig string) (string, string, error) {
	cfg, err := clientcmd.Load([]byte(kubeconfig))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse kubeconfig: %w", err)
	}
	kctx, ok := cfg.Contexts[cfg.CurrentContext]
	if !ok {
		return "", "", fmt.Errorf("kubeconfig has no current context")
	}
	cluster, ok := cfg.Clusters[kctx.Cluster]
	if !ok {
		return "", "", fmt.Errorf("kubeconfig context %q references unknown cluster", cfg.CurrentContext)
	}
	u, err := url.Parse(cluster.Server)
	if err != nil {
		return "", "", fmt.Errorf("invalid API server URL: %w", err)
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return u.Hostname(), port, nil
}

func cniReadyStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "cni-ready",
		Wait: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			return ctx.Await("cilium daemonset", ctx.Timeouts.CNI, func(ctx *provisioning.Context) (bool, error) {
				return t.DaemonSetReady(ctx, nsKubeSystem, ciliumDaemonSet)
			})
		},
	}
}

// hcloudSecretStage stores the token and network name for the cloud
// controller manager and the CSI driver.
func (p *provision) hcloudSecretStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "hcloud-secret",
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			s, err := t.GetSecret(ctx, nsKubeSystem, hcloudSecret)
			return s != nil, err
		},
		Do: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			_, err = t.EnsureSecret(ctx, &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: hcloudSecret, Namespace: nsKubeSystem},
				Type:       corev1.SecretTypeOpaque,
				StringData: map[string]string{
					"token":   p.token,
					"network": naming.Network(ctx.Cluster.Name),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create hcloud secret: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "hcloud-secret", "Secret", nsKubeSystem+"/"+hcloudSecret)
			return nil
		},
	}
}

func ccmStage() provisioning.Stage {
	return release{
		stage:     "ccm",
		chart:     helm.ChartHCloudCCM,
		name:      "hccm",
		namespace: nsKubeSystem,
		values: func(ctx *provisioning.Context) (helm.Values, error) {
			return helm.Values{
				"networking": helm.Values{
					"enabled":     true,
					"clusterCIDR": podCIDR,
				},
				"env": helm.Values{
					"HCLOUD_LOAD_BALANCERS_LOCATION": helm.Values{"value": ctx.Cluster.Location},
				},
			}, nil
		},
	}.Stage()
}

func csiStage() provisioning.Stage {
	return release{
		stage:     "csi",
		chart:     helm.ChartHCloudCSI,
		name:      "hcloud-csi",
		namespace: nsKubeSystem,
		values: func(*provisioning.Context) (helm.Values, error) {
			return helm.Values{
				"storageClasses": []helm.Values{
					{
						"name":                storageClass,
						"defaultStorageClass": true,
						"reclaimPolicy":       "Delete",
					},
				},
			}, nil
		},
	}.Stage()
}

// nodeIP returns the external address of the first node, waiting for one
// to report it. The result is kept for the rest of the run.
func (p *provision) nodeIP(ctx *provisioning.Context) (string, error) {
	if p.externalIP != "" {
		return p.externalIP, nil
	}
	t, err := ctx.TenantTarget()
	if err != nil {
		return "", err
	}
	err = ctx.Await("node external IP", ctx.Timeouts.Nodes, func(ctx *provisioning.Context) (bool, error) {
		ips, err := t.NodeExternalIPs(ctx)
		if err != nil {
			ctx.Log.V(1).Info("listing nodes failed", "error", err.Error())
			return false, nil
		}
		if len(ips) == 0 {
			return false, nil
		}
		p.externalIP = ips[0]
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if net.ParseIP(p.externalIP) == nil {
		return "", fmt.Errorf("node reported invalid external IP %q", p.externalIP)
	}
	return p.externalIP, nil
}

// loadBalancerIPStage lets Cilium answer ARP for the first node's external
// IP so that LoadBalancer services and the gateway can use it.
func (p *provision) loadBalancerIPStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "load-balancer-ip",
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			pool, err := exists(ctx, t, kube.LBIPPoolGVK, "", ipPoolName)
			if err != nil || !pool {
				return false, err
			}
			return exists(ctx, t, kube.L2PolicyGVK, "", l2PolicyName)
		},
		Do: func(ctx *provisioning.Context) error {
			ip, err := p.nodeIP(ctx)
			if err != nil {
				return err
			}
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			pool := newObject(kube.LBIPPoolGVK, "", ipPoolName, map[string]any{
				"blocks": []any{map[string]any{"cidr": ip + "/32"}},
			})
			if err := t.Apply(ctx, labeled(ctx, pool)); err != nil {
				return fmt.Errorf("failed to create IP pool: %w", err)
			}
			policy := newObject(kube.L2PolicyGVK, "", l2PolicyName, map[string]any{
				"externalIPs":     true,
				"loadBalancerIPs": true,
				"interfaces":      []any{"^eth[0-9]+"},
			})
			if err := t.Apply(ctx, labeled(ctx, policy)); err != nil {
				return fmt.Errorf("failed to create L2 announcement policy: %w", err)
			}
			ctx.Log.Info("load balancer IP configured", "ip", ip)
			return nil
		},
	}
}

// controlPlaneTaintStage lets workloads schedule on the control plane.
// Failing to remove the taint only wastes capacity, so it never fails the
// run.
func controlPlaneTaintStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "control-plane-taint",
		Do: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			n, err := t.RemoveNodeTaint(ctx, controlPlaneTaint)
			if err != nil {
				ctx.Log.Error(err, "failed to remove control-plane taint")
				return nil
			}
			ctx.Log.V(1).Info("control-plane taint removed", "nodes", n)
			return nil
		},
	}
}
