package cluster

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/util/naming"
)

const (
	gatewayName  = "metal-gateway"
	gatewayClass = "cilium"

	smokeTestName   = "smoke-test"
	smokeTestCanary = "smoke-test-canary"
	smokeTestImage  = "nginxinc/nginx-unprivileged:1.27-alpine"
	smokeTestPort   = 8080
	smokeTestHost   = "smoke"
)

// gatewayStage exposes the cluster's wildcard hostname on the node IP,
// terminating TLS with the copied certificate.
func (p *provision) gatewayStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "gateway",
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			return exists(ctx, t, kube.GatewayGVK, nsGateway, gatewayName)
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
			if err := t.Apply(ctx, labeled(ctx, gatewayObject(ctx, ip))); err != nil {
				return fmt.Errorf("failed to create gateway: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "gateway", "Gateway", nsGateway+"/"+gatewayName)
			return nil
		},
	}
}

func gatewayObject(ctx *provisioning.Context, ip string) *unstructured.Unstructured {
	host := naming.WildcardHost(ctx.Cluster.Name, ctx.Config.PlatformDomain)
	allRoutes := map[string]any{"namespaces": map[string]any{"from": "All"}}
	return newObject(kube.GatewayGVK, nsGateway, gatewayName, map[string]any{
		"gatewayClassName": gatewayClass,
		"addresses": []any{
			map[string]any{"type": "IPAddress", "value": ip},
		},
		"listeners": []any{
			map[string]any{
				"name":          "http",
				"protocol":      "HTTP",
				"port":          int64(httpPort),
				"hostname":      host,
				"allowedRoutes": allRoutes,
			},
			map[string]any{
				"name":     "https",
				"protocol": "HTTPS",
				"port":     int64(httpsPort),
				"hostname": host,
				"tls": map[string]any{
					"mode": "Terminate",
					"certificateRefs": []any{
						map[string]any{"kind": "Secret", "name": naming.CertificateSecret(ctx.Cluster.Name)},
					},
				},
				"allowedRoutes": allRoutes,
			},
		},
	})
}

// smokeTestStage deploys a canary rollout behind the gateway and requests
// it through the node IP, exercising gateway, route, service and rollout.
func (p *provision) smokeTestStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "smoke-test",
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			r, err := t.Get(ctx, kube.RolloutGVK, nsSmokeTest, smokeTestName)
			if err != nil || r == nil {
				return false, err
			}
			return rolloutPhase(r) == "Healthy", nil
		},
		Do: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			if err := t.EnsureNamespace(ctx, nsSmokeTest); err != nil {
				return err
			}
			for _, obj := range smokeTestObjects(ctx) {
				if err := t.Apply(ctx, labeled(ctx, obj)); err != nil {
					return fmt.Errorf("failed to apply %s %s: %w", obj.GetKind(), obj.GetName(), err)
				}
			}
			return nil
		},
		Wait: func(ctx *provisioning.Context) error {
			ip, err := p.nodeIP(ctx)
			if err != nil {
				return err
			}
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			host := smokeTestHost + "." + clusterDomain(ctx)
			return ctx.Await("smoke test rollout", ctx.Timeouts.Rollout, func(ctx *provisioning.Context) (bool, error) {
				r, err := t.Get(ctx, kube.RolloutGVK, nsSmokeTest, smokeTestName)
				if err != nil {
					return false, err
				}
				if phase := rolloutPhase(r); phase != "Healthy" {
					ctx.Log.V(1).Info("waiting for smoke test rollout", "phase", phase)
					return false, nil
				}
				return probe(ctx, t, ip, host), nil
			})
		},
	}
}

func rolloutPhase(r *unstructured.Unstructured) string {
	if r == nil {
		return ""
	}
	phase, _, _ := unstructured.NestedString(r.Object, "status", "phase")
	return phase
}

// probe requests the smoke test host through the gateway from inside one of
// the smoke test pods.
func probe(ctx *provisioning.Context, t kube.Client, ip, host string) bool {
	pods, err := t.ListPods(ctx, nsSmokeTest, "app="+smokeTestName)
	if err != nil {
		ctx.Log.V(1).Info("listing smoke test pods failed", "error", err.Error())
		return false
	}
	for _, pod := range pods {
		if pod.Status.Phase != corev1.PodRunning {
			continue
		}
		_, _, err := t.Exec(ctx, kube.ExecRequest{
			Namespace: nsSmokeTest,
			Pod:       pod.Name,
			Container: smokeTestName,
			Command:   []string{"wget", "-q", "-O", "-", "--header", "Host: " + host, "http://" + ip + "/"},
		})
		if err != nil {
			ctx.Log.V(1).Info("smoke test request failed", "pod", pod.Name, "error", err.Error())
			return false
		}
		ctx.Log.Info("smoke test passed", "host", host)
		return true
	}
	return false
}

func smokeTestObjects(ctx *provisioning.Context) []*unstructured.Unstructured {
	labels := map[string]any{"app": smokeTestName}
	service := func(name string) *unstructured.Unstructured {
		return newObject(kube.ServiceGVK, nsSmokeTest, name, map[string]any{
			"selector": labels,
			"ports": []any{
				map[string]any{"name": "http", "port": int64(httpPort), "targetPort": int64(smokeTestPort)},
			},
		})
	}

	route := newObject(kube.HTTPRouteGVK, nsSmokeTest, smokeTestName, map[string]any{
		"parentRefs": []any{
			map[string]any{"name": gatewayName, "namespace": nsGateway},
		},
		"hostnames": []any{smokeTestHost + "." + clusterDomain(ctx)},
		"rules": []any{
			map[string]any{
				"backendRefs": []any{
					map[string]any{"name": smokeTestName, "port": int64(httpPort)},
					map[string]any{"name": smokeTestCanary, "port": int64(httpPort)},
				},
			},
		},
	})

	rollout := newObject(kube.RolloutGVK, nsSmokeTest, smokeTestName, map[string]any{
		"replicas": int64(1),
		"selector": map[string]any{"matchLabels": labels},
		"template": map[string]any{
			"metadata": map[string]any{"labels": labels},
			"spec": map[string]any{
				"containers": []any{
					map[string]any{
						"name":  smokeTestName,
						"image": smokeTestImage,
						"ports": []any{
							map[string]any{"containerPort": int64(smokeTestPort)},
						},
					},
				},
			},
		},
		"strategy": map[string]any{
			"canary": map[string]any{
				"stableService": smokeTestName,
				"canaryService": smokeTestCanary,
				"trafficRouting": map[string]any{
					"plugins": map[string]any{
						gatewayAPIPlugin: map[string]any{
							"httpRoute": smokeTestName,
							"namespace": nsSmokeTest,
						},
					},
				},
				"steps": []any{
					map[string]any{"setWeight": int64(50)},
					map[string]any{"pause": map[string]any{"duration": "10s"}},
				},
			},
		},
	})

	return []*unstructured.Unstructured{service(smokeTestName), service(smokeTestCanary), route, rollout}
}
