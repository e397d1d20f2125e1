package helm

import (
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// kubeconfigGetter implements genericclioptions.RESTClientGetter on top of
// kubeconfig bytes. Tenant kubeconfigs only ever live in the database, so
// nothing here touches the filesystem.
type kubeconfigGetter struct {
	kubeconfig []byte
	namespace  string

	mu         sync.Mutex
	restConfig *rest.Config
	discovery  discovery.CachedDiscoveryInterface
}

func newKubeconfigGetter(kubeconfig []byte, namespace string) *kubeconfigGetter {
	return &kubeconfigGetter{kubeconfig: kubeconfig, namespace: namespace}
}

func (g *kubeconfigGetter) ToRESTConfig() (*rest.Config, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.restConfig != nil {
		return rest.CopyConfig(g.restConfig), nil
	}

	cfg, err := clientcmd.RESTConfigFromKubeConfig(g.kubeconfig)
	if err != nil {
		return nil, err
	}
	g.restConfig = cfg
	return rest.CopyConfig(cfg), nil
}

func (g *kubeconfigGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	restConfig, err := g.ToRESTConfig()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.discovery != nil {
		return g.discovery, nil
	}
	dc, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	g.discovery = memory.NewMemCacheClient(dc)
	return g.discovery, nil
}

func (g *kubeconfigGetter) ToRESTMapper() (meta.RESTMapper, error) {
	dc, err := g.ToDiscoveryClient()
	if err != nil {
		return nil, err
	}
	return restmapper.NewDeferredDiscoveryRESTMapper(dc), nil
}

func (g *kubeconfigGetter) ToRawKubeConfigLoader() clientcmd.ClientConfig {
	cfg, err := clientcmd.Load(g.kubeconfig)
	if err != nil {
		cfg = clientcmdapi.NewConfig()
	}
	return clientcmd.NewDefaultClientConfig(*cfg, &clientcmd.ConfigOverrides{
		Context: clientcmdapi.Context{Namespace: g.namespace},
	})
}
