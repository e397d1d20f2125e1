package cluster

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/util/naming"
)

// Keys of the team credentials secret read by the infrastructure provider.
const (
	keyHCloudToken   = "hcloud"
	keyRobotUser     = "robot-user"
	keyRobotPassword = "robot-password"
)

// dnsRecordTTL is the TTL of the wildcard A records in seconds.
const dnsRecordTTL = 300

// certificateStage requests the wildcard certificate. Issuance continues in
// the background; certificateCopyStage waits for it.
func certificateStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "certificate",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return exists(ctx, ctx.Management, kube.CertificateGVK, managementNamespace(ctx), naming.Certificate(ctx.Cluster.Name))
		},
		Do: func(ctx *provisioning.Context) error {
			domain := clusterDomain(ctx)
			name := naming.Certificate(ctx.Cluster.Name)
			cert := newObject(kube.CertificateGVK, managementNamespace(ctx), name, map[string]any{
				"secretName": naming.CertificateSecret(ctx.Cluster.Name),
				"issuerRef": map[string]any{
					"kind": "ClusterIssuer",
					"name": ctx.Config.ClusterIssuer,
				},
				"dnsNames": []any{"*." + domain, domain},
			})
			if err := ctx.Management.Apply(ctx, labeled(ctx, cert)); err != nil {
				return fmt.Errorf("failed to request certificate: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "certificate", "Certificate", name)
			return nil
		},
	}
}

// credentialsStage stores the team's cloud credentials where the
// infrastructure provider reads them. The secret is shared by every
// cluster of the team.
func (p *provision) credentialsStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "credentials",
		Check: func(ctx *provisioning.Context) (bool, error) {
			s, err := ctx.Management.GetSecret(ctx, managementNamespace(ctx), naming.CredentialsSecret(ctx.Cluster.TeamID))
			return s != nil, err
		},
		Do: func(ctx *provisioning.Context) error {
			name := naming.CredentialsSecret(ctx.Cluster.TeamID)
			_, err := ctx.Management.EnsureSecret(ctx, &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:      name,
					Namespace: managementNamespace(ctx),
					Labels:    map[string]string{"clusterctl.cluster.x-k8s.io/move": ""},
				},
				Type: corev1.SecretTypeOpaque,
				StringData: map[string]string{
					keyHCloudToken:   p.token,
					keyRobotUser:     p.robotUser,
					keyRobotPassword: p.robotPassword,
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create credentials secret: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "credentials", "Secret", name)
			return nil
		},
	}
}

// dnsStage points the wildcard hostname and the bare cluster domain at the
// first node through the management cluster's external-dns.
func (p *provision) dnsStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "dns",
		Check: func(ctx *provisioning.Context) (bool, error) {
			return exists(ctx, ctx.Management, kube.DNSEndpointGVK, ctx.Config.DNSNamespace, naming.DNSEndpoint(ctx.Cluster.Name))
		},
		Do: func(ctx *provisioning.Context) error {
			ip, err := p.nodeIP(ctx)
			if err != nil {
				return err
			}
			domain := clusterDomain(ctx)
			record := func(host string) map[string]any {
				return map[string]any{
					"dnsName":    host,
					"recordType": "A",
					"recordTTL":  int64(dnsRecordTTL),
					"targets":    []any{ip},
				}
			}
			name := naming.DNSEndpoint(ctx.Cluster.Name)
			endpoint := newObject(kube.DNSEndpointGVK, ctx.Config.DNSNamespace, name, map[string]any{
				"endpoints": []any{record("*." + domain), record(domain)},
			})
			if err := ctx.Management.Apply(ctx, labeled(ctx, endpoint)); err != nil {
				return fmt.Errorf("failed to register DNS: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "dns", "DNSEndpoint", name)
			return nil
		},
	}
}

// certificateCopyStage waits for the wildcard certificate and copies its
// secret into the tenant's gateway namespace.
func certificateCopyStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "certificate-copy",
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			s, err := t.GetSecret(ctx, nsGateway, naming.CertificateSecret(ctx.Cluster.Name))
			return s != nil, err
		},
		Do: func(ctx *provisioning.Context) error {
			certName := naming.Certificate(ctx.Cluster.Name)
			err := ctx.Await("certificate "+certName, ctx.Timeouts.Certificate, func(ctx *provisioning.Context) (bool, error) {
				cert, err := ctx.Management.Get(ctx, kube.CertificateGVK, managementNamespace(ctx), certName)
				if err != nil {
					return false, err
				}
				return conditionTrue(cert, "Ready"), nil
			})
			if err != nil {
				return err
			}

			secretName := naming.CertificateSecret(ctx.Cluster.Name)
			src, err := ctx.Management.GetSecret(ctx, managementNamespace(ctx), secretName)
			if err != nil {
				return err
			}
			if src == nil {
				return fmt.Errorf("certificate %s is ready but secret %s is missing", certName, secretName)
			}

			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			if err := t.EnsureNamespace(ctx, nsGateway); err != nil {
				return err
			}
			_, err = t.EnsureSecret(ctx, &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:      secretName,
					Namespace: nsGateway,
					Labels:    map[string]string{labelCluster: ctx.Cluster.ID},
				},
				Type: corev1.SecretTypeTLS,
				Data: map[string][]byte{
					corev1.TLSCertKey:       src.Data[corev1.TLSCertKey],
					corev1.TLSPrivateKeyKey: src.Data[corev1.TLSPrivateKeyKey],
				},
			})
			if err != nil {
				return fmt.Errorf("failed to copy certificate secret: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "certificate-copy", "Secret", secretName)
			return nil
		},
	}
}
