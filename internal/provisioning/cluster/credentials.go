package cluster

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/provisioning"
)

const (
	objectStorageSecret = "object-storage-credentials"
	registrySecret      = "registry-credentials"
	registryUser        = "metal"
)

// randomHex returns n random bytes hex encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// objectStorageCredentialsStage generates the MinIO root credentials. The
// tenant reads them as config.env in its namespace; Quickwit reads the same
// pair as AWS variables in the observability namespace.
func objectStorageCredentialsStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "object-storage-credentials",
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			for _, ns := range []string{nsMinIO, nsObservability} {
				s, err := t.GetSecret(ctx, ns, objectStorageSecret)
				if err != nil || s == nil {
					return false, err
				}
			}
			return true, nil
		},
		Do: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			accessKey, secretKey, err := objectStorageKeys(ctx, t)
			if err != nil {
				return err
			}

			if err := t.EnsureNamespace(ctx, nsMinIO); err != nil {
				return err
			}
			_, err = t.EnsureSecret(ctx, &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: objectStorageSecret, Namespace: nsMinIO},
				Type:       corev1.SecretTypeOpaque,
				StringData: map[string]string{
					"accessKey": accessKey,
					"secretKey": secretKey,
					"config.env": fmt.Sprintf("export MINIO_ROOT_USER=%q\nexport MINIO_ROOT_PASSWORD=%q\n",
						accessKey, secretKey),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create object storage secret: %w", err)
			}

			if err := t.EnsureNamespace(ctx, nsObservability); err != nil {
				return err
			}
			_, err = t.EnsureSecret(ctx, &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: objectStorageSecret, Namespace: nsObservability},
				Type:       corev1.SecretTypeOpaque,
				StringData: map[string]string{
					"AWS_ACCESS_KEY_ID":     accessKey,
					"AWS_SECRET_ACCESS_KEY": secretKey,
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create object storage secret: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "object-storage-credentials", "Secret", objectStorageSecret)
			return nil
		},
	}
}

// objectStorageKeys reuses the pair of an earlier attempt so that both
// namespaces always agree.
func objectStorageKeys(ctx *provisioning.Context, t kube.Client) (string, string, error) {
	existing, err := t.GetSecret(ctx, nsMinIO, objectStorageSecret)
	if err != nil {
		return "", "", err
	}
	if existing != nil {
		return string(existing.Data["accessKey"]), string(existing.Data["secretKey"]), nil
	}
	accessKey, err := randomHex(10)
	if err != nil {
		return "", "", err
	}
	secretKey, err := randomHex(20)
	if err != nil {
		return "", "", err
	}
	return accessKey, secretKey, nil
}

// registryCredentialsStage generates the registry's basic auth user.
func registryCredentialsStage() provisioning.Stage {
	return provisioning.Step{
		StageName: "registry-credentials",
		Check: func(ctx *provisioning.Context) (bool, error) {
			t, err := ctx.TenantTarget()
			if err != nil {
				return false, err
			}
			s, err := t.GetSecret(ctx, nsRegistry, registrySecret)
			return s != nil, err
		},
		Do: func(ctx *provisioning.Context) error {
			t, err := ctx.TenantTarget()
			if err != nil {
				return err
			}
			password, err := randomHex(16)
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			if err := t.EnsureNamespace(ctx, nsRegistry); err != nil {
				return err
			}
			_, err = t.EnsureSecret(ctx, &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: registrySecret, Namespace: nsRegistry},
				Type:       corev1.SecretTypeBasicAuth,
				StringData: map[string]string{
					corev1.BasicAuthUsernameKey: registryUser,
					corev1.BasicAuthPasswordKey: password,
					"htpasswd":                  registryUser + ":" + string(hash),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create registry secret: %w", err)
			}
			provisioning.LogResourceCreated(ctx.Observer, "registry-credentials", "Secret", nsRegistry+"/"+registrySecret)
			return nil
		},
	}
}

func registryHtpasswd(ctx *provisioning.Context) (string, error) {
	t, err := ctx.TenantTarget()
	if err != nil {
		return "", err
	}
	s, err := t.GetSecret(ctx, nsRegistry, registrySecret)
	if err != nil {
		return "", err
	}
	if s == nil || len(s.Data["htpasswd"]) == 0 {
		return "", fmt.Errorf("registry credentials are missing")
	}
	return string(s.Data["htpasswd"]), nil
}
