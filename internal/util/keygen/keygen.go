// Package keygen produces the ed25519 key pair registered for a project.
//
// Keys are generated by ssh-keygen inside a private temporary directory
// that is removed on every return path once the material is in memory.
package keygen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/metal/internal/runner"
)

// KeyPair holds an SSH key pair in ready-to-use formats.
type KeyPair struct {
	// PrivateKey is the OpenSSH PEM-encoded private key.
	PrivateKey []byte
	// PublicKey is the public key in OpenSSH authorized_keys format.
	PublicKey []byte
}

// Fingerprint returns the SHA256 fingerprint of the public key.
func (k *KeyPair) Fingerprint() string {
	pub, _, _, _, err := ssh.ParseAuthorizedKey(k.PublicKey)
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(pub)
}

// Generator runs ssh-keygen through a Runner.
type Generator struct {
	Runner runner.Runner
	// Binary defaults to "ssh-keygen".
	Binary string
	// TempDir is the parent of the scratch directory; empty means os.TempDir.
	TempDir string
}

// GenerateED25519 creates a new ed25519 key pair labelled with comment.
func (g *Generator) GenerateED25519(ctx context.Context, comment string) (*KeyPair, error) {
	dir, err := os.MkdirTemp(g.TempDir, "metal-keygen-")
	if err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	binary := g.Binary
	if binary == "" {
		binary = "ssh-keygen"
	}
	path := filepath.Join(dir, "id_ed25519")
	if _, err := g.Runner.Run(ctx, runner.Command{
		Span: "ssh-keygen",
		Name: binary,
		Args: []string{"-t", "ed25519", "-N", "", "-C", comment, "-f", path, "-q"},
	}); err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	// #nosec G304
	priv, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	// #nosec G304
	pub, err := os.ReadFile(path + ".pub")
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	kp := &KeyPair{PrivateKey: priv, PublicKey: bytes.TrimSpace(pub)}
	if err := Validate(kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Validate checks that the private key parses and matches the public key.
func Validate(kp *KeyPair) error {
	signer, err := ssh.ParsePrivateKey(kp.PrivateKey)
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(kp.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	if !bytes.Equal(signer.PublicKey().Marshal(), pub.Marshal()) {
		return fmt.Errorf("public key does not match private key")
	}
	return nil
}

// SamePublicKey reports whether two authorized_keys entries hold the same
// key, ignoring comments and whitespace.
func SamePublicKey(a, b string) bool {
	ka, _, _, _, err := ssh.ParseAuthorizedKey([]byte(a))
	if err != nil {
		return false
	}
	kb, _, _, _, err := ssh.ParseAuthorizedKey([]byte(b))
	if err != nil {
		return false
	}
	return bytes.Equal(ka.Marshal(), kb.Marshal())
}
