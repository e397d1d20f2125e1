package testing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/ssh"

	"github.com/imamik/metal/internal/util/keygen"
)

// MockKeyGenerator is a testify mock of the project key generator.
type MockKeyGenerator struct {
	mock.Mock
}

// GenerateED25519 returns the configured key pair.
func (m *MockKeyGenerator) GenerateED25519(ctx context.Context, comment string) (*keygen.KeyPair, error) {
	args := m.Called(ctx, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keygen.KeyPair), args.Error(1)
}

// NewMockKeyGenerator returns a generator answering every call with kp.
func NewMockKeyGenerator(kp *keygen.KeyPair) *MockKeyGenerator {
	m := &MockKeyGenerator{}
	m.On("GenerateED25519", mock.Anything, mock.Anything).Return(kp, nil)
	return m
}

// NewKeyPair generates a valid ed25519 pair in process.
func NewKeyPair() *keygen.KeyPair {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		panic(err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		panic(err)
	}
	return &keygen.KeyPair{
		PrivateKey: pem.EncodeToMemory(block),
		PublicKey:  bytes.TrimSpace(ssh.MarshalAuthorizedKey(sshPub)),
	}
}
