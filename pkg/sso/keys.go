package sso

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mrveiss/AutoBot-AI-sub025/pkg/observability"
)

const (
	privateKeyFile = "sso_private.pem"
	publicKeyFile  = "sso_public.pem"
	rsaKeyBits     = 2048
)

// KeyManager owns the asymmetric key pair used to sign SAML requests and
// internal tokens. Key material is generated once and reused across restarts;
// the private key is persisted with owner-only permissions.
type KeyManager struct {
	dir    string
	mu     sync.Mutex
	logger *observability.Logger

	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// NewKeyManager creates a manager rooted at dir. Keys are not touched until
// EnsureKeys is called.
func NewKeyManager(dir string, logger *observability.Logger) *KeyManager {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &KeyManager{dir: dir, logger: logger}
}

// EnsureKeys loads the key pair from disk if present, otherwise generates and
// persists a new one. It is idempotent: repeated calls (including across
// restarts) return identical key material. On failure it returns (nil, nil,
// err) and the framework continues with signing unavailable.
func (k *KeyManager) EnsureKeys() (*rsa.PrivateKey, *rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.private != nil {
		return k.private, k.public, nil
	}

	if priv, err := k.loadPrivateKey(); err == nil {
		k.private = priv
		k.public = &priv.PublicKey
		return k.private, k.public, nil
	} else if !os.IsNotExist(err) {
		k.logger.WithError(err).Warn("existing key material unreadable, generating a new pair")
	}

	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	if err := k.persist(priv); err != nil {
		return nil, nil, err
	}

	k.private = priv
	k.public = &priv.PublicKey
	return k.private, k.public, nil
}

func (k *KeyManager) loadPrivateKey() (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Join(k.dir, privateKeyFile))
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		pkcs8, err8 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err8 != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		rsaKey, ok := pkcs8.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		priv = rsaKey
	}
	return priv, nil
}

func (k *KeyManager) persist(priv *rsa.PrivateKey) error {
	if err := os.MkdirAll(k.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	if err := writeFileAtomic(filepath.Join(k.dir, privateKeyFile), privPEM, 0o600); err != nil {
		return fmt.Errorf("failed to persist private key: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(k.dir, publicKeyFile), pubPEM, 0o644); err != nil {
		return fmt.Errorf("failed to persist public key: %w", err)
	}
	return nil
}

// PublicKeyPEM returns the PEM encoding of the public key, or "" when signing
// is unavailable.
func (k *KeyManager) PublicKeyPEM() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.public == nil {
		return ""
	}
	der, err := x509.MarshalPKIXPublicKey(k.public)
	if err != nil {
		return ""
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
