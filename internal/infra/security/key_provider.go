package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrKeyNotFound is returned when no verification key matches the kid.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNoSigningKey is returned when the key directory holds no private key.
	ErrNoSigningKey = errors.New("no private key found for signing")
)

// KeyProvider supplies the RSA material used to sign and verify session
// tokens.
type KeyProvider interface {
	GetSigningKey() (*rsa.PrivateKey, error)
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
}

// FileKeyProvider loads RSA keys from a directory of PEM files. The file
// name without extension becomes the kid, so rotating keys is a matter of
// dropping a new PEM pair into the directory. In production the directory
// is a mounted secret volume.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKey *rsa.PrivateKey
}

// NewFileKeyProvider reads every PEM file in keyDir. Private keys
// register both halves; the first private key found signs new tokens.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	provider := &FileKeyProvider{
		keys: make(map[string]*rsa.PublicKey),
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		// PKCS#1 private key
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			if provider.signingKey == nil {
				provider.signingKey = key
			}
			provider.keys[kid] = &key.PublicKey
			continue
		}

		// PKCS#8 private key
		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PrivateKey); ok {
				if provider.signingKey == nil {
					provider.signingKey = rsaKey
				}
				provider.keys[kid] = &rsaKey.PublicKey
				continue
			}
		}

		// PKCS#1 public key
		if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
			provider.keys[kid] = key
			continue
		}

		// PKIX public key
		if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				provider.keys[kid] = rsaKey
				continue
			}
		}

		return nil, fmt.Errorf("parse key from file %s", path)
	}

	if provider.signingKey == nil {
		return nil, ErrNoSigningKey
	}

	return provider, nil
}

// GetSigningKey returns the private key used to sign new tokens.
func (p *FileKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.signingKey, nil
}

// GetVerificationKey returns the public key registered under kid.
func (p *FileKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// NewDevKeyProvider loads keys from a local directory. Kept as a
// separate constructor so development tooling and tests read naturally.
func NewDevKeyProvider(keyDir string) (*FileKeyProvider, error) {
	return NewFileKeyProvider(keyDir)
}

// NewKeyProvider builds the provider for the given environment. Both
// environments load PEM material from keyDir; production simply points
// at the mounted secret volume.
func NewKeyProvider(env, keyDir string) (KeyProvider, error) {
	switch env {
	case "development", "test", "production":
		return NewFileKeyProvider(keyDir)
	default:
		return nil, fmt.Errorf("unknown environment: %s", env)
	}
}
