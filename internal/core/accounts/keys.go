package accounts

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

const keyBits = 2048

// KeyPair is the PEM-encoded key material used to sign outgoing activities.
// External accounts only carry the public half.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// HasPrivateKey reports whether the private half is present.
func (k *KeyPair) HasPrivateKey() bool {
	return k != nil && k.PrivateKey != ""
}

// GenerateKeyPair creates a fresh RSA key pair for an internal account.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return &KeyPair{
		PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// Validate checks that every present half parses as a key.
func (k *KeyPair) Validate() error {
	if k == nil || k.PublicKey == "" {
		return ErrMissingKeyPair
	}
	if _, err := jwk.ParseKey([]byte(k.PublicKey), jwk.WithPEM(true)); err != nil {
		return &InvalidAccountError{Field: "publicKey", Reason: err.Error()}
	}
	if k.PrivateKey != "" {
		if _, err := jwk.ParseKey([]byte(k.PrivateKey), jwk.WithPEM(true)); err != nil {
			return &InvalidAccountError{Field: "privateKey", Reason: err.Error()}
		}
	}
	return nil
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of the public key,
// base64url encoded. It identifies the key independently of its PEM framing.
func (k *KeyPair) Thumbprint() (string, error) {
	key, err := jwk.ParseKey([]byte(k.PublicKey), jwk.WithPEM(true))
	if err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}
	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
