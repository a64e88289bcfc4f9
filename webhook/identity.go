package webhook

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// DefaultIdentity is sent in the probe response when no identity key is configured.
const DefaultIdentity = "NO_IDENTITY_KEY"

// IdentityProvider returns the identity token sent back to connectivity probes.
type IdentityProvider interface {
	Current() string
}

// StaticIdentity is an identity computed once at startup.
// the zero value answers with DefaultIdentity.
type StaticIdentity string

func (identity StaticIdentity) Current() string {
	if identity == "" {
		return DefaultIdentity
	}
	return string(identity)
}

// IsDefaultIdentity reports whether a probe response carried the default sentinel.
func IsDefaultIdentity(identity string) bool {
	return identity == DefaultIdentity
}

// LoadIdentity reads a PEM encoded key from path and returns its public key as
// base64 of the PKIX DER encoding. public keys (PKIX or PKCS#1) and private keys
// (PKCS#1 or PKCS#8, the public half is derived) are accepted.
func LoadIdentity(path string) (StaticIdentity, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read identity key %q: %w", path, err)
	}

	block, _ := pem.Decode(content)
	if block == nil {
		return "", fmt.Errorf("identity key %q is not PEM encoded", path)
	}

	publicKey, err := publicKeyFromBlock(block)
	if err != nil {
		return "", fmt.Errorf("failed to parse identity key %q: %w", path, err)
	}

	encoded, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to encode identity key %q: %w", path, err)
	}

	return StaticIdentity(base64.StdEncoding.EncodeToString(encoded)), nil
}

func publicKeyFromBlock(block *pem.Block) (any, error) {
	switch block.Type {
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "RSA PRIVATE KEY":
		privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return privateKey.Public(), nil
	case "PRIVATE KEY":
		privateKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := privateKey.(crypto.Signer)
		if !ok {
			return nil, errors.New("private key cannot provide a public key")
		}
		return signer.Public(), nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}
