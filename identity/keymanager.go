// Package identity generates a peer's RSA-2048 key pair and exposes
// OAEP encrypt/decrypt over it. RSA-OAEP is a named algorithm
// dependency, not a component to design from scratch, so this package
// is a thin, idiomatic wrapper over crypto/rsa rather than a
// reimplementation — see DESIGN.md for why no third-party RSA-OAEP
// library improves on the standard library here.
//
// Grounded on peer/keypair.go's "generate once at startup, derive
// everything else from it" shape, generalized from Ed25519 identity
// keys to an RSA-2048 confidentiality key pair.
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const keyBits = 2048

// CipherLen is the fixed size of one RSA-OAEP ciphertext block at
// keyBits, regardless of plaintext length — callers that need to pick
// an encrypted blob back out of a larger buffer (the datagram engine's
// payload region) read exactly this many bytes.
const CipherLen = keyBits / 8

// KeyManager holds one peer's RSA key pair and offers Decrypt over
// OAEP; its counterpart, the package-level Encrypt, takes the
// recipient's public key. These are the two operations the datagram
// engine's payload path depends on. Control-plane messages (directory
// calls) never go through this package.
type KeyManager struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// NewKeyManager generates a fresh RSA-2048 key pair.
func NewKeyManager() (*KeyManager, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("identity: keygen failed: %w", err)
	}
	return &KeyManager{private: priv, public: &priv.PublicKey}, nil
}

// PublicKeyPEM renders the public half as a PEM-encoded PKIX block,
// the form published through the directory's publicKey field.
func (km *KeyManager) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(km.public)
	if err != nil {
		return "", fmt.Errorf("identity: marshal public key failed: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKeyPEM recovers an *rsa.PublicKey from a PEM-encoded PKIX
// block, the form used when encrypting for a recipient learned from
// the directory.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("identity: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key failed: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: public key is not RSA")
	}
	return rsaPub, nil
}

// Encrypt wraps plaintext for recipientPub using RSA-OAEP (SHA-256).
// An EncryptFailure here propagates to the caller per the error
// taxonomy; it is never a reason to drop silently, unlike the
// datagram-plane decode errors.
func Encrypt(plaintext []byte, recipientPub *rsa.PublicKey) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, recipientPub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: encrypt failed: %w", err)
	}
	return ciphertext, nil
}

// Decrypt recovers the plaintext km's private key was targeted with.
func (km *KeyManager) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, km.private, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: decrypt failed: %w", err)
	}
	return plaintext, nil
}
