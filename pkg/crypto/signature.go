package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// PublicKeySize is the length of a compressed secp256k1 public key.
const PublicKeySize = 33

// Signer signs messages with a private key using Schnorr/secp256k1.
type Signer interface {
	// Sign produces a Schnorr signature over a 32-byte hash.
	Sign(hash []byte) ([]byte, error)
	// SignMessage hashes an arbitrary payload with BLAKE3 and signs the digest.
	SignMessage(payload []byte) ([]byte, error)
	// PublicKey returns the compressed 33-byte public key.
	PublicKey() []byte
}

// Verifier decides whether signature authorizes payload on behalf of owner.
// Implementations must be deterministic and free of side effects.
type Verifier interface {
	Verify(owner, payload, signature []byte) bool
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(owner, payload, signature []byte) bool

// Verify calls f(owner, payload, signature).
func (f VerifierFunc) Verify(owner, payload, signature []byte) bool {
	return f(owner, payload, signature)
}

// PrivateKey wraps a secp256k1 private key for Schnorr signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign produces a Schnorr signature over a 32-byte hash.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig, err := schnorr.Sign(pk.key, hash)
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// SignMessage signs BLAKE3(payload).
func (pk *PrivateKey) SignMessage(payload []byte) ([]byte, error) {
	digest := Hash(payload)
	return pk.Sign(digest[:])
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifySignature checks a Schnorr signature against a 32-byte hash
// and a compressed public key. Returns false on any error.
func VerifySignature(hash, signature, publicKey []byte) bool {
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pubKey)
}

// SchnorrVerifier implements Verifier with owner interpreted as a
// compressed public key and payload hashed with BLAKE3 before verification.
type SchnorrVerifier struct{}

// Verify checks signature over BLAKE3(payload) against the owner key.
func (SchnorrVerifier) Verify(owner, payload, signature []byte) bool {
	digest := Hash(payload)
	return VerifySignature(digest[:], signature, owner)
}
