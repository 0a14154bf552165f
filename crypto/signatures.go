package crypto

// signatures.go wraps ed25519 signing. Each folder carries one signing
// keypair which authenticates the core index envelopes published for it.

import (
	"crypto/ed25519"

	"github.com/NebulousLabs/errors"
)

const (
	// EntropySize is the amount of entropy used to derive a keypair.
	EntropySize = 32

	// PublicKeySize is the size of an ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize

	// SecretKeySize is the size of an ed25519 private key.
	SecretKeySize = ed25519.PrivateKeySize

	// SignatureSize is the size of an ed25519 signature.
	SignatureSize = ed25519.SignatureSize
)

type (
	// PublicKey is an ed25519 public key.
	PublicKey [PublicKeySize]byte

	// SecretKey is an ed25519 private key.
	SecretKey [SecretKeySize]byte

	// Signature is an ed25519 signature.
	Signature [SignatureSize]byte
)

var (
	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

// GenerateKeyPair creates a public-secret keypair that can be used to sign
// and verify messages.
func GenerateKeyPair() (sk SecretKey, pk PublicKey) {
	var entropy [EntropySize]byte
	Read(entropy[:])
	return GenerateKeyPairDeterministic(entropy)
}

// GenerateKeyPairDeterministic generates keys deterministically using the
// input entropy.
func GenerateKeyPairDeterministic(entropy [EntropySize]byte) (sk SecretKey, pk PublicKey) {
	priv := ed25519.NewKeyFromSeed(entropy[:])
	copy(sk[:], priv)
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return sk, pk
}

// SignHash signs a message using a secret key.
func SignHash(data Hash, sk SecretKey) (sig Signature) {
	copy(sig[:], ed25519.Sign(sk[:], data[:]))
	return sig
}

// VerifyHash uses a public key and input data to verify a signature.
func VerifyHash(data Hash, pk PublicKey, sig Signature) error {
	if !ed25519.Verify(pk[:], data[:], sig[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// PublicKey returns the public key that corresponds to a secret key.
func (sk SecretKey) PublicKey() (pk PublicKey) {
	copy(pk[:], sk[32:])
	return
}
