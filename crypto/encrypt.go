package crypto

// encrypt.go contains functions for encrypting and decrypting data byte
// slices, and for wrapping keys inside other keys. All encryption uses
// AES-256-GCM with a random 12-byte nonce prepended to the ciphertext.

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"

	"github.com/NebulousLabs/errors"
)

const (
	// KeySize is the size of a symmetric encryption key.
	KeySize = 32

	// NonceSize is the size of a GCM nonce.
	NonceSize = 12

	// TagSize is the size of a GCM authentication tag.
	TagSize = 16
)

var (
	// ErrInsufficientLen is returned when a ciphertext is too short to
	// contain a nonce.
	ErrInsufficientLen = errors.New("supplied ciphertext is not long enough to contain a nonce")

	// ErrIntegrity is returned when a ciphertext fails authentication. The
	// data was either tampered with or encrypted under a different key or
	// associated data.
	ErrIntegrity = errors.New("ciphertext failed authentication")
)

type (
	// Ciphertext is an encrypted []byte carrying its nonce as a prefix.
	Ciphertext []byte

	// SessionKey is a 256-bit symmetric key.
	SessionKey [KeySize]byte
)

// GenerateSessionKey produces a key that can be used for encrypting and
// decrypting data.
func GenerateSessionKey() (key SessionKey) {
	Read(key[:])
	return key
}

// newGCM creates the AEAD for the key.
func (key SessionKey) newGCM() cipher.AEAD {
	// NOTE: NewCipher only returns an error if len(key) != 16, 24, or 32, and
	// NewGCM only returns an error for an invalid block size.
	block, _ := aes.NewCipher(key[:])
	aead, _ := cipher.NewGCM(block)
	return aead
}

// EncryptBytes encrypts a []byte using the key. EncryptBytes uses GCM and
// prepends the nonce (12 bytes) to the ciphertext. The associated data is
// authenticated but not encrypted, and may be nil.
func (key SessionKey) EncryptBytes(plaintext, associatedData []byte) Ciphertext {
	aead := key.newGCM()
	nonce := RandBytes(aead.NonceSize())
	return aead.Seal(nonce, nonce, plaintext, associatedData)
}

// DecryptBytes decrypts the ciphertext created by EncryptBytes. The nonce is
// expected to be the first 12 bytes of the ciphertext. The associated data
// must match the data supplied during encryption. ErrIntegrity is returned if
// the tag does not verify.
func (key SessionKey) DecryptBytes(ct Ciphertext, associatedData []byte) ([]byte, error) {
	aead := key.newGCM()
	if len(ct) < aead.NonceSize() {
		return nil, ErrInsufficientLen
	}
	plaintext, err := aead.Open(nil, ct[:aead.NonceSize()], ct[aead.NonceSize():], associatedData)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// WrapKey encrypts an inner key under an outer key. The wrapped key is laid
// out as nonce || ciphertext || tag.
func WrapKey(inner SessionKey, outer SessionKey) []byte {
	return outer.EncryptBytes(inner[:], nil)
}

// UnwrapKey decrypts a key wrapped by WrapKey.
func UnwrapKey(wrapped []byte, outer SessionKey) (inner SessionKey, err error) {
	if len(wrapped) != NonceSize+TagSize+KeySize {
		return SessionKey{}, ErrInsufficientLen
	}
	plaintext, err := outer.DecryptBytes(wrapped, nil)
	if err != nil {
		return SessionKey{}, err
	}
	copy(inner[:], plaintext)
	return inner, nil
}

// MarshalJSON encodes a ciphertext as a byte slice.
func (c Ciphertext) MarshalJSON() ([]byte, error) {
	return json.Marshal([]byte(c))
}

// UnmarshalJSON decodes a ciphertext from a byte slice.
func (c *Ciphertext) UnmarshalJSON(b []byte) error {
	var umarB []byte
	err := json.Unmarshal(b, &umarB)
	if err != nil {
		return err
	}
	*c = Ciphertext(umarB)
	return nil
}
