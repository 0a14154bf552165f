package crypto

// kdf.go derives symmetric keys from passwords. Two derivation functions are
// supported: PBKDF2-HMAC-SHA256 and scrypt. The derived key length is always
// KeySize bytes.

import (
	"crypto/sha256"

	"github.com/NebulousLabs/errors"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const (
	// SaltSize is the size of a KDF salt.
	SaltSize = 32

	// PBKDF2Iterations is the iteration count used for PBKDF2 derivations.
	PBKDF2Iterations = 100000

	// ScryptN, ScryptR, and ScryptP are the scrypt cost parameters.
	ScryptN = 1 << 14
	ScryptR = 8
	ScryptP = 1
)

var (
	// ErrUnknownKDF is returned when a key derivation algorithm is not
	// recognized.
	ErrUnknownKDF = errors.New("unknown key derivation algorithm")
)

// GenerateSalt produces a random KDF salt.
func GenerateSalt() (salt [SaltSize]byte) {
	Read(salt[:])
	return salt
}

// PBKDF2Key derives a session key from a password and salt using
// PBKDF2-HMAC-SHA256.
func PBKDF2Key(password string, salt []byte, iterations int) (key SessionKey) {
	derived := pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
	copy(key[:], derived)
	return key
}

// ScryptKey derives a session key from a password and salt using scrypt.
func ScryptKey(password string, salt []byte, n, r, p int) (key SessionKey, err error) {
	derived, err := scrypt.Key([]byte(password), salt, n, r, p, KeySize)
	if err != nil {
		return SessionKey{}, err
	}
	copy(key[:], derived)
	return key, nil
}
