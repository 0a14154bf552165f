package crypto

// hash.go supplies a few general hashing functions, using the hashing
// algorithm sha256. Content hashes, segment hashes, and folder hashes all use
// the same algorithm, which keeps hashes comparable across every layer of the
// system.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"

	"github.com/NebulousLabs/errors"
)

const (
	// HashSize is the size of a sha256 checksum.
	HashSize = 32
)

type (
	// Hash is a sha256 checksum.
	Hash [HashSize]byte

	// HashSlice is used for sorting.
	HashSlice []Hash
)

var (
	// ErrHashWrongLen is returned when an encoded value has the wrong length
	// to be a hash.
	ErrHashWrongLen = errors.New("encoded value has the wrong length to be a hash")
)

// NewHash returns a sha256 hasher.
func NewHash() hash.Hash {
	return sha256.New()
}

// HashBytes takes a byte slice and returns the result.
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashAll concatenates the provided byte slices and hashes the result.
func HashAll(slices ...[]byte) Hash {
	h := NewHash()
	for _, s := range slices {
		h.Write(s)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// These functions implement sort.Interface, allowing hashes to be sorted.
func (hs HashSlice) Len() int           { return len(hs) }
func (hs HashSlice) Less(i, j int) bool { return bytes.Compare(hs[i][:], hs[j][:]) < 0 }
func (hs HashSlice) Swap(i, j int)      { hs[i], hs[j] = hs[j], hs[i] }

// String prints the hash in hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON marshals a hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes the json hex string of the hash.
func (h *Hash) UnmarshalJSON(b []byte) error {
	// *2 because there are 2 hex characters per byte.
	// +2 because the encoded JSON string has a `"` added at the beginning and end.
	if len(b) != HashSize*2+2 {
		return ErrHashWrongLen
	}

	// b[1 : len(b)-1] cuts off the leading and trailing `"` in the JSON string.
	hBytes, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return errors.New("could not unmarshal crypto.Hash: " + err.Error())
	}
	copy(h[:], hBytes)
	return nil
}

// LoadString decodes a hex string into the hash.
func (h *Hash) LoadString(s string) error {
	if len(s) != HashSize*2 {
		return ErrHashWrongLen
	}
	hBytes, err := hex.DecodeString(s)
	if err != nil {
		return errors.New("could not load crypto.Hash: " + err.Error())
	}
	copy(h[:], hBytes)
	return nil
}
