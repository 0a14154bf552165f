package crypto

// rand.go defines helper functions for producing randomness. All randomness
// is drawn from fastrand, which reads from a cryptographically secure
// generator.

import (
	"github.com/NebulousLabs/fastrand"
)

// Read fills b with random data. It always fills b completely.
func Read(b []byte) { fastrand.Read(b) }

// RandBytes is a helper function that returns n bytes of random data.
func RandBytes(n int) []byte {
	return fastrand.Bytes(n)
}

// RandIntn returns a uniform random value in [0,n). It panics if n <= 0.
func RandIntn(n int) int {
	return fastrand.Intn(n)
}

// Perm returns a random permutation of the integers [0,n).
func Perm(n int) []int {
	return fastrand.Perm(n)
}
