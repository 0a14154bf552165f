package scanner

import (
	"io"
	"os"

	"github.com/contemptx/usenetsync-sub004/crypto"
)

// hashChunkSize bounds the memory used to hash one file.
const hashChunkSize = 64 * 1024

// hashFile computes the sha256 of a file's contents with a fixed-size
// buffer, so memory stays bounded regardless of file size.
func hashFile(path string) (crypto.Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return crypto.Hash{}, err
	}
	defer file.Close()

	h := crypto.NewHash()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return crypto.Hash{}, err
	}
	var out crypto.Hash
	h.Sum(out[:0])
	return out, nil
}
