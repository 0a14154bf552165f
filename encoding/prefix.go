package encoding

import (
	"fmt"
	"io"

	"github.com/NebulousLabs/errors"
)

// ReadPrefix reads a 4-byte length prefix, followed by the number of bytes
// specified in the prefix. The operation is aborted if the prefix exceeds a
// specified maximum length.
func ReadPrefix(r io.Reader, maxLen uint32) ([]byte, error) {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, errors.New("could not read length prefix")
	}
	dataLen := DecLen(prefix)
	if uint32(dataLen) > maxLen {
		return nil, fmt.Errorf("length %d exceeds maxLen of %d", dataLen, maxLen)
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WritePrefix writes a 4-byte length prefix followed by the data.
func WritePrefix(w io.Writer, data []byte) error {
	if _, err := w.Write(EncLen(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
