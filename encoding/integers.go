package encoding

// integers.go provides little-endian integer encodings. Every wire format in
// the system (segment articles, packs, index envelopes) uses little-endian
// fixed-width fields, so the helpers here are the only integer codecs needed.

import (
	"encoding/binary"
)

// EncUint64 encodes a uint64 as a slice of 8 bytes.
func EncUint64(i uint64) (b []byte) {
	b = make([]byte, 8)
	binary.LittleEndian.PutUint64(b, i)
	return
}

// DecUint64 decodes a slice of 8 bytes into a uint64.
// If len(b) < 8, the slice is padded with zeros.
func DecUint64(b []byte) uint64 {
	b2 := b
	if len(b) < 8 {
		b2 = make([]byte, 8)
		copy(b2, b)
	}
	return binary.LittleEndian.Uint64(b2)
}

// EncUint32 encodes a uint32 as a slice of 4 bytes.
func EncUint32(i uint32) (b []byte) {
	b = make([]byte, 4)
	binary.LittleEndian.PutUint32(b, i)
	return
}

// DecUint32 decodes a slice of 4 bytes into a uint32.
// If len(b) < 4, the slice is padded with zeros.
func DecUint32(b []byte) uint32 {
	b2 := b
	if len(b) < 4 {
		b2 = make([]byte, 4)
		copy(b2, b)
	}
	return binary.LittleEndian.Uint32(b2)
}

// EncUint16 encodes a uint16 as a slice of 2 bytes.
func EncUint16(i uint16) (b []byte) {
	b = make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return
}

// DecUint16 decodes a slice of 2 bytes into a uint16.
// If len(b) < 2, the slice is padded with zeros.
func DecUint16(b []byte) uint16 {
	b2 := b
	if len(b) < 2 {
		b2 = make([]byte, 2)
		copy(b2, b)
	}
	return binary.LittleEndian.Uint16(b2)
}

// EncLen encodes a length (int) as a slice of 4 bytes.
func EncLen(length int) (b []byte) {
	return EncUint32(uint32(length))
}

// DecLen decodes a slice of 4 bytes into an int.
// If len(b) < 4, the slice is padded with zeros.
func DecLen(b []byte) int {
	return int(DecUint32(b))
}
