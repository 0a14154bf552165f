package segmenter

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/contemptx/usenetsync-sub004/build"
)

// compressionLevel is the deflate level applied to segment bodies. The
// level is part of the on-disk contract: SegmentBody must reproduce the
// exact bytes that were hashed at segmentation time, which deflate
// guarantees for a fixed level and input.
const compressionLevel = 6

// deflate compresses data at the fixed level.
func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, compressionLevel)
	if err != nil {
		// NewWriter only errors for an invalid level.
		build.Critical("invalid deflate level:", err)
		return data
	}
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// inflate decompresses a deflated segment body.
func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

// maybeCompress compresses data and keeps the result only when it beats the
// threshold ratio.
func maybeCompress(raw []byte, threshold float64) (body []byte, compressed bool) {
	if len(raw) == 0 {
		return raw, false
	}
	deflated := deflate(raw)
	if float64(len(deflated)) < float64(len(raw))*threshold {
		return deflated, true
	}
	return raw, false
}

// Inflate re-exposes decompression for consumers reassembling segment
// bodies fetched from the relay.
func Inflate(data []byte) ([]byte, error) {
	return inflate(data)
}
