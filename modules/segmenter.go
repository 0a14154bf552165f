package modules

import (
	"github.com/contemptx/usenetsync-sub004/types"
)

// PackingStrategy selects how segments are grouped into container articles.
type PackingStrategy string

const (
	// PackSequential appends segments in order, starting a new pack
	// whenever the size bound would be exceeded.
	PackSequential PackingStrategy = "sequential"

	// PackOptimized packs first-fit-decreasing on segment size, breaking
	// ties by ascending segment index.
	PackOptimized PackingStrategy = "optimized"
)

// A Segmenter cuts files into fixed-size segments, optionally compresses
// them, generates replica records for redundancy, and groups small segments
// into packs.
type Segmenter interface {
	// SegmentFile reads the file at its folder-relative location, emits
	// segment rows for replica 0 plus `redundancy` replicas per segment,
	// and persists them. The file row advances to FileSegmented. Segment
	// bodies are not retained; workers re-derive them from the file when
	// posting.
	SegmentFile(file types.File, redundancy int) ([]types.Segment, error)

	// SegmentBody returns the body of one segment exactly as it will be
	// posted: the raw slice of the file, compressed when the segment row
	// says so. The body's hash must equal the segment's plaintext hash.
	SegmentBody(file types.File, segment types.Segment) ([]byte, error)

	// PackSegments groups the given segments into packs bounded by the
	// configured pack size. One-to-one packs are allowed for segments too
	// large to share a container.
	PackSegments(segments []types.Segment, strategy PackingStrategy) ([]types.Pack, error)
}
