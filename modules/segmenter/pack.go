package segmenter

import (
	"sort"

	"github.com/contemptx/usenetsync-sub004/types"
)

// packSequential appends segments in their given order, starting a new pack
// whenever the size bound would be exceeded. A segment larger than the
// bound gets a pack of its own.
func packSequential(segments []types.Segment, packSize uint64) [][]types.Segment {
	var groups [][]types.Segment
	var current []types.Segment
	var currentSize uint64
	for _, seg := range segments {
		if len(current) > 0 && currentSize+seg.Size > packSize {
			groups = append(groups, current)
			current = nil
			currentSize = 0
		}
		current = append(current, seg)
		currentSize += seg.Size
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// packOptimized packs first-fit-decreasing on segment size, breaking ties
// by ascending segment index.
func packOptimized(segments []types.Segment, packSize uint64) [][]types.Segment {
	sorted := append([]types.Segment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].Index < sorted[j].Index
	})

	var groups [][]types.Segment
	sizes := make([]uint64, 0)
	for _, seg := range sorted {
		placed := false
		for i := range groups {
			if sizes[i]+seg.Size <= packSize {
				groups[i] = append(groups[i], seg)
				sizes[i] += seg.Size
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []types.Segment{seg})
			sizes = append(sizes, seg.Size)
		}
	}
	return groups
}
