package segmenter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/modules/store"
	"github.com/contemptx/usenetsync-sub004/types"
)

var _ modules.Segmenter = (*Segmenter)(nil)

// segTester bundles a segmenter with its store and folder.
type segTester struct {
	segmenter *Segmenter
	store     *store.Store
	folder    types.Folder
	root      string
	config    modules.Config
}

// newSegTester builds the fixture with a small segment size so multi
// segment files stay cheap.
func newSegTester(t *testing.T, name string) *segTester {
	t.Helper()
	dir := build.TempDir("segmenter", name)
	root := filepath.Join(dir, "data")
	if err := os.MkdirAll(root, 0700); err != nil {
		t.Fatal(err)
	}
	st, err := store.New(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatal(err)
	}
	folder := types.Folder{
		ID:          types.NewFolderID(),
		DisplayName: "data",
		LocalPath:   root,
		State:       types.FolderActive,
		CreatedAt:   time.Now(),
	}
	if err := st.AddFolder(folder); err != nil {
		t.Fatal(err)
	}
	config := modules.DefaultConfig()
	config.SegmentSize = 1024
	config.PackSize = 4096
	sg, err := New(st, config, filepath.Join(dir, "segmenter"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sg.Close()
		st.Close()
	})
	return &segTester{segmenter: sg, store: st, folder: folder, root: root, config: config}
}

// addFile writes the data to disk and registers a file version.
func (st *segTester) addFile(t *testing.T, rel string, data []byte) types.File {
	t.Helper()
	path := filepath.Join(st.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	id, err := st.store.AddFileVersion(types.File{
		FolderID:     st.folder.ID,
		RelativePath: rel,
		Size:         uint64(len(data)),
		ContentHash:  crypto.HashBytes(data),
		ModifiedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	file, err := st.store.File(id)
	if err != nil {
		t.Fatal(err)
	}
	return file
}

// TestSegmentCounts checks the boundary behaviors of segmentation: a short
// file yields one short segment, an exact multiple yields only full
// segments, and random data stays uncompressed.
func TestSegmentCounts(t *testing.T) {
	st := newSegTester(t, t.Name())

	// A file smaller than the segment size yields exactly one segment.
	small := st.addFile(t, "small.bin", crypto.RandBytes(100))
	segments, err := st.segmenter.SegmentFile(small, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 || segments[0].Size != 100 {
		t.Fatal("small file segmentation mismatch:", segments)
	}

	// A file of exactly k segments yields k full segments, none short.
	exact := st.addFile(t, "exact.bin", crypto.RandBytes(3*1024))
	segments, err = st.segmenter.SegmentFile(exact, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 3 {
		t.Fatal("expected 3 segments, got", len(segments))
	}
	for _, seg := range segments {
		if seg.Size != 1024 {
			t.Fatal("expected full segments; random data must not compress:", seg.Size)
		}
		if seg.Compressed {
			t.Fatal("random data should not be stored compressed")
		}
	}

	// The file row advanced.
	file, err := st.store.File(exact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if file.State != types.FileSegmented || file.SegmentCount != 3 {
		t.Fatal("file row not advanced:", file.State, file.SegmentCount)
	}
}

// TestCompression checks that compressible data is stored compressed and
// re-derivable.
func TestCompression(t *testing.T) {
	st := newSegTester(t, t.Name())
	data := bytes.Repeat([]byte("compressible "), 200) // 2600 bytes
	file := st.addFile(t, "text.txt", data)

	segments, err := st.segmenter.SegmentFile(file, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, seg := range segments {
		if !seg.Compressed {
			t.Fatal("repetitive data should compress")
		}
		if seg.Size >= 1024 {
			t.Fatal("compressed segment not smaller than raw:", seg.Size)
		}

		// The body re-derives byte-identically and inflates back to the
		// original slice.
		body, err := st.segmenter.SegmentBody(file, seg)
		if err != nil {
			t.Fatal(err)
		}
		if crypto.HashBytes(body) != seg.PlaintextHash {
			t.Fatal("segment body hash mismatch")
		}
		raw, err := Inflate(body)
		if err != nil {
			t.Fatal(err)
		}
		end := seg.Offset + 1024
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		if !bytes.Equal(raw, data[seg.Offset:end]) {
			t.Fatal("inflated body does not match the source slice")
		}
	}
}

// TestRedundancy checks replica generation: identical hashes, distinct ids.
func TestRedundancy(t *testing.T) {
	st := newSegTester(t, t.Name())
	file := st.addFile(t, "red.bin", crypto.RandBytes(2048))

	segments, err := st.segmenter.SegmentFile(file, 2)
	if err != nil {
		t.Fatal(err)
	}
	// 2 slices × (1 original + 2 replicas).
	if len(segments) != 6 {
		t.Fatal("expected 6 segment rows, got", len(segments))
	}
	byTuple := make(map[uint32][]types.Segment)
	for _, seg := range segments {
		byTuple[seg.Index] = append(byTuple[seg.Index], seg)
	}
	for index, group := range byTuple {
		if len(group) != 3 {
			t.Fatal("expected 3 replicas for index", index)
		}
		seen := make(map[types.SegmentID]struct{})
		for _, seg := range group {
			if seg.PlaintextHash != group[0].PlaintextHash {
				t.Fatal("replica hash mismatch")
			}
			if _, dup := seen[seg.ID]; dup {
				t.Fatal("replica id collision")
			}
			seen[seg.ID] = struct{}{}
		}
	}

	// Out-of-range redundancy is rejected.
	over := st.addFile(t, "over.bin", crypto.RandBytes(10))
	if _, err := st.segmenter.SegmentFile(over, modules.MaxRedundancyLevel+1); !modules.IsInvalidFormat(err) {
		t.Fatal("expected rejection of an excessive redundancy level")
	}
}

// TestSegmentBodyDetectsFileChange checks that a mutated source file is
// caught by the hash comparison.
func TestSegmentBodyDetectsFileChange(t *testing.T) {
	st := newSegTester(t, t.Name())
	file := st.addFile(t, "mut.bin", crypto.RandBytes(512))
	segments, err := st.segmenter.SegmentFile(file, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Rewrite the file with different bytes of the same length.
	if err := os.WriteFile(filepath.Join(st.root, "mut.bin"), crypto.RandBytes(512), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := st.segmenter.SegmentBody(file, segments[0]); !modules.IsIntegrity(err) {
		t.Fatal("expected integrity failure after the file changed, got", err)
	}
}

// TestPacking checks both strategies and the pack round trip through the
// store.
func TestPacking(t *testing.T) {
	st := newSegTester(t, t.Name())
	file := st.addFile(t, "packed.bin", crypto.RandBytes(5*1024))
	segments, err := st.segmenter.SegmentFile(file, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Sequential: 5 segments of 1024 into packs of 4096.
	packs, err := st.segmenter.PackSegments(segments, modules.PackSequential)
	if err != nil {
		t.Fatal(err)
	}
	if len(packs) != 2 {
		t.Fatal("expected 2 sequential packs, got", len(packs))
	}
	total := 0
	for _, pack := range packs {
		total += len(pack.Members)
		stored, err := st.store.Pack(pack.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Checksum != pack.Checksum {
			t.Fatal("pack checksum not persisted")
		}
	}
	if total != len(segments) {
		t.Fatal("pack members do not cover all segments")
	}

	// Unknown strategies are rejected.
	if _, err := st.segmenter.PackSegments(segments, modules.PackingStrategy("bogus")); !modules.IsInvalidFormat(err) {
		t.Fatal("expected rejection of an unknown strategy")
	}
}

// TestPackGrouping exercises the grouping helpers directly.
func TestPackGrouping(t *testing.T) {
	mk := func(index uint32, size uint64) types.Segment {
		return types.Segment{ID: types.NewSegmentID(1, index, 0), Index: index, Size: size}
	}
	segments := []types.Segment{mk(0, 300), mk(1, 300), mk(2, 500), mk(3, 100)}

	// Sequential: 300+300 fills the first pack exactly, 500+100 the second.
	seq := packSequential(segments, 600)
	if len(seq) != 2 {
		t.Fatal("sequential grouping mismatch:", len(seq))
	}

	// FFD: 500+100 in one pack, 300+300 in another.
	opt := packOptimized(segments, 600)
	if len(opt) != 2 {
		t.Fatal("optimized grouping mismatch:", len(opt))
	}
	// The largest segment leads the first pack.
	if opt[0][0].Size != 500 {
		t.Fatal("FFD did not sort by size")
	}

	// An oversized segment gets its own pack.
	solo := packSequential([]types.Segment{mk(0, 1000)}, 600)
	if len(solo) != 1 || len(solo[0]) != 1 {
		t.Fatal("oversized segment not isolated")
	}
}
