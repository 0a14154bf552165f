// Package segmenter cuts files into fixed-size segments, compresses the
// ones that benefit from it, generates replica rows for redundancy, and
// groups segments into pack containers. Segment bodies are never retained;
// they are re-derived from the source file when a worker needs them, which
// keeps the store small and makes crash recovery trivial.
package segmenter

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/encoding"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

const logFile = "segmenter.log"

// Segmenter implements modules.Segmenter.
type Segmenter struct {
	store  modules.Store
	config modules.Config
	log    *persist.Logger
}

// New creates a segmenter.
func New(store modules.Store, config modules.Config, persistDir string) (*Segmenter, error) {
	if err := os.MkdirAll(persistDir, 0700); err != nil {
		return nil, err
	}
	logger, err := persist.NewLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, err
	}
	return &Segmenter{
		store:  store,
		config: config,
		log:    logger,
	}, nil
}

// Close releases the segmenter's logger.
func (sg *Segmenter) Close() error {
	return sg.log.Close()
}

// localPath resolves a file's absolute location on disk.
func (sg *Segmenter) localPath(file types.File) (string, error) {
	folder, err := sg.store.Folder(file.FolderID)
	if err != nil {
		return "", err
	}
	return filepath.Join(folder.LocalPath, filepath.FromSlash(file.RelativePath)), nil
}

// SegmentFile reads the file sequentially and emits segment rows: one
// replica-0 row per slice plus `redundancy` replicas carrying the identical
// plaintext hash under distinct ids. The file advances to FileSegmented.
func (sg *Segmenter) SegmentFile(file types.File, redundancy int) ([]types.Segment, error) {
	if redundancy < 0 {
		redundancy = sg.config.RedundancyLevel
	}
	if redundancy > modules.MaxRedundancyLevel {
		return nil, errors.Extend(errors.New("redundancy level out of range"), modules.ErrInvalidFormat)
	}

	path, err := sg.localPath(file)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.AddContext(err, "unable to open file for segmentation")
	}
	defer f.Close()

	var segments []types.Segment
	buf := make([]byte, sg.config.SegmentSize)
	var offset uint64
	var index uint32
	for {
		n, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, errors.AddContext(err, "unable to read file for segmentation")
		}
		raw := buf[:n]
		body, compressed := maybeCompress(raw, sg.config.CompressionThreshold)
		hash := crypto.HashBytes(body)

		for replica := 0; replica <= redundancy; replica++ {
			segments = append(segments, types.Segment{
				ID:            types.NewSegmentID(file.ID, index, uint8(replica)),
				FileID:        file.ID,
				Index:         index,
				Offset:        offset,
				Size:          uint64(len(body)),
				PlaintextHash: hash,
				ReplicaIndex:  uint8(replica),
				Compressed:    compressed,
				Newsgroup:     sg.config.Newsgroup,
			})
		}

		offset += uint64(n)
		index++
		if err == io.ErrUnexpectedEOF {
			break
		}
	}

	if err := sg.store.AddSegments(segments); err != nil {
		return nil, err
	}
	if err := sg.store.SetFileState(file.ID, types.FileSegmented); err != nil {
		return nil, err
	}
	sg.log.Printf("segmented %v: %d segments, redundancy %d", file.RelativePath, int(index), redundancy)
	return segments, nil
}

// SegmentBody re-derives the body of one segment from the source file. The
// result is byte-identical to what was hashed at segmentation time;
// deriving it twice is safe because compression is deterministic.
func (sg *Segmenter) SegmentBody(file types.File, segment types.Segment) ([]byte, error) {
	path, err := sg.localPath(file)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.AddContext(err, "unable to open file for segment body")
	}
	defer f.Close()

	rawLen := sg.config.SegmentSize
	if segment.Offset+rawLen > file.Size {
		rawLen = file.Size - segment.Offset
	}
	raw := make([]byte, rawLen)
	if _, err := f.ReadAt(raw, int64(segment.Offset)); err != nil {
		return nil, errors.AddContext(err, "unable to read segment bytes")
	}

	body := raw
	if segment.Compressed {
		body = deflate(raw)
	}
	if crypto.HashBytes(body) != segment.PlaintextHash {
		return nil, errors.Extend(errors.New("segment body no longer matches its hash; the file changed on disk"), modules.ErrIntegrity)
	}
	return body, nil
}

// PackSegments groups segments into packs bounded by the configured pack
// size and persists the pack rows. The pack id is derived from the member
// segment ids, and the checksum covers the encoded container.
func (sg *Segmenter) PackSegments(segments []types.Segment, strategy modules.PackingStrategy) ([]types.Pack, error) {
	var groups [][]types.Segment
	switch strategy {
	case modules.PackOptimized:
		groups = packOptimized(segments, sg.config.PackSize)
	case modules.PackSequential:
		groups = packSequential(segments, sg.config.PackSize)
	default:
		return nil, errors.Extend(errors.New("unknown packing strategy"), modules.ErrInvalidFormat)
	}

	var packs []types.Pack
	for _, group := range groups {
		packed := make([]modules.PackedSegment, 0, len(group))
		redundancy := 0
		for _, seg := range group {
			file, err := sg.store.File(seg.FileID)
			if err != nil {
				return nil, err
			}
			body, err := sg.SegmentBody(file, seg)
			if err != nil {
				return nil, err
			}
			packed = append(packed, modules.PackedSegment{Segment: seg, Body: body})
			if int(seg.ReplicaIndex) > redundancy {
				redundancy = int(seg.ReplicaIndex)
			}
		}
		container := modules.EncodePack(packed, redundancy)
		checksum, err := modules.PackChecksum(container)
		if err != nil {
			return nil, err
		}
		pack := types.Pack{
			ID:       packID(group),
			Checksum: checksum,
		}
		for _, seg := range group {
			pack.Members = append(pack.Members, seg.ID)
		}
		if err := sg.store.AddPack(pack); err != nil {
			return nil, err
		}
		packs = append(packs, pack)
	}
	sg.log.Printf("packed %d segments into %d packs (%v)", len(segments), len(packs), strategy)
	return packs, nil
}

// packID derives a pack identifier from the member segment ids.
func packID(segments []types.Segment) string {
	var buf bytes.Buffer
	for _, seg := range segments {
		buf.Write(encoding.EncUint64(uint64(seg.ID)))
	}
	return crypto.HashBytes(buf.Bytes()).String()[:16]
}
