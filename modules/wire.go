package modules

// wire.go defines the three binary layouts that cross the relay: segment
// articles, pack containers, and index envelopes. All integers are
// little-endian. Decoders reject anything with a bad magic, a bad length,
// or a bad checksum; they never guess.

import (
	"bytes"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/encoding"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

const (
	// SegmentMagic leads every segment article plaintext.
	SegmentMagic = "USSG"

	// PackMagic leads every pack container.
	PackMagic = "USPK"

	// IndexMagic leads every index envelope.
	IndexMagic = "USIX"

	// SegmentWireVersion, PackWireVersion, and IndexWireVersion are the
	// current format versions.
	SegmentWireVersion = 1
	PackWireVersion    = 1
	IndexWireVersion   = 1

	// segmentHeaderSize is the fixed prefix of a segment article: magic,
	// version, flags, replica index, segment index, file id, and hash.
	segmentHeaderSize = 4 + 2 + 1 + 1 + 4 + 4 + crypto.HashSize

	// packSegmentHeaderSize is the per-segment header inside a pack:
	// segment id, file id, segment index, size, hash, flags, replica.
	packSegmentHeaderSize = 8 + 4 + 4 + 4 + crypto.HashSize + 1 + 1

	// indexHeaderSize is the fixed prefix of an index envelope: magic,
	// version, original size, compressed size.
	indexHeaderSize = 4 + 2 + 4 + 4

	// flagCompressed marks a compressed segment body.
	flagCompressed = 0x01

	// flagRedundancy marks a pack carrying replica descriptors.
	flagRedundancy = 0x02
)

// A SegmentArticle is the plaintext of one posted segment, before
// encryption. The encrypted article body is the AEAD of this layout, with
// the identifying tuple bound as associated data.
type SegmentArticle struct {
	Compressed    bool
	ReplicaIndex  uint8
	SegmentIndex  uint32
	FileID        types.FileID
	PlaintextHash crypto.Hash
	Payload       []byte
}

// EncodeSegmentArticle serializes a segment article.
func EncodeSegmentArticle(sa SegmentArticle) []byte {
	buf := make([]byte, 0, segmentHeaderSize+len(sa.Payload))
	buf = append(buf, SegmentMagic...)
	buf = append(buf, encoding.EncUint16(SegmentWireVersion)...)
	var flags byte
	if sa.Compressed {
		flags |= flagCompressed
	}
	buf = append(buf, flags, sa.ReplicaIndex)
	buf = append(buf, encoding.EncUint32(sa.SegmentIndex)...)
	buf = append(buf, encoding.EncUint32(uint32(sa.FileID))...)
	buf = append(buf, sa.PlaintextHash[:]...)
	buf = append(buf, sa.Payload...)
	return buf
}

// DecodeSegmentArticle parses a segment article, rejecting bad magics and
// truncated input.
func DecodeSegmentArticle(b []byte) (SegmentArticle, error) {
	if len(b) < segmentHeaderSize {
		return SegmentArticle{}, errors.Extend(errors.New("segment article too short"), ErrInvalidFormat)
	}
	if string(b[:4]) != SegmentMagic {
		return SegmentArticle{}, errors.Extend(errors.New("segment article has a bad magic"), ErrInvalidFormat)
	}
	if encoding.DecUint16(b[4:6]) != SegmentWireVersion {
		return SegmentArticle{}, errors.Extend(errors.New("segment article has an unknown version"), ErrInvalidFormat)
	}
	sa := SegmentArticle{
		Compressed:   b[6]&flagCompressed != 0,
		ReplicaIndex: b[7],
		SegmentIndex: encoding.DecUint32(b[8:12]),
		FileID:       types.FileID(encoding.DecUint32(b[12:16])),
	}
	copy(sa.PlaintextHash[:], b[16:16+crypto.HashSize])
	sa.Payload = append([]byte(nil), b[segmentHeaderSize:]...)
	return sa, nil
}

// SegmentAssociatedData builds the associated data binding a segment
// ciphertext to its identifying tuple.
func SegmentAssociatedData(folder types.FolderID, fileID types.FileID, segmentIndex uint32, replicaIndex uint8) []byte {
	ad := make([]byte, 0, types.FolderIDSize+4+4+1)
	ad = append(ad, folder[:]...)
	ad = append(ad, encoding.EncUint32(uint32(fileID))...)
	ad = append(ad, encoding.EncUint32(segmentIndex)...)
	ad = append(ad, replicaIndex)
	return ad
}

// PackAssociatedData builds the associated data binding a pack ciphertext
// to its folder and pack id.
func PackAssociatedData(folder types.FolderID, packID string) []byte {
	ad := make([]byte, 0, types.FolderIDSize+len(packID))
	ad = append(ad, folder[:]...)
	ad = append(ad, packID...)
	return ad
}

// A PackedSegment pairs a segment row with the body bytes carried in a
// pack.
type PackedSegment struct {
	Segment types.Segment
	Body    []byte
}

// EncodePack serializes segments into one pack container. The layout is a
// pack header (magic, version, flags, segment count, optional redundancy
// descriptor, member table), the per-segment headers and bodies, and a
// trailing sha256 checksum over header and body so that the container is
// self-verifying.
func EncodePack(segments []PackedSegment, redundancyLevel int) []byte {
	header := new(bytes.Buffer)
	header.WriteString(PackMagic)
	header.Write(encoding.EncUint16(PackWireVersion))

	var flags byte
	replicaCount := 0
	for _, ps := range segments {
		if ps.Segment.Compressed {
			flags |= flagCompressed
		}
		if ps.Segment.ReplicaIndex > 0 {
			replicaCount++
		}
	}
	if redundancyLevel > 0 {
		flags |= flagRedundancy
	}
	header.WriteByte(flags)
	header.Write(encoding.EncUint32(uint32(len(segments))))
	if redundancyLevel > 0 {
		header.WriteByte(byte(redundancyLevel))
		header.Write(encoding.EncUint32(uint32(replicaCount)))
	}
	for _, ps := range segments {
		header.Write(encoding.EncUint64(uint64(ps.Segment.ID)))
		header.Write(encoding.EncUint32(uint32(ps.Segment.FileID)))
		header.Write(encoding.EncUint32(ps.Segment.Index))
	}

	body := new(bytes.Buffer)
	for _, ps := range segments {
		seg := ps.Segment
		body.Write(encoding.EncUint64(uint64(seg.ID)))
		body.Write(encoding.EncUint32(uint32(seg.FileID)))
		body.Write(encoding.EncUint32(seg.Index))
		body.Write(encoding.EncUint32(uint32(len(ps.Body))))
		body.Write(seg.PlaintextHash[:])
		var segFlags byte
		if seg.Compressed {
			segFlags |= flagCompressed
		}
		segFlags |= byte(redundancyLevel&0x0F) << 4
		body.WriteByte(segFlags)
		body.WriteByte(seg.ReplicaIndex)
		body.Write(ps.Body)
	}

	out := make([]byte, 0, header.Len()+body.Len()+crypto.HashSize)
	out = append(out, header.Bytes()...)
	out = append(out, body.Bytes()...)
	checksum := crypto.HashBytes(out)
	out = append(out, checksum[:]...)
	return out
}

// PackChecksum extracts the checksum of an encoded pack.
func PackChecksum(b []byte) (crypto.Hash, error) {
	if len(b) < crypto.HashSize {
		return crypto.Hash{}, errors.Extend(errors.New("pack too short"), ErrInvalidFormat)
	}
	var sum crypto.Hash
	copy(sum[:], b[len(b)-crypto.HashSize:])
	return sum, nil
}

// DecodePack parses a pack container, verifying the magic and the trailing
// checksum before yielding the member segments.
func DecodePack(b []byte) ([]PackedSegment, error) {
	if len(b) < 4+2+1+4+crypto.HashSize {
		return nil, errors.Extend(errors.New("pack too short"), ErrInvalidFormat)
	}
	payload, trailer := b[:len(b)-crypto.HashSize], b[len(b)-crypto.HashSize:]
	if string(payload[:4]) != PackMagic {
		return nil, errors.Extend(errors.New("pack has a bad magic"), ErrInvalidFormat)
	}
	if checksum := crypto.HashBytes(payload); !bytes.Equal(checksum[:], trailer) {
		return nil, errors.Extend(errors.New("pack checksum mismatch"), ErrIntegrity)
	}
	if encoding.DecUint16(payload[4:6]) != PackWireVersion {
		return nil, errors.Extend(errors.New("pack has an unknown version"), ErrInvalidFormat)
	}
	flags := payload[6]
	count := int(encoding.DecUint32(payload[7:11]))
	off := 11
	if flags&flagRedundancy != 0 {
		// Redundancy descriptor: level byte plus replica count.
		if len(payload) < off+5 {
			return nil, errors.Extend(errors.New("pack redundancy descriptor truncated"), ErrInvalidFormat)
		}
		off += 5
	}
	// Skip the member table; the per-segment headers repeat the identity.
	tableSize := count * (8 + 4 + 4)
	if len(payload) < off+tableSize {
		return nil, errors.Extend(errors.New("pack member table truncated"), ErrInvalidFormat)
	}
	off += tableSize

	segments := make([]PackedSegment, 0, count)
	for i := 0; i < count; i++ {
		if len(payload) < off+packSegmentHeaderSize {
			return nil, errors.Extend(errors.New("pack segment header truncated"), ErrInvalidFormat)
		}
		var seg types.Segment
		seg.ID = types.SegmentID(encoding.DecUint64(payload[off : off+8]))
		seg.FileID = types.FileID(encoding.DecUint32(payload[off+8 : off+12]))
		seg.Index = encoding.DecUint32(payload[off+12 : off+16])
		size := int(encoding.DecUint32(payload[off+16 : off+20]))
		copy(seg.PlaintextHash[:], payload[off+20:off+20+crypto.HashSize])
		segFlags := payload[off+20+crypto.HashSize]
		seg.Compressed = segFlags&flagCompressed != 0
		seg.ReplicaIndex = payload[off+21+crypto.HashSize]
		seg.Size = uint64(size)
		off += packSegmentHeaderSize
		if len(payload) < off+size {
			return nil, errors.Extend(errors.New("pack segment body truncated"), ErrInvalidFormat)
		}
		body := append([]byte(nil), payload[off:off+size]...)
		off += size
		segments = append(segments, PackedSegment{Segment: seg, Body: body})
	}
	return segments, nil
}

// SignatureSchemeEd25519 is recorded in index envelopes signed with the
// folder's ed25519 key; every envelope written records it.
// SignatureSchemeHMAC names the HMAC scheme; envelopes carrying it are
// rejected as unsupported.
const (
	SignatureSchemeEd25519 = "ed25519"
	SignatureSchemeHMAC    = "hmac-sha256"
)

// An IndexEnvelope is the cleartext stanza published next to the encrypted
// index: everything a recipient needs to authenticate the article and
// unwrap the session key.
type IndexEnvelope struct {
	KeyWrap         KeyWrap          `json:"keywrap"`
	SignatureScheme string           `json:"signaturescheme"`
	SigningKey      crypto.PublicKey `json:"signingkey"`
	Signature       crypto.Signature `json:"signature"`
}

// EncodeIndexHeader builds the fixed binary prefix of an index article.
func EncodeIndexHeader(originalSize, compressedSize int) []byte {
	buf := make([]byte, 0, indexHeaderSize)
	buf = append(buf, IndexMagic...)
	buf = append(buf, encoding.EncUint16(IndexWireVersion)...)
	buf = append(buf, encoding.EncUint32(uint32(originalSize))...)
	buf = append(buf, encoding.EncUint32(uint32(compressedSize))...)
	return buf
}

// DecodeIndexHeader parses the fixed binary prefix of an index article.
func DecodeIndexHeader(b []byte) (originalSize, compressedSize int, err error) {
	if len(b) < indexHeaderSize {
		return 0, 0, errors.Extend(errors.New("index envelope too short"), ErrInvalidFormat)
	}
	if string(b[:4]) != IndexMagic {
		return 0, 0, errors.Extend(errors.New("index envelope has a bad magic"), ErrInvalidFormat)
	}
	if encoding.DecUint16(b[4:6]) != IndexWireVersion {
		return 0, 0, errors.Extend(errors.New("index envelope has an unknown version"), ErrInvalidFormat)
	}
	return int(encoding.DecUint32(b[6:10])), int(encoding.DecUint32(b[10:14])), nil
}

// IndexHeaderSize is the length of the fixed index prefix.
func IndexHeaderSize() int { return indexHeaderSize }
