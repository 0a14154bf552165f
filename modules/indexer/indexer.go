// Package indexer builds, publishes, and retrieves core indexes. The index
// is the bootstrap artifact of a share: a recipient holding only the share
// string can fetch the index article, authenticate it, unwrap the session
// key, and from there locate every segment of the folder.
//
// The share string itself carries the index article's message id, so no
// subject-search or lookup service is involved in bootstrapping.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/encoding"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

const (
	logFile = "indexer.log"

	// indexCompressionLevel is the deflate level applied to the index
	// json. Indexes are metadata-dense and compress well at the maximum
	// level.
	indexCompressionLevel = 9

	// maxEnvelopeSize bounds the cleartext envelope stanza of a fetched
	// article.
	maxEnvelopeSize = 1 << 20

	// postRetries bounds transient retries of the single index post.
	postRetries = 3
)

// relayTimeout is the deadline applied to one relay operation.
var relayTimeout = build.Select(build.Var{
	Standard: 2 * time.Minute,
	Dev:      30 * time.Second,
	Testing:  10 * time.Second,
}).(time.Duration)

// Indexer implements modules.Indexer.
type Indexer struct {
	store      modules.Store
	access     modules.AccessManager
	obfuscator modules.Obfuscator
	relay      modules.Relay
	config     modules.Config

	log *persist.Logger
}

// New creates an indexer.
func New(store modules.Store, access modules.AccessManager, obfuscator modules.Obfuscator, relay modules.Relay, config modules.Config, persistDir string) (*Indexer, error) {
	if err := os.MkdirAll(persistDir, 0700); err != nil {
		return nil, err
	}
	logger, err := persist.NewLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, err
	}
	return &Indexer{
		store:      store,
		access:     access,
		obfuscator: obfuscator,
		relay:      relay,
		config:     config,
		log:        logger,
	}, nil
}

// Close releases the indexer's logger.
func (ix *Indexer) Close() error {
	return ix.log.Close()
}

// buildDocument assembles the index document for a share's snapshot. Every
// original segment must carry a message id; publishing is ordered-after the
// upload queue drained.
func (ix *Indexer) buildDocument(share types.Share) (modules.IndexDocument, error) {
	folder, err := ix.store.Folder(share.FolderID)
	if err != nil {
		return modules.IndexDocument{}, err
	}
	files, err := ix.store.LatestFiles(share.FolderID)
	if err != nil {
		return modules.IndexDocument{}, err
	}

	contentKey, err := ix.access.ContentKey(share.FolderID)
	if err != nil {
		return modules.IndexDocument{}, err
	}
	doc := modules.IndexDocument{
		Version:    modules.IndexWireVersion,
		CreatedAt:  time.Now().UTC(),
		SegmentKey: contentKey[:],
		Share: modules.IndexShare{
			ShareID:     share.ID,
			FolderID:    share.FolderID,
			AccessClass: share.AccessClass,
			ExpiresAt:   share.ExpiresAt,
		},
		Folder: modules.IndexFolder{
			RelativeRoot: folder.DisplayName,
			FileCount:    len(files),
		},
	}

	for _, file := range files {
		entry := modules.IndexFile{
			FileID:      file.ID,
			Path:        file.RelativePath,
			Size:        file.Size,
			ContentHash: file.ContentHash,
		}
		doc.Folder.TotalSize += file.Size

		segments, err := ix.store.SegmentsForFile(file.ID)
		if err != nil {
			return modules.IndexDocument{}, err
		}
		byIndex := make(map[uint32]*modules.IndexSegment)
		var order []uint32
		for _, seg := range segments {
			if seg.ReplicaIndex == 0 {
				if seg.MessageID == "" {
					return modules.IndexDocument{}, errors.Extend(
						errors.New("segment has no message id; upload incomplete for "+file.RelativePath),
						modules.ErrInvalidFormat)
				}
				byIndex[seg.Index] = &modules.IndexSegment{
					Index:         seg.Index,
					Size:          seg.Size,
					PlaintextHash: seg.PlaintextHash,
					MessageID:     seg.MessageID,
					Compressed:    seg.Compressed,
				}
				order = append(order, seg.Index)
			}
		}
		for _, seg := range segments {
			if seg.ReplicaIndex > 0 && seg.MessageID != "" {
				if entry := byIndex[seg.Index]; entry != nil {
					entry.ReplicaMessageIDs = append(entry.ReplicaMessageIDs, seg.MessageID)
				}
			}
		}
		for _, index := range order {
			entry.Segments = append(entry.Segments, *byIndex[index])
		}
		doc.Files = append(doc.Files, entry)
	}
	return doc, nil
}

// deflateIndex compresses the index json at the maximum level.
func deflateIndex(data []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, indexCompressionLevel)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// inflateIndex decompresses a fetched index body.
func inflateIndex(data []byte, originalSize int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Extend(err, modules.ErrInvalidFormat)
	}
	if len(out) != originalSize {
		return nil, errors.Extend(errors.New("index original size mismatch"), modules.ErrInvalidFormat)
	}
	return out, nil
}

// Publish builds, encrypts, signs, and posts the core index for a share,
// then records the index message id. The returned share string carries the
// share id and the message id.
func (ix *Indexer) Publish(share types.Share, users []string, password string) (string, error) {
	if share.AccessClass == types.SharePrivate && len(users) == 0 {
		return "", errors.Extend(errors.New("private share with zero commitments"), modules.ErrInvalidFormat)
	}

	doc, err := ix.buildDocument(share)
	if err != nil {
		return "", err
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	compressed := deflateIndex(docJSON)

	// Encrypt under the share's session key, binding the ciphertext to the
	// share id.
	session, err := ix.access.SessionKeyForShare(share.ID)
	if err != nil {
		return "", err
	}
	ciphertext := session.EncryptBytes(compressed, []byte(share.ID))

	// Wrap the session key for the share's audience.
	wrap, err := ix.access.WrapSessionKey(share.ID, share.FolderID, share.AccessClass, session, users, password)
	if err != nil {
		return "", err
	}

	// Sign header and ciphertext with the folder signing key.
	header := modules.EncodeIndexHeader(len(docJSON), len(compressed))
	keys, err := ix.access.FolderKeys(share.FolderID)
	if err != nil {
		return "", err
	}
	envelope := modules.IndexEnvelope{
		KeyWrap:         wrap,
		SignatureScheme: modules.SignatureSchemeEd25519,
		SigningKey:      keys.PublicKey,
		Signature:       crypto.SignHash(crypto.HashAll(header, ciphertext), keys.SigningKey),
	}
	envJSON, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}

	body := new(bytes.Buffer)
	body.Write(header)
	if err := encoding.WritePrefix(body, envJSON); err != nil {
		return "", err
	}
	body.Write(ciphertext)

	// Post under a fresh wire identity, retrying transient failures.
	mid := ix.obfuscator.NewMessageID()
	pair := ix.obfuscator.SubjectPair(share.FolderID, share.VersionSnapshot, 0, keys.SigningKey)
	headers := ix.obfuscator.PostHeaders(pair.Wire, ix.config.Newsgroup, mid)
	var postErr error
	for attempt := 0; attempt < postRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		_, postErr = ix.relay.Post(ctx, headers, body.Bytes())
		cancel()
		if postErr == nil || !modules.IsRetryable(postErr) {
			break
		}
		time.Sleep(time.Second << uint(attempt))
	}
	if postErr != nil {
		return "", errors.AddContext(postErr, "unable to post index article")
	}

	if err := ix.store.SetShareIndexMessageID(share.ID, mid); err != nil {
		return "", err
	}
	ix.log.Printf("published index for share %v: %d files, %d bytes compressed",
		share.ID, len(doc.Files), len(compressed))
	return types.ShareString(share.ID, mid), nil
}

// Fetch resolves a share string, retrieves and authenticates the index
// article, unwraps the session key with the given credentials, and returns
// the decrypted document.
func (ix *Indexer) Fetch(shareString string, creds modules.Credentials) (modules.IndexDocument, error) {
	shareID, mid, err := types.ParseShareString(shareString)
	if err != nil {
		return modules.IndexDocument{}, errors.Extend(err, modules.ErrInvalidFormat)
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	_, body, err := ix.relay.Fetch(ctx, mid)
	if err != nil {
		return modules.IndexDocument{}, errors.AddContext(err, "unable to fetch index article")
	}

	// Parse the binary header, the envelope stanza, and the ciphertext.
	originalSize, compressedSize, err := modules.DecodeIndexHeader(body)
	if err != nil {
		return modules.IndexDocument{}, err
	}
	rest := bytes.NewReader(body[modules.IndexHeaderSize():])
	envJSON, err := encoding.ReadPrefix(rest, maxEnvelopeSize)
	if err != nil {
		return modules.IndexDocument{}, errors.Extend(err, modules.ErrInvalidFormat)
	}
	var envelope modules.IndexEnvelope
	if err := json.Unmarshal(envJSON, &envelope); err != nil {
		return modules.IndexDocument{}, errors.Extend(err, modules.ErrInvalidFormat)
	}
	ciphertext, err := io.ReadAll(rest)
	if err != nil {
		return modules.IndexDocument{}, err
	}

	// Authenticate before decrypting.
	if envelope.SignatureScheme != modules.SignatureSchemeEd25519 {
		return modules.IndexDocument{}, errors.Extend(errors.New("unsupported signature scheme "+envelope.SignatureScheme), modules.ErrInvalidFormat)
	}
	header := modules.EncodeIndexHeader(originalSize, compressedSize)
	if err := crypto.VerifyHash(crypto.HashAll(header, ciphertext), envelope.SigningKey, envelope.Signature); err != nil {
		return modules.IndexDocument{}, errors.Extend(err, modules.ErrIntegrity)
	}

	// Unwrap and decrypt.
	session, err := ix.access.UnwrapSessionKey(shareID, envelope.KeyWrap, creds)
	if err != nil {
		return modules.IndexDocument{}, err
	}
	compressed, err := session.DecryptBytes(ciphertext, []byte(shareID))
	if err != nil {
		return modules.IndexDocument{}, errors.Extend(err, modules.ErrIntegrity)
	}
	if len(compressed) != compressedSize {
		return modules.IndexDocument{}, errors.Extend(errors.New("index compressed size mismatch"), modules.ErrInvalidFormat)
	}
	docJSON, err := inflateIndex(compressed, originalSize)
	if err != nil {
		return modules.IndexDocument{}, err
	}
	var doc modules.IndexDocument
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return modules.IndexDocument{}, errors.Extend(err, modules.ErrInvalidFormat)
	}
	if doc.Share.ShareID != shareID {
		return modules.IndexDocument{}, errors.Extend(errors.New("index does not match the share id"), modules.ErrInvalidFormat)
	}
	return doc, nil
}
