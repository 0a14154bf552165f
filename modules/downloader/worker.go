package downloader

import (
	"context"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/modules/segmenter"
	"github.com/contemptx/usenetsync-sub004/types"
)

// fetchSegment retrieves one segment, trying the original message id and
// then each replica until one article decrypts, parses, and hashes
// correctly. Only a verified, decompressed body ever reaches the staging
// store. When every replica is exhausted the segment is reported missing.
func (d *Downloader) fetchSegment(index modules.IndexDocument, session crypto.SessionKey, j job) jobResult {
	share := index.Share.ShareID

	// A staged body from an earlier run satisfies the job immediately.
	if staged, err := d.stageGet(share, j.file.FileID, j.segment.Index); err != nil {
		return jobResult{job: j, err: err}
	} else if staged != nil {
		return jobResult{job: j}
	}

	mids := append([]types.MessageID{j.segment.MessageID}, j.segment.ReplicaMessageIDs...)
	for replicaIndex, mid := range mids {
		select {
		case <-d.tg.StopChan():
			return jobResult{job: j, err: modules.ErrCancelled}
		default:
		}

		ctx, cancel := context.WithTimeout(d.ctx, relayTimeout)
		_, ciphertext, err := d.relay.Fetch(ctx, mid)
		cancel()
		if err != nil {
			// NotFound, transient failures, and timeouts all mean the
			// same thing here: try the next replica.
			continue
		}

		body, err := d.verifyArticle(index, session, j, uint8(replicaIndex), ciphertext)
		if err != nil {
			// The article exists but its content is wrong; discard it
			// and try the next replica.
			d.log.Printf("discarding replica %d of segment %d of %v: %v",
				replicaIndex, j.segment.Index, j.file.Path, err)
			continue
		}

		if err := d.stagePut(share, j.file.FileID, j.segment.Index, body); err != nil {
			return jobResult{job: j, err: err}
		}
		return jobResult{job: j}
	}
	return jobResult{job: j, missing: true}
}

// verifyArticle decrypts and validates one fetched article against the
// index entry, returning the decompressed body.
func (d *Downloader) verifyArticle(index modules.IndexDocument, session crypto.SessionKey, j job, replicaIndex uint8, ciphertext []byte) ([]byte, error) {
	ad := modules.SegmentAssociatedData(index.Share.FolderID, j.file.FileID, j.segment.Index, replicaIndex)
	plaintext, err := session.DecryptBytes(ciphertext, ad)
	if err != nil {
		return nil, err
	}
	article, err := modules.DecodeSegmentArticle(plaintext)
	if err != nil {
		return nil, err
	}
	if article.FileID != j.file.FileID || article.SegmentIndex != j.segment.Index {
		return nil, modules.ErrIntegrity
	}
	if crypto.HashBytes(article.Payload) != j.segment.PlaintextHash {
		return nil, modules.ErrIntegrity
	}
	body := article.Payload
	if article.Compressed {
		body, err = segmenter.Inflate(body)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}
