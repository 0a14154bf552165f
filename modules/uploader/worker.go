package uploader

import (
	"context"
	"time"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"
)

// workerLoop claims and processes tasks until the uploader stops.
func (u *Uploader) workerLoop() {
	for {
		select {
		case <-u.tg.StopChan():
			return
		case <-u.wake:
		case <-time.After(pollInterval):
		}
		for {
			task, ok, err := u.store.ClaimUploadTask(u.config.MaxTasksPerFolder)
			if err != nil {
				u.log.Severe("unable to claim upload task:", err)
				break
			}
			if !ok {
				break
			}
			u.processTask(task)
			select {
			case <-u.tg.StopChan():
				return
			default:
			}
		}
	}
}

// processTask posts every remaining segment of one task and settles the
// task's final state.
func (u *Uploader) processTask(task types.UploadTask) {
	var err error
	if task.Payload.PackID != "" {
		err = u.postPack(task)
	} else {
		err = u.postSegments(task)
	}
	switch {
	case err == nil:
		if err := u.store.CompleteTask(task.ID); err != nil {
			u.log.Severe("unable to complete task:", err)
			return
		}
		// The file is uploaded once all its segments are posted. Pack
		// tasks carry no file of their own.
		if task.Payload.PackID == "" {
			if err := u.store.SetFileState(task.Payload.FileID, types.FileUploaded); err != nil {
				u.log.Severe("unable to advance file state:", err)
			}
		}

	case modules.IsCancelled(err):
		// Shutdown or deadline: return the task without consuming a
		// retry. Idempotent message ids make the abandoned attempt
		// harmless.
		if err := u.store.RequeueTask(task.ID, task.Priority, task.RetryCount); err != nil {
			u.log.Severe("unable to requeue cancelled task:", err)
		}

	case modules.IsRetryable(err):
		retryCount := task.RetryCount + 1
		if retryCount > task.MaxRetries {
			u.log.Printf("task %v failed after %d retries: %v", task.ID, task.RetryCount, err)
			if err := u.store.FailTask(task.ID); err != nil {
				u.log.Severe("unable to fail task:", err)
			}
			return
		}
		// Backoff by deprioritization.
		if err := u.store.RequeueTask(task.ID, task.Priority+retryCount*10, retryCount); err != nil {
			u.log.Severe("unable to requeue task:", err)
		}

	default:
		// Permanent failures surface immediately.
		u.log.Printf("task %v failed permanently: %v", task.ID, err)
		if err := u.store.FailTask(task.ID); err != nil {
			u.log.Severe("unable to fail task:", err)
		}
	}
}

// postPack posts one pack container as a single article under the pack's
// own message id.
func (u *Uploader) postPack(task types.UploadTask) error {
	contentKey, err := u.access.ContentKey(task.Payload.FolderID)
	if err != nil {
		return err
	}
	keys, err := u.access.FolderKeys(task.Payload.FolderID)
	if err != nil {
		return err
	}
	pack, err := u.store.Pack(task.Payload.PackID)
	if err != nil {
		return err
	}

	// Re-derive every member body and encode the container.
	packed := make([]modules.PackedSegment, 0, len(pack.Members))
	redundancy := 0
	for _, memberID := range pack.Members {
		segment, err := u.store.Segment(memberID)
		if err != nil {
			return err
		}
		file, err := u.store.File(segment.FileID)
		if err != nil {
			return err
		}
		body, err := u.segmenter.SegmentBody(file, segment)
		if err != nil {
			return err
		}
		packed = append(packed, modules.PackedSegment{Segment: segment, Body: body})
		if int(segment.ReplicaIndex) > redundancy {
			redundancy = int(segment.ReplicaIndex)
		}
	}
	container := modules.EncodePack(packed, redundancy)

	if pack.MessageID == "" {
		pair := u.obfuscator.SubjectPair(task.Payload.FolderID, 0, 0, keys.SigningKey)
		if err := u.store.AssignPackWire(pack.ID, u.obfuscator.NewMessageID(), pair.Wire); err != nil {
			return err
		}
		pack, err = u.store.Pack(pack.ID)
		if err != nil {
			return err
		}
	}

	ad := modules.PackAssociatedData(task.Payload.FolderID, pack.ID)
	ciphertext := contentKey.EncryptBytes(container, ad)
	headers := u.obfuscator.PostHeaders(pack.WireSubject, u.config.Newsgroup, pack.MessageID)
	ctx, cancel := context.WithTimeout(u.ctx, relayTimeout)
	_, err = u.relay.Post(ctx, headers, ciphertext)
	cancel()
	return err
}

// postSegments posts every segment of the task that has no checkpoint yet.
func (u *Uploader) postSegments(task types.UploadTask) error {
	contentKey, err := u.access.ContentKey(task.Payload.FolderID)
	if err != nil {
		return err
	}
	keys, err := u.access.FolderKeys(task.Payload.FolderID)
	if err != nil {
		return err
	}
	file, err := u.store.File(task.Payload.FileID)
	if err != nil {
		return err
	}

	completed, err := u.store.TaskCheckpoints(task.ID)
	if err != nil {
		return err
	}
	done := make(map[types.SegmentID]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}

	for _, segmentID := range task.Payload.SegmentIDs {
		if _, exists := done[segmentID]; exists {
			continue
		}
		select {
		case <-u.tg.StopChan():
			return modules.ErrCancelled
		default:
		}

		segment, err := u.store.Segment(segmentID)
		if err != nil {
			return err
		}

		// Draw and persist the wire identity before the first post. A
		// retry after a crash finds the message id already assigned and
		// reuses it, so the relay's idempotence absorbs the duplicate.
		if segment.MessageID == "" {
			pair := u.obfuscator.SubjectPair(task.Payload.FolderID, file.Version, segment.Index, keys.SigningKey)
			mid := u.obfuscator.NewMessageID()
			if err := u.store.AssignSegmentWire(segment.ID, mid, pair.Wire); err != nil {
				return err
			}
			segment, err = u.store.Segment(segmentID)
			if err != nil {
				return err
			}
		}

		body, err := u.segmenter.SegmentBody(file, segment)
		if err != nil {
			return err
		}
		article := modules.EncodeSegmentArticle(modules.SegmentArticle{
			Compressed:    segment.Compressed,
			ReplicaIndex:  segment.ReplicaIndex,
			SegmentIndex:  segment.Index,
			FileID:        segment.FileID,
			PlaintextHash: segment.PlaintextHash,
			Payload:       body,
		})
		ad := modules.SegmentAssociatedData(task.Payload.FolderID, segment.FileID, segment.Index, segment.ReplicaIndex)
		ciphertext := contentKey.EncryptBytes(article, ad)

		headers := u.obfuscator.PostHeaders(segment.WireSubject, segment.Newsgroup, segment.MessageID)
		ctx, cancel := context.WithTimeout(u.ctx, relayTimeout)
		_, err = u.relay.Post(ctx, headers, ciphertext)
		cancel()
		if err != nil {
			return err
		}

		if err := u.store.CheckpointUpload(task.ID, segment.ID, segment.MessageID, uint64(len(ciphertext))); err != nil {
			return err
		}
	}
	return nil
}
