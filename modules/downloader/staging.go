package downloader

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/contemptx/usenetsync-sub004/types"
)

// stagingBucket holds verified, decompressed segment bodies keyed by
// (share, file, segment index). A resumed download finds its completed
// segments here and skips the relay entirely.
var stagingBucket = []byte("segments")

// stagingKey builds the key of one staged segment.
func stagingKey(share types.ShareID, file types.FileID, index uint32) []byte {
	return []byte(fmt.Sprintf("%s/%d/%d", share, file, index))
}

// stagePut stores a verified segment body.
func (d *Downloader) stagePut(share types.ShareID, file types.FileID, index uint32, body []byte) error {
	return d.staging.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(stagingBucket)
		if err != nil {
			return err
		}
		return bucket.Put(stagingKey(share, file, index), body)
	})
}

// stageGet loads a staged segment body, returning nil when absent.
func (d *Downloader) stageGet(share types.ShareID, file types.FileID, index uint32) ([]byte, error) {
	var body []byte
	err := d.staging.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stagingBucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(stagingKey(share, file, index)); v != nil {
			body = append([]byte(nil), v...)
		}
		return nil
	})
	return body, err
}

// stageDropFile removes every staged segment of one file after the file
// has been written and verified.
func (d *Downloader) stageDropFile(share types.ShareID, file types.FileID) error {
	prefix := []byte(fmt.Sprintf("%s/%d/", share, file))
	return d.staging.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stagingBucket)
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
