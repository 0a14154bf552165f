package downloader

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/modules/accessmgr"
	"github.com/contemptx/usenetsync-sub004/modules/obfuscator"
	"github.com/contemptx/usenetsync-sub004/modules/relay"
	"github.com/contemptx/usenetsync-sub004/modules/segmenter"
	"github.com/contemptx/usenetsync-sub004/modules/store"
	"github.com/contemptx/usenetsync-sub004/modules/uploader"
	"github.com/contemptx/usenetsync-sub004/types"
)

var _ modules.Downloader = (*Downloader)(nil)

// dlTester bundles a downloader with the upload-side stack used to seed
// the relay.
type dlTester struct {
	downloader *Downloader
	uploader   *uploader.Uploader
	store      *store.Store
	access     *accessmgr.AccessManager
	segmenter  *segmenter.Segmenter
	relay      *relay.Memory
	folder     types.Folder
	root       string
	dest       string
	config     modules.Config
}

func newDLTester(t *testing.T, name string) *dlTester {
	t.Helper()
	dir := build.TempDir("downloader", name)
	root := filepath.Join(dir, "data")
	dest := filepath.Join(dir, "restored")
	for _, sub := range []string{root, dest} {
		if err := os.MkdirAll(sub, 0700); err != nil {
			t.Fatal(err)
		}
	}
	st, err := store.New(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatal(err)
	}
	am, err := accessmgr.New(st, filepath.Join(dir, "accessmgr"))
	if err != nil {
		t.Fatal(err)
	}
	config := modules.DefaultConfig()
	config.SegmentSize = 1024
	sg, err := segmenter.New(st, config, filepath.Join(dir, "segmenter"))
	if err != nil {
		t.Fatal(err)
	}
	mem := relay.NewMemory(4)
	pool := relay.NewPool(mem)
	up, err := uploader.New(st, am, sg, obfuscator.New(), pool, config, filepath.Join(dir, "uploader"))
	if err != nil {
		t.Fatal(err)
	}
	dl, err := New(st, pool, config, filepath.Join(dir, "downloader"))
	if err != nil {
		t.Fatal(err)
	}

	folder := types.Folder{
		ID: types.NewFolderID(), DisplayName: "data", LocalPath: root,
		State: types.FolderActive, CreatedAt: time.Now(),
	}
	if err := st.AddFolder(folder); err != nil {
		t.Fatal(err)
	}
	if _, err := am.CreateFolderKeys(folder.ID); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		dl.Close()
		up.Close()
		sg.Close()
		am.Close()
		st.Close()
	})
	return &dlTester{
		downloader: dl, uploader: up, store: st, access: am, segmenter: sg,
		relay: mem, folder: folder, root: root, dest: dest, config: config,
	}
}

// publish writes files, segments them with the given redundancy, uploads
// everything, and builds the index document a recipient would decrypt.
func (tester *dlTester) publish(t *testing.T, redundancy int, contents map[string][]byte) (modules.IndexDocument, crypto.SessionKey) {
	t.Helper()
	share := types.Share{
		ID: types.NewShareID(), FolderID: tester.folder.ID, VersionSnapshot: 1,
		AccessClass: types.SharePublic, CreatedAt: time.Now(),
	}
	if err := tester.store.AddShare(share); err != nil {
		t.Fatal(err)
	}
	// Segment articles are encrypted under the folder content key; that is
	// what a recipient finds inside the decrypted index document.
	session, err := tester.access.ContentKey(tester.folder.ID)
	if err != nil {
		t.Fatal(err)
	}

	var files []types.File
	for rel, data := range contents {
		path := filepath.Join(tester.root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatal(err)
		}
		id, err := tester.store.AddFileVersion(types.File{
			FolderID:     tester.folder.ID,
			RelativePath: rel,
			Size:         uint64(len(data)),
			ContentHash:  crypto.HashBytes(data),
			ModifiedAt:   time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
		file, err := tester.store.File(id)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := tester.segmenter.SegmentFile(file, redundancy); err != nil {
			t.Fatal(err)
		}
		file, err = tester.store.File(id)
		if err != nil {
			t.Fatal(err)
		}
		files = append(files, file)
	}

	if _, err := tester.uploader.Enqueue(share, files); err != nil {
		t.Fatal(err)
	}
	if ok, err := tester.uploader.Wait(share.ID); err != nil || !ok {
		t.Fatal("upload did not drain:", err)
	}

	// Build the index document from the store rows, the way the indexer
	// does before encrypting.
	doc := modules.IndexDocument{
		Version:   1,
		CreatedAt: time.Now().UTC(),
		Share: modules.IndexShare{
			ShareID: share.ID, FolderID: tester.folder.ID, AccessClass: share.AccessClass,
		},
	}
	for _, file := range files {
		entry := modules.IndexFile{
			FileID: file.ID, Path: file.RelativePath, Size: file.Size, ContentHash: file.ContentHash,
		}
		segments, err := tester.store.SegmentsForFile(file.ID)
		if err != nil {
			t.Fatal(err)
		}
		byIndex := make(map[uint32]*modules.IndexSegment)
		for _, seg := range segments {
			if seg.ReplicaIndex == 0 {
				byIndex[seg.Index] = &modules.IndexSegment{
					Index: seg.Index, Size: seg.Size, PlaintextHash: seg.PlaintextHash,
					MessageID: seg.MessageID, Compressed: seg.Compressed,
				}
			}
		}
		for _, seg := range segments {
			if seg.ReplicaIndex > 0 {
				byIndex[seg.Index].ReplicaMessageIDs = append(byIndex[seg.Index].ReplicaMessageIDs, seg.MessageID)
			}
		}
		for index := uint32(0); int(index) < len(byIndex); index++ {
			entry.Segments = append(entry.Segments, *byIndex[index])
		}
		doc.Folder.FileCount++
		doc.Folder.TotalSize += file.Size
		doc.Files = append(doc.Files, entry)
	}
	return doc, session
}

// checkFile compares one restored file against the original bytes.
func (tester *dlTester) checkFile(t *testing.T, rel string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(filepath.Join(tester.dest, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("restored %v differs from the source", rel)
	}
}

// TestDownloadRoundTrip restores a folder byte-identically, including a
// compressible file and a multi-segment file.
func TestDownloadRoundTrip(t *testing.T) {
	tester := newDLTester(t, t.Name())
	contents := map[string][]byte{
		"a.txt":     []byte("hello"),
		"sub/b.bin": crypto.RandBytes(3000),
		"c.txt":     bytes.Repeat([]byte("compress me "), 300),
	}
	doc, session := tester.publish(t, 0, contents)

	outcome, err := tester.downloader.Download(doc, session, tester.dest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Complete() {
		t.Fatal("download incomplete:", outcome)
	}
	if len(outcome.Files) != 3 {
		t.Fatal("expected 3 file outcomes")
	}
	for rel, data := range contents {
		tester.checkFile(t, rel, data)
	}
}

// TestDownloadReplicaFallback drops every original article and restores
// from replicas alone.
func TestDownloadReplicaFallback(t *testing.T) {
	tester := newDLTester(t, t.Name())
	contents := map[string][]byte{"r.bin": crypto.RandBytes(2500)}
	doc, session := tester.publish(t, 2, contents)

	// Lose every original message id on the relay.
	for _, file := range doc.Files {
		for _, seg := range file.Segments {
			tester.relay.Drop(seg.MessageID)
		}
	}

	outcome, err := tester.downloader.Download(doc, session, tester.dest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Complete() {
		t.Fatal("replicas did not recover the download:", outcome)
	}
	tester.checkFile(t, "r.bin", contents["r.bin"])
}

// TestDownloadMissingSegments marks a file incomplete without affecting
// other files, and writes nothing for the broken file.
func TestDownloadMissingSegments(t *testing.T) {
	tester := newDLTester(t, t.Name())
	contents := map[string][]byte{
		"good.bin": crypto.RandBytes(1500),
		"bad.bin":  crypto.RandBytes(2048),
	}
	doc, session := tester.publish(t, 0, contents)

	// Lose one article of bad.bin; with no replicas the segment is gone.
	for _, file := range doc.Files {
		if file.Path == "bad.bin" {
			tester.relay.Drop(file.Segments[1].MessageID)
		}
	}

	outcome, err := tester.downloader.Download(doc, session, tester.dest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Complete() {
		t.Fatal("outcome should be incomplete")
	}
	for _, file := range outcome.Files {
		switch file.Path {
		case "good.bin":
			if file.Status != modules.FileComplete {
				t.Fatal("good file affected by the bad one")
			}
		case "bad.bin":
			if file.Status != modules.FileIncomplete {
				t.Fatal("bad file not reported incomplete")
			}
			if len(file.MissingSegments) != 1 || file.MissingSegments[0] != 1 {
				t.Fatal("missing segment indices wrong:", file.MissingSegments)
			}
		}
	}
	tester.checkFile(t, "good.bin", contents["good.bin"])
	// Nothing was written for the incomplete file.
	if _, err := os.Stat(filepath.Join(tester.dest, "bad.bin")); !os.IsNotExist(err) {
		t.Fatal("incomplete file left data at the destination")
	}
}

// TestDownloadSelection restores only the selected file.
func TestDownloadSelection(t *testing.T) {
	tester := newDLTester(t, t.Name())
	contents := map[string][]byte{
		"keep.bin": crypto.RandBytes(500),
		"skip.bin": crypto.RandBytes(500),
	}
	doc, session := tester.publish(t, 0, contents)

	var keepID types.FileID
	for _, file := range doc.Files {
		if file.Path == "keep.bin" {
			keepID = file.FileID
		}
	}
	outcome, err := tester.downloader.Download(doc, session, tester.dest, []types.FileID{keepID})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Files) != 1 || outcome.Files[0].Path != "keep.bin" {
		t.Fatal("selection not honored:", outcome)
	}
	tester.checkFile(t, "keep.bin", contents["keep.bin"])
	if _, err := os.Stat(filepath.Join(tester.dest, "skip.bin")); !os.IsNotExist(err) {
		t.Fatal("unselected file was written")
	}
}

// TestDownloadRejectsTamperedArticles ensures a wrong-key decrypt never
// reaches the destination.
func TestDownloadRejectsTamperedArticles(t *testing.T) {
	tester := newDLTester(t, t.Name())
	contents := map[string][]byte{"t.bin": crypto.RandBytes(100)}
	doc, _ := tester.publish(t, 0, contents)

	// A wrong session key fails every AEAD open; the segment counts as
	// missing and nothing is written.
	wrongSession := crypto.GenerateSessionKey()
	outcome, err := tester.downloader.Download(doc, wrongSession, tester.dest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Complete() {
		t.Fatal("tampered download reported complete")
	}
	if _, err := os.Stat(filepath.Join(tester.dest, "t.bin")); !os.IsNotExist(err) {
		t.Fatal("unverified data reached the destination")
	}
}

// TestStagingRoundTrip exercises the staging store directly.
func TestStagingRoundTrip(t *testing.T) {
	tester := newDLTester(t, t.Name())
	share := types.NewShareID()

	body := crypto.RandBytes(256)
	if err := tester.downloader.stagePut(share, 7, 3, body); err != nil {
		t.Fatal(err)
	}
	got, err := tester.downloader.stageGet(share, 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Fatal("staging round trip mismatch")
	}
	if err := tester.downloader.stageDropFile(share, 7); err != nil {
		t.Fatal(err)
	}
	got, err = tester.downloader.stageGet(share, 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("staged segment survived drop")
	}
}
