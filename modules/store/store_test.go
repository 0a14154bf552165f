package store

import (
	"os"
	"testing"
	"time"

	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"
)

// interface check
var _ modules.Store = (*Store)(nil)

// newTestStore creates a store in a fresh test directory.
func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	dir := build.TempDir("store", name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// addTestFolder inserts a folder and returns it.
func addTestFolder(t *testing.T, s *Store) types.Folder {
	t.Helper()
	folder := types.Folder{
		ID:          types.NewFolderID(),
		DisplayName: "docs",
		LocalPath:   "/tmp/docs",
		State:       types.FolderActive,
		CreatedAt:   time.Now(),
	}
	if err := s.AddFolder(folder); err != nil {
		t.Fatal(err)
	}
	return folder
}

// TestFolderCRUD checks folder persistence and state updates.
func TestFolderCRUD(t *testing.T) {
	s := newTestStore(t, t.Name())
	defer s.Close()

	folder := addTestFolder(t, s)
	got, err := s.Folder(folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != folder.DisplayName || got.LocalPath != folder.LocalPath || got.State != types.FolderActive {
		t.Fatal("folder round trip mismatch")
	}

	if err := s.SetFolderState(folder.ID, types.FolderArchived); err != nil {
		t.Fatal(err)
	}
	got, err = s.Folder(folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != types.FolderArchived {
		t.Fatal("folder state not updated")
	}

	if _, err := s.Folder(types.NewFolderID()); !modules.IsNotFound(err) {
		t.Fatal("expected NotFound for an unknown folder")
	}

	folders, err := s.Folders()
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 1 {
		t.Fatal("expected one folder, got", len(folders))
	}
}

// TestFileVersioning checks that versions append, previous versions become
// obsolete, and versions increase monotonically.
func TestFileVersioning(t *testing.T) {
	s := newTestStore(t, t.Name())
	defer s.Close()
	folder := addTestFolder(t, s)

	v1, err := s.AddFileVersion(types.File{
		FolderID:     folder.ID,
		RelativePath: "a.txt",
		Size:         5,
		ContentHash:  crypto.HashBytes([]byte("hello")),
		ModifiedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	file1, err := s.File(v1)
	if err != nil {
		t.Fatal(err)
	}
	if file1.Version != 1 || file1.State != types.FileIndexed || file1.PreviousID != 0 {
		t.Fatal("unexpected first version row:", file1)
	}

	// A second version of the same path obsoletes the first.
	v2, err := s.AddFileVersion(types.File{
		FolderID:     folder.ID,
		RelativePath: "a.txt",
		Size:         6,
		ContentHash:  crypto.HashBytes([]byte("hello2")),
		ModifiedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	file2, err := s.File(v2)
	if err != nil {
		t.Fatal(err)
	}
	if file2.Version != 2 || file2.PreviousID != v1 {
		t.Fatal("unexpected second version row:", file2)
	}
	file1, err = s.File(v1)
	if err != nil {
		t.Fatal(err)
	}
	if file1.State != types.FileObsolete {
		t.Fatal("previous version not marked obsolete")
	}

	// LatestFiles sees only the new version.
	latest, err := s.LatestFiles(folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].ID != v2 {
		t.Fatal("latest files mismatch")
	}
}

// TestFileStateForwardOnly checks that file states cannot move backwards.
func TestFileStateForwardOnly(t *testing.T) {
	s := newTestStore(t, t.Name())
	defer s.Close()
	folder := addTestFolder(t, s)

	id, err := s.AddFileVersion(types.File{
		FolderID:     folder.ID,
		RelativePath: "b.bin",
		Size:         1,
		ContentHash:  crypto.HashBytes([]byte("x")),
		ModifiedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetFileState(id, types.FileSegmented); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFileState(id, types.FileUploaded); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFileState(id, types.FileIndexed); !modules.IsInvalidFormat(err) {
		t.Fatal("expected rejection of a backwards state move, got", err)
	}
}

// TestSegmentPersistence checks segment rows, the replica uniqueness
// constraint, and wire assignment semantics.
func TestSegmentPersistence(t *testing.T) {
	s := newTestStore(t, t.Name())
	defer s.Close()
	folder := addTestFolder(t, s)
	fileID, err := s.AddFileVersion(types.File{
		FolderID:     folder.ID,
		RelativePath: "c.bin",
		Size:         100,
		ContentHash:  crypto.HashBytes([]byte("c")),
		ModifiedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	seg := types.Segment{
		ID:            types.NewSegmentID(fileID, 0, 0),
		FileID:        fileID,
		Index:         0,
		Size:          100,
		PlaintextHash: crypto.HashBytes([]byte("body")),
		Newsgroup:     "alt.binaries.misc",
	}
	replica := seg
	replica.ID = types.NewSegmentID(fileID, 0, 1)
	replica.ReplicaIndex = 1
	if err := s.AddSegments([]types.Segment{seg, replica}); err != nil {
		t.Fatal(err)
	}

	// The file's segment count reflects only originals.
	file, err := s.File(fileID)
	if err != nil {
		t.Fatal(err)
	}
	if file.SegmentCount != 1 {
		t.Fatal("segment count should count only originals, got", file.SegmentCount)
	}

	// A duplicate (file, index, replica) tuple is rejected even under a
	// fresh primary key.
	dup := seg
	dup.ID = seg.ID | (1 << 60)
	if err := s.AddSegments([]types.Segment{dup}); err == nil {
		t.Fatal("expected uniqueness violation")
	}

	// Wire assignment sticks on first write.
	if err := s.AssignSegmentWire(seg.ID, "<first@news.local>", "aB3xY9kQ2mN7pL5wT0zR"); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignSegmentWire(seg.ID, "<second@news.local>", "otherSubject12345678"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Segment(seg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageID != "<first@news.local>" {
		t.Fatal("wire assignment was overwritten:", got.MessageID)
	}

	segments, err := s.SegmentsForFile(fileID)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 2 {
		t.Fatal("expected two segment rows, got", len(segments))
	}
}

// TestSharePersistence checks shares, session keys, and commitments.
func TestSharePersistence(t *testing.T) {
	s := newTestStore(t, t.Name())
	defer s.Close()
	folder := addTestFolder(t, s)

	share := types.Share{
		ID:              types.NewShareID(),
		FolderID:        folder.ID,
		VersionSnapshot: 1,
		AccessClass:     types.SharePrivate,
		CreatedAt:       time.Now(),
	}
	if err := s.AddShare(share); err != nil {
		t.Fatal(err)
	}

	// The session key wrap round trips.
	wrapped := crypto.RandBytes(crypto.NonceSize + crypto.TagSize + crypto.KeySize)
	if err := s.SetShareSessionKey(share.ID, wrapped); err != nil {
		t.Fatal(err)
	}
	gotWrapped, err := s.ShareSessionKey(share.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(gotWrapped) != string(wrapped) {
		t.Fatal("session key wrap mismatch")
	}

	// The index message id can be set exactly once.
	if err := s.SetShareIndexMessageID(share.ID, "<idx@news.local>"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetShareIndexMessageID(share.ID, "<other@news.local>"); !modules.IsInvalidFormat(err) {
		t.Fatal("expected rejection of a second index message id")
	}
	got, err := s.Share(share.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IndexMessageID != "<idx@news.local>" || got.AccessClass != types.SharePrivate {
		t.Fatal("share round trip mismatch")
	}

	// Commitments round trip; duplicates per user are rejected.
	commitment := types.AccessCommitment{
		UserIDHash:        crypto.HashBytes([]byte("u1")),
		VerificationKey:   crypto.HashBytes([]byte("v1")),
		WrappedSessionKey: crypto.RandBytes(60),
	}
	if err := s.AddAccessCommitments(share.ID, []types.AccessCommitment{commitment}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddAccessCommitments(share.ID, []types.AccessCommitment{commitment}); err == nil {
		t.Fatal("expected uniqueness violation for duplicate commitment")
	}
	commitments, err := s.AccessCommitments(share.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(commitments) != 1 || commitments[0].UserIDHash != commitment.UserIDHash {
		t.Fatal("commitment round trip mismatch")
	}
}

// TestChangeStreams checks that file and task transitions are emitted on
// the notification channels.
func TestChangeStreams(t *testing.T) {
	s := newTestStore(t, t.Name())
	defer s.Close()
	folder := addTestFolder(t, s)

	fileChanges := s.FileChanges()
	taskTransitions := s.TaskTransitions()

	id, err := s.AddFileVersion(types.File{
		FolderID:     folder.ID,
		RelativePath: "watched.bin",
		Size:         1,
		ContentHash:  crypto.HashBytes([]byte("w")),
		ModifiedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case change := <-fileChanges:
		if change.FileID != id || change.State != types.FileIndexed {
			t.Fatal("unexpected file change:", change)
		}
	default:
		t.Fatal("no file change emitted")
	}

	task := newUploadTask(types.NewShareID(), folder.ID, 1)
	if err := s.AddUploadTask(task); err != nil {
		t.Fatal(err)
	}
	select {
	case transition := <-taskTransitions:
		if transition.TaskID != task.ID || transition.Status != types.TaskPending || !transition.Upload {
			t.Fatal("unexpected task transition:", transition)
		}
	default:
		t.Fatal("no task transition emitted")
	}
}

// TestPackWire checks pack wire identity assignment.
func TestPackWire(t *testing.T) {
	s := newTestStore(t, t.Name())
	defer s.Close()
	folder := addTestFolder(t, s)
	fileID, err := s.AddFileVersion(types.File{
		FolderID:     folder.ID,
		RelativePath: "p.bin",
		Size:         10,
		ContentHash:  crypto.HashBytes([]byte("p")),
		ModifiedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	seg := types.Segment{
		ID:            types.NewSegmentID(fileID, 0, 0),
		FileID:        fileID,
		PlaintextHash: crypto.HashBytes([]byte("s")),
	}
	if err := s.AddSegments([]types.Segment{seg}); err != nil {
		t.Fatal(err)
	}
	pack := types.Pack{
		ID:       "abcdef0123456789",
		Checksum: crypto.HashBytes([]byte("pack")),
		Members:  []types.SegmentID{seg.ID},
	}
	if err := s.AddPack(pack); err != nil {
		t.Fatal(err)
	}

	if err := s.AssignPackWire(pack.ID, "<pack@news.local>", "aB3xY9kQ2mN7pL5wT0zR"); err != nil {
		t.Fatal(err)
	}
	// A second assignment does not overwrite the first.
	if err := s.AssignPackWire(pack.ID, "<other@news.local>", "x"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Pack(pack.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageID != "<pack@news.local>" || len(got.Members) != 1 {
		t.Fatal("pack wire round trip mismatch:", got)
	}
}

// TestFolderKeysAtRest checks encrypted key material persistence.
func TestFolderKeysAtRest(t *testing.T) {
	s := newTestStore(t, t.Name())
	defer s.Close()
	folder := addTestFolder(t, s)

	keys := modules.EncryptedFolderKeys{
		SigningKey: crypto.RandBytes(96),
		Root:       crypto.RandBytes(60),
	}
	if err := s.SaveFolderKeys(folder.ID, keys); err != nil {
		t.Fatal(err)
	}
	got, err := s.FolderKeys(folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.SigningKey) != string(keys.SigningKey) || string(got.Root) != string(keys.Root) {
		t.Fatal("folder keys round trip mismatch")
	}
	if _, err := s.FolderKeys(types.NewFolderID()); !modules.IsNotFound(err) {
		t.Fatal("expected NotFound for unknown folder keys")
	}
}
