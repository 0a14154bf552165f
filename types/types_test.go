package types

import (
	"strings"
	"testing"
)

// TestSegmentIDEncoding checks that segment ids are injective over the
// (file id, segment index, replica index) tuple.
func TestSegmentIDEncoding(t *testing.T) {
	tests := []struct {
		fileID  FileID
		index   uint32
		replica uint8
	}{
		{0, 0, 0},
		{1, 0, 0},
		{1, 1, 0},
		{1, 1, 1},
		{maxSegmentFileID, maxSegmentIndex, 15},
		{77, 1023, 3},
	}
	seen := make(map[SegmentID]struct{})
	for _, test := range tests {
		sid := NewSegmentID(test.fileID, test.index, test.replica)
		if sid.FileID() != test.fileID {
			t.Error("file id mismatch:", sid.FileID(), test.fileID)
		}
		if sid.SegmentIndex() != test.index {
			t.Error("segment index mismatch:", sid.SegmentIndex(), test.index)
		}
		if sid.ReplicaIndex() != test.replica {
			t.Error("replica index mismatch:", sid.ReplicaIndex(), test.replica)
		}
		if _, exists := seen[sid]; exists {
			t.Error("segment id collision for", test)
		}
		seen[sid] = struct{}{}
	}
}

// TestFolderIDRoundTrip checks hex round trips of folder ids.
func TestFolderIDRoundTrip(t *testing.T) {
	fid := NewFolderID()
	var loaded FolderID
	err := loaded.LoadString(fid.String())
	if err != nil {
		t.Fatal(err)
	}
	if loaded != fid {
		t.Fatal("folder id round trip mismatch")
	}

	err = loaded.LoadString("abcd")
	if err != ErrInvalidFolderID {
		t.Fatal("expected ErrInvalidFolderID")
	}
}

// TestShareID checks the length and alphabet of generated share ids.
func TestShareID(t *testing.T) {
	for i := 0; i < 64; i++ {
		sid := NewShareID()
		if err := sid.Valid(); err != nil {
			t.Fatal("generated share id is invalid:", sid)
		}
		for _, banned := range "01IO" {
			if strings.ContainsRune(string(sid), banned) {
				t.Fatal("share id contains a banned character:", sid)
			}
		}
	}

	// Malformed ids are rejected.
	if err := ShareID("SHORT").Valid(); err != ErrInvalidShareID {
		t.Fatal("expected rejection of a short id")
	}
	if err := ShareID(strings.Repeat("0", ShareIDLength)).Valid(); err != ErrInvalidShareID {
		t.Fatal("expected rejection of a banned character")
	}
}

// TestShareString checks that share strings carry the index message id.
func TestShareString(t *testing.T) {
	sid := NewShareID()
	mid := MessageID("<abc123def456ghi7@news.local>")

	s := ShareString(sid, mid)
	gotSID, gotMID, err := ParseShareString(s)
	if err != nil {
		t.Fatal(err)
	}
	if gotSID != sid || gotMID != mid {
		t.Fatal("share string round trip mismatch")
	}

	// Strings without a separator, or with a corrupt payload, are rejected.
	if _, _, err := ParseShareString(string(sid)); err == nil {
		t.Fatal("expected rejection without separator")
	}
	if _, _, err := ParseShareString(s + "!"); err == nil {
		t.Fatal("expected rejection of corrupt payload")
	}
}

// TestTaskStatusTerminal checks terminal state classification.
func TestTaskStatusTerminal(t *testing.T) {
	if TaskPending.Terminal() || TaskInProgress.Terminal() || TaskRetrying.Terminal() {
		t.Error("non-terminal status reported as terminal")
	}
	if !TaskCompleted.Terminal() || !TaskFailed.Terminal() {
		t.Error("terminal status not reported as terminal")
	}
}
