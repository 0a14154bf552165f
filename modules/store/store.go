// Package store implements the transactional persistence layer on sqlite.
// Every entity of the pipeline lives here: folders, file versions, segments,
// packs, shares, commitments, encrypted folder keys, and both task queues.
// The schema invariants of the data model are enforced by unique indexes,
// so a violated invariant is a database error rather than a silent
// inconsistency.
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/persist"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// dbFilename is the name of the sqlite database file.
	dbFilename = "usenetsync.db"

	// logFile is the name of the store's log file.
	logFile = "store.log"

	// notifyBuffer is the capacity of the change stream channels. Events
	// beyond a slow consumer's buffer are dropped rather than blocking
	// writers.
	notifyBuffer = 256
)

// schema creates every table and index of the data model.
const schema = `
CREATE TABLE IF NOT EXISTS folders (
	folder_id    TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	local_path   TEXT NOT NULL,
	state        TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	file_id             INTEGER PRIMARY KEY AUTOINCREMENT,
	folder_id           TEXT NOT NULL REFERENCES folders(folder_id),
	relative_path       TEXT NOT NULL,
	size                INTEGER NOT NULL,
	content_hash        TEXT NOT NULL,
	version             INTEGER NOT NULL,
	previous_version_id INTEGER,
	state               TEXT NOT NULL,
	modified_at         INTEGER NOT NULL,
	segment_count       INTEGER NOT NULL DEFAULT 0,
	UNIQUE(folder_id, relative_path, version)
);

CREATE TABLE IF NOT EXISTS segments (
	segment_id     INTEGER PRIMARY KEY,
	file_id        INTEGER NOT NULL REFERENCES files(file_id),
	segment_index  INTEGER NOT NULL,
	offset         INTEGER NOT NULL,
	size           INTEGER NOT NULL,
	plaintext_hash TEXT NOT NULL,
	replica_index  INTEGER NOT NULL,
	compressed     INTEGER NOT NULL,
	message_id     TEXT,
	wire_subject   TEXT,
	newsgroup      TEXT,
	UNIQUE(file_id, segment_index, replica_index)
);
CREATE UNIQUE INDEX IF NOT EXISTS segments_message_id
	ON segments(message_id) WHERE message_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS packs (
	pack_id      TEXT PRIMARY KEY,
	checksum     TEXT NOT NULL,
	message_id   TEXT,
	wire_subject TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS packs_message_id
	ON packs(message_id) WHERE message_id IS NOT NULL;
CREATE TABLE IF NOT EXISTS pack_members (
	pack_id    TEXT NOT NULL REFERENCES packs(pack_id),
	segment_id INTEGER NOT NULL REFERENCES segments(segment_id),
	position   INTEGER NOT NULL,
	UNIQUE(segment_id),
	UNIQUE(pack_id, position)
);

CREATE TABLE IF NOT EXISTS shares (
	share_id            TEXT PRIMARY KEY,
	folder_id           TEXT NOT NULL REFERENCES folders(folder_id),
	version_snapshot    INTEGER NOT NULL,
	access_class        TEXT NOT NULL,
	index_message_id    TEXT,
	created_at          INTEGER NOT NULL,
	expires_at          INTEGER,
	password_salt       BLOB,
	kdf_params          TEXT,
	wrapped_session_key BLOB
);

CREATE TABLE IF NOT EXISTS access_commitments (
	share_id            TEXT NOT NULL REFERENCES shares(share_id),
	user_id_hash        TEXT NOT NULL,
	verification_key    TEXT NOT NULL,
	wrapped_session_key BLOB NOT NULL,
	UNIQUE(share_id, user_id_hash)
);

CREATE TABLE IF NOT EXISTS folder_keys (
	folder_id            TEXT PRIMARY KEY REFERENCES folders(folder_id),
	encrypted_signing_key BLOB NOT NULL,
	encrypted_root       BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS upload_tasks (
	task_id       TEXT PRIMARY KEY,
	priority      INTEGER NOT NULL,
	status        TEXT NOT NULL,
	retry_count   INTEGER NOT NULL,
	max_retries   INTEGER NOT NULL,
	payload_json  TEXT NOT NULL,
	progress_json TEXT NOT NULL,
	share_id      TEXT NOT NULL,
	folder_id     TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS upload_tasks_claim
	ON upload_tasks(status, priority, created_at);

CREATE TABLE IF NOT EXISTS download_tasks (
	task_id       TEXT PRIMARY KEY,
	priority      INTEGER NOT NULL,
	status        TEXT NOT NULL,
	retry_count   INTEGER NOT NULL,
	max_retries   INTEGER NOT NULL,
	payload_json  TEXT NOT NULL,
	progress_json TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS download_tasks_claim
	ON download_tasks(status, priority, created_at);

CREATE TABLE IF NOT EXISTS task_checkpoints (
	task_id    TEXT NOT NULL,
	segment_id INTEGER NOT NULL,
	message_id TEXT NOT NULL,
	bytes      INTEGER NOT NULL,
	PRIMARY KEY(task_id, segment_id)
);
`

// Store implements modules.Store on sqlite.
type Store struct {
	db  *sql.DB
	log *persist.Logger

	fileChanges     chan modules.FileChange
	taskTransitions chan modules.TaskTransition
}

// New opens (or creates) the store in persistDir. Tasks stranded in flight
// by a crash are reclaimed as pending before the store is handed out.
func New(persistDir string) (*Store, error) {
	if err := os.MkdirAll(persistDir, 0700); err != nil {
		return nil, errors.AddContext(err, "unable to create the store directory")
	}
	logger, err := persist.NewLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, errors.AddContext(err, "unable to create the store logger")
	}

	dsn := "file:" + filepath.Join(persistDir, dbFilename) +
		"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.AddContext(err, "unable to open the database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.AddContext(err, "unable to apply the schema")
	}

	s := &Store{
		db:              db,
		log:             logger,
		fileChanges:     make(chan modules.FileChange, notifyBuffer),
		taskTransitions: make(chan modules.TaskTransition, notifyBuffer),
	}
	reclaimed, err := s.resetInFlightTasks()
	if err != nil {
		db.Close()
		return nil, errors.AddContext(err, "unable to reclaim in-flight tasks")
	}
	if reclaimed > 0 {
		s.log.Printf("reclaimed %d in-flight tasks as pending", reclaimed)
	}
	return s, nil
}

// Close releases the database and the logger.
func (s *Store) Close() error {
	return errors.Compose(s.db.Close(), s.log.Close())
}

// tx runs fn inside one transaction, rolling back on error.
func (s *Store) tx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.AddContext(err, "unable to begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.AddContext(tx.Commit(), "unable to commit transaction")
}

// resetInFlightTasks moves in_progress and retrying tasks of both queues
// back to pending. Checkpoint rows survive, so resumed tasks skip completed
// segments.
func (s *Store) resetInFlightTasks() (int64, error) {
	var reclaimed int64
	err := s.tx(func(tx *sql.Tx) error {
		for _, table := range []string{"upload_tasks", "download_tasks"} {
			res, err := tx.Exec(
				`UPDATE `+table+` SET status = ?, updated_at = strftime('%s','now')
				 WHERE status IN (?, ?)`,
				string(types.TaskPending), string(types.TaskInProgress), string(types.TaskRetrying),
			)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			reclaimed += n
		}
		return nil
	})
	return reclaimed, err
}

// FileChanges returns the file change stream.
func (s *Store) FileChanges() <-chan modules.FileChange {
	return s.fileChanges
}

// TaskTransitions returns the task transition stream.
func (s *Store) TaskTransitions() <-chan modules.TaskTransition {
	return s.taskTransitions
}

// notifyFile emits a file change without ever blocking a writer.
func (s *Store) notifyFile(change modules.FileChange) {
	select {
	case s.fileChanges <- change:
	default:
	}
}

// notifyTask emits a task transition without ever blocking a writer.
func (s *Store) notifyTask(transition modules.TaskTransition) {
	select {
	case s.taskTransitions <- transition:
	default:
	}
}
