package store

import (
	"database/sql"
	"time"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

// AddFileVersion appends a new file version row. The previous version of
// the same path, if any, is marked obsolete in the same transaction and the
// new row links back to it. The assigned file id is returned.
func (s *Store) AddFileVersion(file types.File) (types.FileID, error) {
	var assigned types.FileID
	err := s.tx(func(tx *sql.Tx) error {
		// Find the newest non-obsolete version of this path.
		var prevID int64
		var prevVersion int
		err := tx.QueryRow(
			`SELECT file_id, version FROM files
			 WHERE folder_id = ? AND relative_path = ? AND state != ?
			 ORDER BY version DESC LIMIT 1`,
			file.FolderID.String(), file.RelativePath, string(types.FileObsolete),
		).Scan(&prevID, &prevVersion)
		hasPrev := err == nil
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		version := 1
		var previous interface{}
		if hasPrev {
			version = prevVersion + 1
			previous = prevID
			if _, err := tx.Exec(
				`UPDATE files SET state = ? WHERE file_id = ?`,
				string(types.FileObsolete), prevID,
			); err != nil {
				return err
			}
		}

		res, err := tx.Exec(
			`INSERT INTO files (folder_id, relative_path, size, content_hash,
			 version, previous_version_id, state, modified_at, segment_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			file.FolderID.String(), file.RelativePath, file.Size,
			file.ContentHash.String(), version, previous,
			string(types.FileIndexed), file.ModifiedAt.Unix(),
		)
		if err != nil {
			return err
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		assigned = types.FileID(rowID)
		return nil
	})
	if err != nil {
		return 0, errors.AddContext(err, "unable to add file version")
	}
	s.notifyFile(modules.FileChange{FileID: assigned, FolderID: file.FolderID, State: types.FileIndexed})
	return assigned, nil
}

// scanFile reads one file row.
func scanFile(row interface{ Scan(...interface{}) error }) (types.File, error) {
	var file types.File
	var folderID, hash, state string
	var previous sql.NullInt64
	var modifiedAt int64
	err := row.Scan(
		&file.ID, &folderID, &file.RelativePath, &file.Size, &hash,
		&file.Version, &previous, &state, &modifiedAt, &file.SegmentCount,
	)
	if err == sql.ErrNoRows {
		return types.File{}, modules.ErrNotFound
	}
	if err != nil {
		return types.File{}, err
	}
	if err := file.FolderID.LoadString(folderID); err != nil {
		return types.File{}, err
	}
	if err := file.ContentHash.LoadString(hash); err != nil {
		return types.File{}, err
	}
	if previous.Valid {
		file.PreviousID = types.FileID(previous.Int64)
	}
	file.State = types.FileState(state)
	file.ModifiedAt = time.Unix(modifiedAt, 0).UTC()
	return file, nil
}

const fileColumns = `file_id, folder_id, relative_path, size, content_hash,
	version, previous_version_id, state, modified_at, segment_count`

// File returns one file version row by id.
func (s *Store) File(id types.FileID) (types.File, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE file_id = ?`, int64(id))
	return scanFile(row)
}

// LatestFiles lists the newest non-obsolete version of every path in the
// folder.
func (s *Store) LatestFiles(folder types.FolderID) ([]types.File, error) {
	rows, err := s.db.Query(
		`SELECT `+fileColumns+` FROM files
		 WHERE folder_id = ? AND state != ?
		 ORDER BY relative_path`,
		folder.String(), string(types.FileObsolete),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []types.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// SetFileState advances a file's lifecycle state. States only move forward;
// an attempt to move a file backwards is rejected.
func (s *Store) SetFileState(id types.FileID, state types.FileState) error {
	order := map[types.FileState]int{
		types.FileIndexed:   0,
		types.FileSegmented: 1,
		types.FileUploaded:  2,
		types.FileObsolete:  3,
	}
	var file types.File
	err := s.tx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+fileColumns+` FROM files WHERE file_id = ?`, int64(id))
		var err error
		file, err = scanFile(row)
		if err != nil {
			return err
		}
		if order[state] < order[file.State] {
			return errors.Extend(errors.New("file state may only advance"), modules.ErrInvalidFormat)
		}
		_, err = tx.Exec(`UPDATE files SET state = ? WHERE file_id = ?`, string(state), int64(id))
		return err
	})
	if err != nil {
		return err
	}
	s.notifyFile(modules.FileChange{FileID: id, FolderID: file.FolderID, State: state})
	return nil
}
