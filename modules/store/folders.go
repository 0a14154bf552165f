package store

import (
	"database/sql"
	"time"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

// AddFolder inserts a folder row.
func (s *Store) AddFolder(folder types.Folder) error {
	_, err := s.db.Exec(
		`INSERT INTO folders (folder_id, display_name, local_path, state, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		folder.ID.String(), folder.DisplayName, folder.LocalPath,
		string(folder.State), folder.CreatedAt.Unix(),
	)
	return errors.AddContext(err, "unable to add folder")
}

// scanFolder reads one folder row.
func scanFolder(row interface{ Scan(...interface{}) error }) (types.Folder, error) {
	var folder types.Folder
	var id, state string
	var createdAt int64
	err := row.Scan(&id, &folder.DisplayName, &folder.LocalPath, &state, &createdAt)
	if err == sql.ErrNoRows {
		return types.Folder{}, modules.ErrNotFound
	}
	if err != nil {
		return types.Folder{}, err
	}
	if err := folder.ID.LoadString(id); err != nil {
		return types.Folder{}, err
	}
	folder.State = types.FolderState(state)
	folder.CreatedAt = time.Unix(createdAt, 0).UTC()
	return folder, nil
}

// Folder returns one folder by id.
func (s *Store) Folder(id types.FolderID) (types.Folder, error) {
	row := s.db.QueryRow(
		`SELECT folder_id, display_name, local_path, state, created_at
		 FROM folders WHERE folder_id = ?`, id.String(),
	)
	return scanFolder(row)
}

// Folders lists every folder.
func (s *Store) Folders() ([]types.Folder, error) {
	rows, err := s.db.Query(
		`SELECT folder_id, display_name, local_path, state, created_at
		 FROM folders ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var folders []types.Folder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

// SetFolderState updates a folder's lifecycle state.
func (s *Store) SetFolderState(id types.FolderID, state types.FolderState) error {
	res, err := s.db.Exec(
		`UPDATE folders SET state = ? WHERE folder_id = ?`,
		string(state), id.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return modules.ErrNotFound
	}
	return nil
}

// SaveFolderKeys stores a folder's encrypted key material.
func (s *Store) SaveFolderKeys(id types.FolderID, keys modules.EncryptedFolderKeys) error {
	_, err := s.db.Exec(
		`INSERT INTO folder_keys (folder_id, encrypted_signing_key, encrypted_root)
		 VALUES (?, ?, ?)
		 ON CONFLICT(folder_id) DO UPDATE SET
		 encrypted_signing_key = excluded.encrypted_signing_key,
		 encrypted_root = excluded.encrypted_root`,
		id.String(), keys.SigningKey, keys.Root,
	)
	return errors.AddContext(err, "unable to save folder keys")
}

// FolderKeys loads a folder's encrypted key material.
func (s *Store) FolderKeys(id types.FolderID) (modules.EncryptedFolderKeys, error) {
	var keys modules.EncryptedFolderKeys
	err := s.db.QueryRow(
		`SELECT encrypted_signing_key, encrypted_root FROM folder_keys WHERE folder_id = ?`,
		id.String(),
	).Scan(&keys.SigningKey, &keys.Root)
	if err == sql.ErrNoRows {
		return modules.EncryptedFolderKeys{}, modules.ErrNotFound
	}
	return keys, err
}
