package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

// AddShare inserts a share row. The index message id starts null; it is set
// only after the index article has been accepted by the relay.
func (s *Store) AddShare(share types.Share) error {
	var kdfJSON interface{}
	if share.KDFParams != nil {
		b, err := json.Marshal(share.KDFParams)
		if err != nil {
			return err
		}
		kdfJSON = string(b)
	}
	var expires interface{}
	if share.ExpiresAt != nil {
		expires = share.ExpiresAt.Unix()
	}
	_, err := s.db.Exec(
		`INSERT INTO shares (share_id, folder_id, version_snapshot, access_class,
		 created_at, expires_at, password_salt, kdf_params)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(share.ID), share.FolderID.String(), share.VersionSnapshot,
		string(share.AccessClass), share.CreatedAt.Unix(), expires,
		share.PasswordSalt, kdfJSON,
	)
	return errors.AddContext(err, "unable to add share")
}

// scanShare reads one share row.
func scanShare(row interface{ Scan(...interface{}) error }) (types.Share, error) {
	var share types.Share
	var id, folderID, class string
	var mid, kdfJSON sql.NullString
	var createdAt int64
	var expires sql.NullInt64
	err := row.Scan(
		&id, &folderID, &share.VersionSnapshot, &class, &mid,
		&createdAt, &expires, &share.PasswordSalt, &kdfJSON,
	)
	if err == sql.ErrNoRows {
		return types.Share{}, modules.ErrNotFound
	}
	if err != nil {
		return types.Share{}, err
	}
	share.ID = types.ShareID(id)
	if err := share.FolderID.LoadString(folderID); err != nil {
		return types.Share{}, err
	}
	share.AccessClass = types.AccessClass(class)
	share.IndexMessageID = types.MessageID(mid.String)
	share.CreatedAt = time.Unix(createdAt, 0).UTC()
	if expires.Valid {
		t := time.Unix(expires.Int64, 0).UTC()
		share.ExpiresAt = &t
	}
	if kdfJSON.Valid {
		var params types.KDFParams
		if err := json.Unmarshal([]byte(kdfJSON.String), &params); err != nil {
			return types.Share{}, err
		}
		share.KDFParams = &params
	}
	return share, nil
}

const shareColumns = `share_id, folder_id, version_snapshot, access_class,
	index_message_id, created_at, expires_at, password_salt, kdf_params`

// Share returns one share by id.
func (s *Store) Share(id types.ShareID) (types.Share, error) {
	row := s.db.QueryRow(`SELECT `+shareColumns+` FROM shares WHERE share_id = ?`, string(id))
	return scanShare(row)
}

// Shares lists every share, newest first.
func (s *Store) Shares() ([]types.Share, error) {
	rows, err := s.db.Query(`SELECT ` + shareColumns + ` FROM shares ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shares []types.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

// SetShareIndexMessageID records the index article of a published share.
// The id may only be set once.
func (s *Store) SetShareIndexMessageID(id types.ShareID, mid types.MessageID) error {
	res, err := s.db.Exec(
		`UPDATE shares SET index_message_id = ?
		 WHERE share_id = ? AND index_message_id IS NULL`,
		string(mid), string(id),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Extend(errors.New("share missing or already published"), modules.ErrInvalidFormat)
	}
	return nil
}

// SetShareSessionKey stores a share's wrapped session key.
func (s *Store) SetShareSessionKey(id types.ShareID, wrapped []byte) error {
	res, err := s.db.Exec(
		`UPDATE shares SET wrapped_session_key = ? WHERE share_id = ?`,
		wrapped, string(id),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return modules.ErrNotFound
	}
	return nil
}

// ShareSessionKey loads a share's wrapped session key.
func (s *Store) ShareSessionKey(id types.ShareID) ([]byte, error) {
	var wrapped []byte
	err := s.db.QueryRow(
		`SELECT wrapped_session_key FROM shares WHERE share_id = ?`, string(id),
	).Scan(&wrapped)
	if err == sql.ErrNoRows {
		return nil, modules.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if wrapped == nil {
		return nil, modules.ErrNotFound
	}
	return wrapped, nil
}

// SetShareKDF records the salt and derivation parameters drawn for a
// protected share at publish time.
func (s *Store) SetShareKDF(id types.ShareID, salt []byte, params *types.KDFParams) error {
	var kdfJSON interface{}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		kdfJSON = string(b)
	}
	res, err := s.db.Exec(
		`UPDATE shares SET password_salt = ?, kdf_params = ? WHERE share_id = ?`,
		salt, kdfJSON, string(id),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return modules.ErrNotFound
	}
	return nil
}

// AddAccessCommitments stores the commitments of a private share.
func (s *Store) AddAccessCommitments(id types.ShareID, commitments []types.AccessCommitment) error {
	return s.tx(func(tx *sql.Tx) error {
		for _, c := range commitments {
			if _, err := tx.Exec(
				`INSERT INTO access_commitments (share_id, user_id_hash,
				 verification_key, wrapped_session_key) VALUES (?, ?, ?, ?)`,
				string(id), c.UserIDHash.String(), c.VerificationKey.String(),
				c.WrappedSessionKey,
			); err != nil {
				return errors.AddContext(err, "unable to insert access commitment")
			}
		}
		return nil
	})
}

// AccessCommitments lists the commitments of a share.
func (s *Store) AccessCommitments(id types.ShareID) ([]types.AccessCommitment, error) {
	rows, err := s.db.Query(
		`SELECT user_id_hash, verification_key, wrapped_session_key
		 FROM access_commitments WHERE share_id = ?`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var commitments []types.AccessCommitment
	for rows.Next() {
		var c types.AccessCommitment
		var userHash, verification string
		if err := rows.Scan(&userHash, &verification, &c.WrappedSessionKey); err != nil {
			return nil, err
		}
		if err := c.UserIDHash.LoadString(userHash); err != nil {
			return nil, err
		}
		if err := c.VerificationKey.LoadString(verification); err != nil {
			return nil, err
		}
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}
