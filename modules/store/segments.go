package store

import (
	"database/sql"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

// AddSegments inserts segment rows in one transaction and bumps the owning
// file's segment count for replica 0 rows.
func (s *Store) AddSegments(segments []types.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	return s.tx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO segments (segment_id, file_id, segment_index, offset,
			 size, plaintext_hash, replica_index, compressed, newsgroup)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		originals := make(map[types.FileID]uint32)
		for _, seg := range segments {
			_, err := stmt.Exec(
				int64(seg.ID), int64(seg.FileID), seg.Index, seg.Offset, seg.Size,
				seg.PlaintextHash.String(), seg.ReplicaIndex, seg.Compressed,
				seg.Newsgroup,
			)
			if err != nil {
				return errors.AddContext(err, "unable to insert segment")
			}
			if seg.ReplicaIndex == 0 {
				originals[seg.FileID]++
			}
		}
		for fileID, count := range originals {
			if _, err := tx.Exec(
				`UPDATE files SET segment_count = segment_count + ? WHERE file_id = ?`,
				count, int64(fileID),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// scanSegment reads one segment row.
func scanSegment(row interface{ Scan(...interface{}) error }) (types.Segment, error) {
	var seg types.Segment
	var id, fileID int64
	var hash string
	var mid, subject, group sql.NullString
	err := row.Scan(
		&id, &fileID, &seg.Index, &seg.Offset, &seg.Size, &hash,
		&seg.ReplicaIndex, &seg.Compressed, &mid, &subject, &group,
	)
	if err == sql.ErrNoRows {
		return types.Segment{}, modules.ErrNotFound
	}
	if err != nil {
		return types.Segment{}, err
	}
	seg.ID = types.SegmentID(id)
	seg.FileID = types.FileID(fileID)
	if err := seg.PlaintextHash.LoadString(hash); err != nil {
		return types.Segment{}, err
	}
	seg.MessageID = types.MessageID(mid.String)
	seg.WireSubject = subject.String
	seg.Newsgroup = group.String
	return seg, nil
}

const segmentColumns = `segment_id, file_id, segment_index, offset, size,
	plaintext_hash, replica_index, compressed, message_id, wire_subject, newsgroup`

// Segment returns one segment by id.
func (s *Store) Segment(id types.SegmentID) (types.Segment, error) {
	row := s.db.QueryRow(`SELECT `+segmentColumns+` FROM segments WHERE segment_id = ?`, int64(id))
	return scanSegment(row)
}

// SegmentsForFile lists every segment row of a file, replicas included,
// ordered by segment index then replica index.
func (s *Store) SegmentsForFile(file types.FileID) ([]types.Segment, error) {
	rows, err := s.db.Query(
		`SELECT `+segmentColumns+` FROM segments
		 WHERE file_id = ? ORDER BY segment_index, replica_index`,
		int64(file),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var segments []types.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// AssignSegmentWire stores the message id and wire subject drawn for a
// segment, unless a message id is already present. Keeping the first id is
// what makes retries idempotent.
func (s *Store) AssignSegmentWire(id types.SegmentID, mid types.MessageID, wireSubject string) error {
	_, err := s.db.Exec(
		`UPDATE segments SET message_id = ?, wire_subject = ?
		 WHERE segment_id = ? AND message_id IS NULL`,
		string(mid), wireSubject, int64(id),
	)
	return errors.AddContext(err, "unable to assign segment wire identity")
}

// AddPack inserts a pack and its member rows.
func (s *Store) AddPack(pack types.Pack) error {
	return s.tx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO packs (pack_id, checksum) VALUES (?, ?)`,
			pack.ID, pack.Checksum.String(),
		); err != nil {
			return errors.AddContext(err, "unable to insert pack")
		}
		for position, member := range pack.Members {
			if _, err := tx.Exec(
				`INSERT INTO pack_members (pack_id, segment_id, position) VALUES (?, ?, ?)`,
				pack.ID, int64(member), position,
			); err != nil {
				return errors.AddContext(err, "unable to insert pack member")
			}
		}
		return nil
	})
}

// AssignPackWire stores the message id and wire subject drawn for a pack,
// unless a message id is already present.
func (s *Store) AssignPackWire(id string, mid types.MessageID, wireSubject string) error {
	_, err := s.db.Exec(
		`UPDATE packs SET message_id = ?, wire_subject = ?
		 WHERE pack_id = ? AND message_id IS NULL`,
		string(mid), wireSubject, id,
	)
	return errors.AddContext(err, "unable to assign pack wire identity")
}

// Pack returns one pack with its members in position order.
func (s *Store) Pack(id string) (types.Pack, error) {
	var pack types.Pack
	var checksum string
	var mid, subject sql.NullString
	err := s.db.QueryRow(`SELECT pack_id, checksum, message_id, wire_subject FROM packs WHERE pack_id = ?`, id).
		Scan(&pack.ID, &checksum, &mid, &subject)
	if err == sql.ErrNoRows {
		return types.Pack{}, modules.ErrNotFound
	}
	if err != nil {
		return types.Pack{}, err
	}
	pack.MessageID = types.MessageID(mid.String)
	pack.WireSubject = subject.String
	if err := pack.Checksum.LoadString(checksum); err != nil {
		return types.Pack{}, err
	}
	rows, err := s.db.Query(
		`SELECT segment_id FROM pack_members WHERE pack_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return types.Pack{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var member int64
		if err := rows.Scan(&member); err != nil {
			return types.Pack{}, err
		}
		pack.Members = append(pack.Members, types.SegmentID(member))
	}
	return pack, rows.Err()
}
