package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"

	"github.com/NebulousLabs/errors"
)

// AddUploadTask enqueues one upload task.
func (s *Store) AddUploadTask(task types.UploadTask) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return err
	}
	progress, err := json.Marshal(task.Progress)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.db.Exec(
		`INSERT INTO upload_tasks (task_id, priority, status, retry_count,
		 max_retries, payload_json, progress_json, share_id, folder_id,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(task.ID), task.Priority, string(types.TaskPending),
		task.RetryCount, task.MaxRetries, string(payload), string(progress),
		string(task.Payload.ShareID), task.Payload.FolderID.String(), now, now,
	)
	if err != nil {
		return errors.AddContext(err, "unable to enqueue upload task")
	}
	s.notifyTask(modules.TaskTransition{TaskID: task.ID, Status: types.TaskPending, Upload: true})
	return nil
}

// AddDownloadTask enqueues one download task.
func (s *Store) AddDownloadTask(task types.DownloadTask) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return err
	}
	progress, err := json.Marshal(task.Progress)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.db.Exec(
		`INSERT INTO download_tasks (task_id, priority, status, retry_count,
		 max_retries, payload_json, progress_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(task.ID), task.Priority, string(types.TaskPending),
		task.RetryCount, task.MaxRetries, string(payload), string(progress), now, now,
	)
	if err != nil {
		return errors.AddContext(err, "unable to enqueue download task")
	}
	s.notifyTask(modules.TaskTransition{TaskID: task.ID, Status: types.TaskPending, Upload: false})
	return nil
}

// scanTask reads the queue bookkeeping columns shared by both task tables.
func scanTask(row interface{ Scan(...interface{}) error }, payload interface{}) (types.Task, error) {
	var task types.Task
	var id, status, payloadJSON, progressJSON string
	var createdAt, updatedAt int64
	err := row.Scan(
		&id, &task.Priority, &status, &task.RetryCount, &task.MaxRetries,
		&payloadJSON, &progressJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return types.Task{}, modules.ErrNotFound
	}
	if err != nil {
		return types.Task{}, err
	}
	task.ID = types.TaskID(id)
	task.Status = types.TaskStatus(status)
	task.CreatedAt = time.Unix(createdAt, 0).UTC()
	task.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if err := json.Unmarshal([]byte(progressJSON), &task.Progress); err != nil {
		return types.Task{}, err
	}
	if err := json.Unmarshal([]byte(payloadJSON), payload); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

const uploadTaskColumns = `task_id, priority, status, retry_count, max_retries,
	payload_json, progress_json, created_at, updated_at`

// UploadTask returns one upload task by id.
func (s *Store) UploadTask(id types.TaskID) (types.UploadTask, error) {
	row := s.db.QueryRow(
		`SELECT `+uploadTaskColumns+` FROM upload_tasks WHERE task_id = ?`, string(id),
	)
	var task types.UploadTask
	base, err := scanTask(row, &task.Payload)
	if err != nil {
		return types.UploadTask{}, err
	}
	task.Task = base
	return task, nil
}

// DownloadTask returns one download task by id.
func (s *Store) DownloadTask(id types.TaskID) (types.DownloadTask, error) {
	row := s.db.QueryRow(
		`SELECT `+uploadTaskColumns+` FROM download_tasks WHERE task_id = ?`, string(id),
	)
	var task types.DownloadTask
	base, err := scanTask(row, &task.Payload)
	if err != nil {
		return types.DownloadTask{}, err
	}
	task.Task = base
	return task, nil
}

// ClaimUploadTask atomically claims the best pending upload task: lowest
// priority value first, FIFO within a priority, and never more than
// maxPerFolder tasks of one folder in flight at once.
func (s *Store) ClaimUploadTask(maxPerFolder int) (types.UploadTask, bool, error) {
	var task types.UploadTask
	claimed := false
	err := s.tx(func(tx *sql.Tx) error {
		row := tx.QueryRow(
			`SELECT `+uploadTaskColumns+` FROM upload_tasks AS t
			 WHERE status = ?
			 AND (SELECT COUNT(*) FROM upload_tasks AS held
			      WHERE held.folder_id = t.folder_id AND held.status = ?) < ?
			 ORDER BY priority ASC, created_at ASC, rowid ASC LIMIT 1`,
			string(types.TaskPending), string(types.TaskInProgress), maxPerFolder,
		)
		base, err := scanTask(row, &task.Payload)
		if modules.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		task.Task = base
		res, err := tx.Exec(
			`UPDATE upload_tasks SET status = ?, updated_at = ?
			 WHERE task_id = ? AND status = ?`,
			string(types.TaskInProgress), time.Now().Unix(),
			string(base.ID), string(types.TaskPending),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			task.Status = types.TaskInProgress
			claimed = true
		}
		return nil
	})
	if err != nil || !claimed {
		return types.UploadTask{}, false, err
	}
	s.notifyTask(modules.TaskTransition{TaskID: task.ID, Status: types.TaskInProgress, Upload: true})
	return task, true, nil
}

// ClaimDownloadTask atomically claims the best pending download task.
func (s *Store) ClaimDownloadTask() (types.DownloadTask, bool, error) {
	var task types.DownloadTask
	claimed := false
	err := s.tx(func(tx *sql.Tx) error {
		row := tx.QueryRow(
			`SELECT `+uploadTaskColumns+` FROM download_tasks
			 WHERE status = ? ORDER BY priority ASC, created_at ASC, rowid ASC LIMIT 1`,
			string(types.TaskPending),
		)
		base, err := scanTask(row, &task.Payload)
		if modules.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		task.Task = base
		res, err := tx.Exec(
			`UPDATE download_tasks SET status = ?, updated_at = ?
			 WHERE task_id = ? AND status = ?`,
			string(types.TaskInProgress), time.Now().Unix(),
			string(base.ID), string(types.TaskPending),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			task.Status = types.TaskInProgress
			claimed = true
		}
		return nil
	})
	if err != nil || !claimed {
		return types.DownloadTask{}, false, err
	}
	s.notifyTask(modules.TaskTransition{TaskID: task.ID, Status: types.TaskInProgress, Upload: false})
	return task, true, nil
}

// transitionTask updates a task's status in whichever queue holds it.
func (s *Store) transitionTask(id types.TaskID, status types.TaskStatus, setRetry bool, priority, retryCount int) error {
	upload := true
	err := s.tx(func(tx *sql.Tx) error {
		for _, table := range []string{"upload_tasks", "download_tasks"} {
			var res sql.Result
			var err error
			if setRetry {
				res, err = tx.Exec(
					`UPDATE `+table+` SET status = ?, priority = ?, retry_count = ?, updated_at = ?
					 WHERE task_id = ?`,
					string(status), priority, retryCount, time.Now().Unix(), string(id),
				)
			} else {
				res, err = tx.Exec(
					`UPDATE `+table+` SET status = ?, updated_at = ? WHERE task_id = ?`,
					string(status), time.Now().Unix(), string(id),
				)
			}
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 1 {
				upload = table == "upload_tasks"
				return nil
			}
		}
		return modules.ErrNotFound
	})
	if err != nil {
		return err
	}
	s.notifyTask(modules.TaskTransition{TaskID: id, Status: status, Upload: upload})
	return nil
}

// RequeueTask returns a task to pending with an adjusted priority and retry
// count. Deprioritizing on retry keeps a flapping task from starving the
// queue.
func (s *Store) RequeueTask(id types.TaskID, priority, retryCount int) error {
	return s.transitionTask(id, types.TaskPending, true, priority, retryCount)
}

// CompleteTask marks a task completed.
func (s *Store) CompleteTask(id types.TaskID) error {
	return s.transitionTask(id, types.TaskCompleted, false, 0, 0)
}

// FailTask marks a task failed.
func (s *Store) FailTask(id types.TaskID) error {
	return s.transitionTask(id, types.TaskFailed, false, 0, 0)
}

// PendingTaskCount reports the combined pending depth of both queues. It is
// the backpressure signal.
func (s *Store) PendingTaskCount() (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT (SELECT COUNT(*) FROM upload_tasks WHERE status = ?) +
		        (SELECT COUNT(*) FROM download_tasks WHERE status = ?)`,
		string(types.TaskPending), string(types.TaskPending),
	).Scan(&count)
	return count, err
}

// TaskStats summarizes one queue's occupancy.
func (s *Store) TaskStats(upload bool) (modules.QueueStats, error) {
	table := "download_tasks"
	if upload {
		table = "upload_tasks"
	}
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM ` + table + ` GROUP BY status`)
	if err != nil {
		return modules.QueueStats{}, err
	}
	defer rows.Close()
	var stats modules.QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return modules.QueueStats{}, err
		}
		switch types.TaskStatus(status) {
		case types.TaskPending:
			stats.Pending = count
		case types.TaskInProgress:
			stats.InProgress = count
		case types.TaskRetrying:
			stats.Retrying = count
		case types.TaskCompleted:
			stats.Completed = count
		case types.TaskFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// UploadTasksForShare lists every upload task of a share.
func (s *Store) UploadTasksForShare(share types.ShareID) ([]types.UploadTask, error) {
	rows, err := s.db.Query(
		`SELECT `+uploadTaskColumns+` FROM upload_tasks WHERE share_id = ? ORDER BY created_at`,
		string(share),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []types.UploadTask
	for rows.Next() {
		var task types.UploadTask
		base, err := scanTask(rows, &task.Payload)
		if err != nil {
			return nil, err
		}
		task.Task = base
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CheckpointUpload records one posted segment: the message id lands on the
// segment row, the checkpoint row is written, and the task's progress
// advances, all in one transaction.
func (s *Store) CheckpointUpload(id types.TaskID, segment types.SegmentID, mid types.MessageID, bytes uint64) error {
	return s.tx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`UPDATE segments SET message_id = ? WHERE segment_id = ? AND message_id IS NULL`,
			string(mid), int64(segment),
		); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO task_checkpoints (task_id, segment_id, message_id, bytes)
			 VALUES (?, ?, ?, ?)`,
			string(id), int64(segment), string(mid), bytes,
		); err != nil {
			return err
		}
		return advanceProgress(tx, "upload_tasks", id, bytes, mid)
	})
}

// CheckpointDownload advances a download task's progress.
func (s *Store) CheckpointDownload(id types.TaskID, completedSegments, bytes uint64, last types.MessageID) error {
	return s.tx(func(tx *sql.Tx) error {
		progress, err := json.Marshal(types.TaskProgress{
			CompletedSegments: completedSegments,
			BytesTransferred:  bytes,
			LastMessageID:     last,
		})
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`UPDATE download_tasks SET progress_json = ?, updated_at = ? WHERE task_id = ?`,
			string(progress), time.Now().Unix(), string(id),
		)
		return err
	})
}

// advanceProgress increments a task's progress json in place.
func advanceProgress(tx *sql.Tx, table string, id types.TaskID, bytes uint64, mid types.MessageID) error {
	var progressJSON string
	err := tx.QueryRow(
		`SELECT progress_json FROM `+table+` WHERE task_id = ?`, string(id),
	).Scan(&progressJSON)
	if err == sql.ErrNoRows {
		return modules.ErrNotFound
	}
	if err != nil {
		return err
	}
	var progress types.TaskProgress
	if err := json.Unmarshal([]byte(progressJSON), &progress); err != nil {
		return err
	}
	progress.CompletedSegments++
	progress.BytesTransferred += bytes
	progress.LastMessageID = mid
	updated, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE `+table+` SET progress_json = ?, updated_at = ? WHERE task_id = ?`,
		string(updated), time.Now().Unix(), string(id),
	)
	return err
}

// TaskCheckpoints lists the segment ids a task has already completed.
func (s *Store) TaskCheckpoints(id types.TaskID) ([]types.SegmentID, error) {
	rows, err := s.db.Query(
		`SELECT segment_id FROM task_checkpoints WHERE task_id = ?`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var segments []types.SegmentID
	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		segments = append(segments, types.SegmentID(sid))
	}
	return segments, rows.Err()
}
