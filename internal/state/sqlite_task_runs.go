package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/leapstack-labs/lookpipe/pkg/core"
)

const taskRunColumns = `id, run_id, task_name, status, rows, started_at, completed_at, duration_ms, memory_delta_bytes, error`

// RecordTaskRun inserts a task run. ID and StartedAt are filled in when empty.
func (s *SQLiteStore) RecordTaskRun(tr *core.TaskRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if tr.ID == "" {
		tr.ID = generateID()
	}
	if tr.StartedAt.IsZero() {
		tr.StartedAt = time.Now().UTC()
	}
	if tr.Status == "" {
		tr.Status = core.TaskRunStatusPending
	}

	_, err := s.db.ExecContext(ctx(),
		`INSERT INTO task_runs (`+taskRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.RunID, tr.TaskName, string(tr.Status), tr.Rows,
		formatTime(tr.StartedAt), formatTimePtr(tr.CompletedAt),
		tr.DurationMS, tr.MemoryDelta, nullString(tr.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record task run %s: %w", tr.TaskName, err)
	}
	return nil
}

// UpdateTaskRun stores the current status and measurements of a task run.
func (s *SQLiteStore) UpdateTaskRun(tr *core.TaskRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx(),
		`UPDATE task_runs
		 SET status = ?, rows = ?, started_at = ?, completed_at = ?, duration_ms = ?, memory_delta_bytes = ?, error = ?
		 WHERE id = ?`,
		string(tr.Status), tr.Rows, formatTime(tr.StartedAt), formatTimePtr(tr.CompletedAt),
		tr.DurationMS, tr.MemoryDelta, nullString(tr.Error), tr.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task run %s: %w", tr.TaskName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task run not found: %s", tr.ID)
	}
	return nil
}

// GetTaskRunsForRun returns the task runs of a run in start order.
func (s *SQLiteStore) GetTaskRunsForRun(runID string) ([]*core.TaskRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx(),
		`SELECT `+taskRunColumns+` FROM task_runs WHERE run_id = ? ORDER BY started_at, task_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.TaskRun
	for rows.Next() {
		var (
			tr          core.TaskRun
			status      string
			startedAt   string
			completedAt sql.NullString
			errMsg      sql.NullString
		)
		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.TaskName, &status, &tr.Rows,
			&startedAt, &completedAt, &tr.DurationMS, &tr.MemoryDelta, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		tr.Status = core.TaskRunStatus(status)
		if tr.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if tr.CompletedAt, err = parseTimePtr(completedAt); err != nil {
			return nil, err
		}
		tr.Error = errMsg.String
		out = append(out, &tr)
	}
	return out, rows.Err()
}
