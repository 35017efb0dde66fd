package core

import "time"

// Store defines the interface for run history operations.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(pipeline string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun(pipeline string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	// Task run operations
	RecordTaskRun(taskRun *TaskRun) error
	UpdateTaskRun(taskRun *TaskRun) error
	GetTaskRunsForRun(runID string) ([]*TaskRun, error)
}

// RunStatus represents the status of a pipeline run.
type RunStatus string

// RunStatus values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// TaskRunStatus represents the status of a single task execution.
type TaskRunStatus string

// TaskRunStatus values.
const (
	TaskRunStatusPending TaskRunStatus = "pending"
	TaskRunStatusRunning TaskRunStatus = "running"
	TaskRunStatusSuccess TaskRunStatus = "success"
	TaskRunStatusFailed  TaskRunStatus = "failed"
	TaskRunStatusSkipped TaskRunStatus = "skipped"
)

// Run represents a pipeline execution run.
type Run struct {
	ID          string     `json:"id"`
	Pipeline    string     `json:"pipeline"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// TaskRun represents the execution of a single task within a run.
type TaskRun struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	TaskName    string        `json:"task_name"`
	Status      TaskRunStatus `json:"status"`
	Rows        int64         `json:"rows"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	DurationMS  int64         `json:"duration_ms"`
	MemoryDelta int64         `json:"memory_delta_bytes"`
	Error       string        `json:"error,omitempty"`
}
