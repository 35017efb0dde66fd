package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/lookpipe/internal/pipeline"
	"github.com/leapstack-labs/lookpipe/internal/state"
	"github.com/leapstack-labs/lookpipe/internal/testutil"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/leapstack-labs/lookpipe/pkg/frame"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExtractor returns a fresh frame per table, or the errors
// queued for that table first.
type scriptedExtractor struct {
	mu    sync.Mutex
	errs  map[string][]error
	calls map[string]int
}

func newScriptedExtractor() *scriptedExtractor {
	return &scriptedExtractor{errs: map[string][]error{}, calls: map[string]int{}}
}

func (s *scriptedExtractor) fail(table string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[table] = append(s.errs[table], errs...)
}

func (s *scriptedExtractor) callCount(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[table]
}

func (s *scriptedExtractor) next(table string) (*frame.Frame, error) {
	s.mu.Lock()
	s.calls[table]++
	if queued := s.errs[table]; len(queued) > 0 {
		s.errs[table] = queued[1:]
		s.mu.Unlock()
		return nil, queued[0]
	}
	s.mu.Unlock()

	return frame.FromRows(
		[]frame.Field{{Name: "id", Type: schema.Int64}, {Name: "name", Type: schema.String}},
		[][]any{{int64(1), "a"}, {int64(2), "b"}, {int64(2), "b"}},
	)
}

func (s *scriptedExtractor) ExtractIncremental(_ context.Context, table, _, _, _ string, _ int) (*frame.Frame, error) {
	return s.next(table)
}

func (s *scriptedExtractor) ExtractSnapshot(_ context.Context, table, _ string, _ int64) (*frame.Frame, error) {
	return s.next(table)
}

func testParams() pipeline.Params {
	target := schema.TargetSchema{{Name: "id", Type: "UInt32"}, {Name: "name", Type: "String"}}
	return pipeline.Params{
		CredentialsPath: "key.json",
		StartDate:       "2024-01-01",
		LookbackDays:    2,
		SafetyLimit:     1000,
		Incremental:     []pipeline.IncrementalTable{{Name: "orders", DateColumn: "created_at"}},
		Snapshot:        []string{"users"},
		Schemas: []pipeline.TableSchema{
			{Table: "orders", Schema: target},
			{Table: "users", Schema: target},
		},
	}
}

func newTestEngine(t *testing.T, ex pipeline.Extractor) (*Engine, *state.SQLiteStore) {
	t.Helper()
	logger := testutil.NewTestLogger(t)

	store := state.NewSQLiteStore(logger)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	e, err := New(context.Background(), Config{
		Params:    testParams(),
		Logger:    logger,
		Extractor: ex,
		Store:     store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, store
}

func statuses(res *RunResult) map[string]core.TaskRunStatus {
	out := make(map[string]core.TaskRunStatus)
	for _, tr := range res.Tasks {
		out[tr.TaskName] = tr.Status
	}
	return out
}

func TestEngine_Tasks(t *testing.T) {
	e, _ := newTestEngine(t, newScriptedExtractor())

	var names []string
	for _, task := range e.Tasks() {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{"extract_orders", "extract_users", "process_orders", "process_users"}, names)
}

func TestNew_InvalidParams(t *testing.T) {
	p := testParams()
	p.SafetyLimit = -5
	_, err := New(context.Background(), Config{Params: p, Extractor: newScriptedExtractor()})

	var cfgErr *core.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRun_Success(t *testing.T) {
	e, store := newTestEngine(t, newScriptedExtractor())

	res, err := e.Run(context.Background(), RunOptions{Pipeline: "all"})
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusCompleted, res.Run.Status)
	assert.Equal(t, map[string]core.TaskRunStatus{
		"extract_orders": core.TaskRunStatusSuccess,
		"extract_users":  core.TaskRunStatusSuccess,
		"process_orders": core.TaskRunStatusSuccess,
		"process_users":  core.TaskRunStatusSuccess,
	}, statuses(res))

	rows := map[string]int64{}
	for _, tr := range res.Tasks {
		rows[tr.TaskName] = tr.Rows
	}
	assert.Equal(t, int64(3), rows["extract_orders"])
	assert.Equal(t, int64(2), rows["process_orders"], "duplicate ids collapse")

	assert.True(t, e.Catalog().Exists("processing_intermediate_users"))

	stored, err := store.GetTaskRunsForRun(res.Run.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 4)
	for _, tr := range stored {
		assert.Equal(t, core.TaskRunStatusSuccess, tr.Status, tr.TaskName)
		assert.NotNil(t, tr.CompletedAt)
	}

	latest, err := store.GetLatestRun("all")
	require.NoError(t, err)
	assert.Equal(t, res.Run.ID, latest.ID)
}

func TestRun_FailureSkipsDownstreamOnly(t *testing.T) {
	ex := newScriptedExtractor()
	ex.fail("users", &core.VolumeError{Table: "users", Rows: 5000, Limit: 1000})
	e, store := newTestEngine(t, ex)

	res, err := e.Run(context.Background(), RunOptions{Pipeline: "all"})
	require.Error(t, err)

	var volErr *core.VolumeError
	assert.True(t, errors.As(err, &volErr))
	assert.Contains(t, err.Error(), "extract_users")

	assert.Equal(t, map[string]core.TaskRunStatus{
		"extract_orders": core.TaskRunStatusSuccess,
		"extract_users":  core.TaskRunStatusFailed,
		"process_orders": core.TaskRunStatusSuccess,
		"process_users":  core.TaskRunStatusSkipped,
	}, statuses(res))
	assert.Equal(t, core.RunStatusFailed, res.Run.Status)
	require.Len(t, res.Failed(), 1)

	run, err := store.GetRun(res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "safety limit")
}

func TestRun_FailFast(t *testing.T) {
	ex := newScriptedExtractor()
	ex.fail("orders", &core.SecurityError{Identifier: "orders;"})
	e, _ := newTestEngine(t, ex)

	res, err := e.Run(context.Background(), RunOptions{FailFast: true, Concurrency: 1})
	require.Error(t, err)

	st := statuses(res)
	assert.Equal(t, core.TaskRunStatusFailed, st["extract_orders"])
	assert.Equal(t, core.TaskRunStatusSkipped, st["process_orders"])
	assert.Equal(t, core.TaskRunStatusSkipped, st["process_users"], "later levels do not start after a failure")
}

func TestRun_SelectByTags(t *testing.T) {
	ex := newScriptedExtractor()
	e, _ := newTestEngine(t, ex)

	res, err := e.Run(context.Background(), RunOptions{Tags: []string{pipeline.TagIngestion}})
	require.NoError(t, err)
	assert.Len(t, res.Tasks, 2)
	assert.True(t, e.Catalog().Exists("ingestion_raw_orders"))
	assert.False(t, e.Catalog().Exists("processing_intermediate_orders"))
}

func TestSelectTasks(t *testing.T) {
	e, _ := newTestEngine(t, newScriptedExtractor())

	ids, err := e.SelectTasks(RunOptions{Select: []string{"extract_users"}, Downstream: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"extract_users", "process_users"}, ids)

	ids, err = e.SelectTasks(RunOptions{Tags: []string{"orders"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"extract_orders", "process_orders"}, ids)

	_, err = e.SelectTasks(RunOptions{Select: []string{"extract_nothing"}})
	assert.ErrorContains(t, err, "unknown task")

	_, err = e.SelectTasks(RunOptions{Tags: []string{"no-such-tag"}})
	assert.ErrorContains(t, err, "no tasks match")
}

func TestRun_ProcessingWithoutUpstream(t *testing.T) {
	e, _ := newTestEngine(t, newScriptedExtractor())

	_, err := e.Run(context.Background(), RunOptions{Select: []string{"process_orders"}})
	var notFound *pipeline.DatasetNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	ex := newScriptedExtractor()
	ex.fail("orders", errors.New("connection reset by peer"), errors.New("503 backend error"))
	e, _ := newTestEngine(t, ex)

	res, err := e.Run(context.Background(), RunOptions{
		Select:     []string{"extract_orders"},
		Retries:    3,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, core.TaskRunStatusSuccess, statuses(res)["extract_orders"])
	assert.Equal(t, 3, ex.callCount("orders"))
}

func TestRun_TypedErrorsAreNotRetried(t *testing.T) {
	ex := newScriptedExtractor()
	ex.fail("users", &core.CredentialsError{Path: "key.json"})
	e, _ := newTestEngine(t, ex)

	_, err := e.Run(context.Background(), RunOptions{
		Select:     []string{"extract_users"},
		Retries:    3,
		RetryDelay: time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, 1, ex.callCount("users"))
}

func TestRun_WithoutStore(t *testing.T) {
	e, err := New(context.Background(), Config{Params: testParams(), Extractor: newScriptedExtractor()})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	res, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Nil(t, e.Store())
	assert.Equal(t, "__default__", res.Run.Pipeline)
	assert.Equal(t, core.RunStatusCompleted, res.Run.Status)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("timeout"), true},
		{fmt.Errorf("wrapped: %w", errors.New("EOF")), true},
		{context.Canceled, false},
		{&core.SecurityError{}, false},
		{&core.CredentialsError{}, false},
		{&core.ConfigurationError{}, false},
		{fmt.Errorf("process_orders: %w", &core.SchemaError{}), false},
		{&core.VolumeError{}, false},
		{&pipeline.DatasetNotFoundError{}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Retryable(tt.err), "%v", tt.err)
	}
}
