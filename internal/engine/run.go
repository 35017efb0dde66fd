package engine

// run.go - task selection and level-by-level execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/lookpipe/internal/monitor"
	"github.com/leapstack-labs/lookpipe/internal/pipeline"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the tasks running at once within a level.
const DefaultConcurrency = 4

// RunOptions selects and tunes one run.
type RunOptions struct {
	// Pipeline is the name recorded in run history.
	Pipeline string
	Env      string

	// Select restricts the run to these task names.
	Select []string
	// Tags restricts the run to tasks carrying any of these tags.
	Tags []string
	// Downstream adds every dependent of the selected tasks.
	Downstream bool

	// FailFast cancels the run on the first failed task. Otherwise
	// independent tasks keep running and only dependents are skipped.
	FailFast    bool
	Concurrency int

	// Retries re-runs a task failing with an unclassified error, such as
	// a network failure. Typed pipeline errors are never retried.
	Retries    int
	RetryDelay time.Duration
}

// RunResult is the outcome of a run.
type RunResult struct {
	Run   *core.Run       `json:"run"`
	Tasks []*core.TaskRun `json:"tasks"`
}

// Failed returns the task runs that failed.
func (r *RunResult) Failed() []*core.TaskRun {
	var out []*core.TaskRun
	for _, t := range r.Tasks {
		if t.Status == core.TaskRunStatusFailed {
			out = append(out, t)
		}
	}
	return out
}

// SelectTasks resolves the task names a run with opts executes.
func (e *Engine) SelectTasks(opts RunOptions) ([]string, error) {
	ids := e.graph.IDs()

	if len(opts.Select) > 0 {
		for _, name := range opts.Select {
			if _, ok := e.graph.Node(name); !ok {
				return nil, fmt.Errorf("unknown task %q", name)
			}
		}
		ids = slices.Clone(opts.Select)
	}

	if len(opts.Tags) > 0 {
		ids = slices.DeleteFunc(ids, func(id string) bool {
			t, _ := e.graph.Node(id)
			return !t.HasAnyTag(opts.Tags...)
		})
	}

	if opts.Downstream {
		ids = e.graph.Downstream(ids...)
	}

	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil, errors.New("no tasks match the selection")
	}
	return ids, nil
}

// Run executes the selected tasks. Tasks in the same level run
// concurrently; a task whose upstream failed or was skipped is skipped.
// The returned error joins every task failure.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if opts.Pipeline == "" {
		opts.Pipeline = "__default__"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	selected, err := e.SelectTasks(opts)
	if err != nil {
		return nil, err
	}
	sub := e.graph.Subgraph(selected)
	levels, err := sub.Levels()
	if err != nil {
		return nil, err
	}

	run, err := e.createRun(opts.Pipeline)
	if err != nil {
		return nil, err
	}
	info := monitor.RunInfo{RunID: run.ID, Pipeline: opts.Pipeline, Env: opts.Env, Tags: opts.Tags}
	e.logger.Info("starting run", slog.String("run_id", run.ID), slog.Int("tasks", len(selected)), slog.Int("levels", len(levels)))
	e.hooks.BeforePipelineRun(info)

	x := &execution{
		engine:  e,
		opts:    opts,
		runID:   run.ID,
		results: make(map[string]*core.TaskRun, len(selected)),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, level := range levels {
		g, gctx := errgroup.WithContext(runCtx)
		g.SetLimit(opts.Concurrency)

		for _, id := range level {
			task, _ := sub.Node(id)
			if blocker := x.blockedBy(sub.Parents(id)); blocker != "" || runCtx.Err() != nil {
				reason := "run cancelled"
				if blocker != "" {
					reason = fmt.Sprintf("upstream %s did not succeed", blocker)
				}
				x.skip(task, reason)
				continue
			}
			g.Go(func() error {
				err := x.execute(gctx, task)
				if err != nil && opts.FailFast {
					return err
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			cancel()
		}
	}

	result := &RunResult{Tasks: x.ordered(levels)}
	runErr := x.err()

	status, msg := core.RunStatusCompleted, ""
	if runErr != nil {
		status, msg = core.RunStatusFailed, runErr.Error()
		if ctx.Err() != nil {
			status = core.RunStatusCancelled
		}
	}
	result.Run = e.completeRun(run, status, msg)

	if runErr != nil {
		e.hooks.OnPipelineError(info, runErr)
		e.logger.Info("run failed", slog.String("run_id", run.ID), slog.Int("failed_tasks", len(result.Failed())))
		return result, runErr
	}
	e.hooks.AfterPipelineRun(info)
	e.logger.Info("run completed", slog.String("run_id", run.ID))
	return result, nil
}

func (e *Engine) createRun(pipelineName string) (*core.Run, error) {
	if e.store == nil {
		return &core.Run{
			ID:        uuid.NewString(),
			Pipeline:  pipelineName,
			Status:    core.RunStatusRunning,
			StartedAt: time.Now().UTC(),
		}, nil
	}
	run, err := e.store.CreateRun(pipelineName)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (e *Engine) completeRun(run *core.Run, status core.RunStatus, msg string) *core.Run {
	if e.store == nil {
		now := time.Now().UTC()
		run.Status, run.CompletedAt, run.Error = status, &now, msg
		return run
	}
	if err := e.store.CompleteRun(run.ID, status, msg); err != nil {
		e.logger.Warn("failed to complete run", slog.String("run_id", run.ID), slog.String("error", err.Error()))
	}
	if stored, err := e.store.GetRun(run.ID); err == nil {
		return stored
	}
	return run
}

// execution tracks the task runs of one run.
type execution struct {
	engine *Engine
	opts   RunOptions
	runID  string

	mu      sync.Mutex
	results map[string]*core.TaskRun
	errs    []error
}

func (x *execution) blockedBy(parents []string) string {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, p := range parents {
		if tr, ok := x.results[p]; !ok || tr.Status != core.TaskRunStatusSuccess {
			return p
		}
	}
	return ""
}

func (x *execution) record(tr *core.TaskRun, insert bool) {
	x.mu.Lock()
	x.results[tr.TaskName] = tr
	x.mu.Unlock()

	store := x.engine.store
	if store == nil {
		return
	}
	var err error
	if insert {
		err = store.RecordTaskRun(tr)
	} else {
		err = store.UpdateTaskRun(tr)
	}
	if err != nil {
		x.engine.logger.Warn("failed to record task run", slog.String("task", tr.TaskName), slog.String("error", err.Error()))
	}
}

func (x *execution) skip(task pipeline.NamedTask, reason string) {
	now := time.Now().UTC()
	x.record(&core.TaskRun{
		ID:          uuid.NewString(),
		RunID:       x.runID,
		TaskName:    task.Name,
		Status:      core.TaskRunStatusSkipped,
		StartedAt:   now,
		CompletedAt: &now,
		Error:       reason,
	}, true)
	x.engine.logger.Info("task skipped", slog.String("task", task.Name), slog.String("reason", reason))
}

func (x *execution) execute(ctx context.Context, task pipeline.NamedTask) error {
	tr := &core.TaskRun{
		ID:        uuid.NewString(),
		RunID:     x.runID,
		TaskName:  task.Name,
		Status:    core.TaskRunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	x.record(tr, true)

	hooks := x.engine.hooks
	hooks.BeforeTaskRun(task.Name)
	rows, err := x.runWithRetry(ctx, task)

	done := time.Now().UTC()
	tr.CompletedAt = &done
	tr.DurationMS = done.Sub(tr.StartedAt).Milliseconds()

	if err != nil {
		hooks.OnTaskError(task.Name, err)
		tr.Status = core.TaskRunStatusFailed
		tr.Error = err.Error()
		x.record(tr, false)

		x.mu.Lock()
		x.errs = append(x.errs, fmt.Errorf("%s: %w", task.Name, err))
		x.mu.Unlock()
		return err
	}

	stats := hooks.AfterTaskRun(task.Name)
	tr.Status = core.TaskRunStatusSuccess
	tr.Rows = rows
	tr.MemoryDelta = stats.DeltaBytes
	x.record(tr, false)
	return nil
}

func (x *execution) runWithRetry(ctx context.Context, task pipeline.NamedTask) (int64, error) {
	if x.opts.Retries <= 0 {
		return task.Run(ctx, x.engine.catalog)
	}

	delay := x.opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	backoff := retry.WithMaxRetries(uint64(x.opts.Retries), retry.NewExponential(delay)) //nolint:gosec // checked positive

	var rows int64
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		n, err := task.Run(ctx, x.engine.catalog)
		if err == nil {
			rows = n
			return nil
		}
		if !Retryable(err) {
			return err
		}
		x.engine.logger.Warn("task attempt failed, retrying",
			slog.String("task", task.Name), slog.Int("attempt", attempt), slog.String("error", err.Error()))
		return retry.RetryableError(err)
	})
	return rows, err
}

// Retryable reports whether err may succeed on another attempt. Pipeline
// errors that need an operator to change configuration or data are not.
func Retryable(err error) bool {
	var (
		security    *core.SecurityError
		credentials *core.CredentialsError
		config      *core.ConfigurationError
		schemaErr   *core.SchemaError
		volume      *core.VolumeError
		notFound    *pipeline.DatasetNotFoundError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.As(err, &security), errors.As(err, &credentials), errors.As(err, &config),
		errors.As(err, &schemaErr), errors.As(err, &volume), errors.As(err, &notFound):
		return false
	}
	return true
}

func (x *execution) err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return errors.Join(x.errs...)
}

// ordered returns task runs in level order.
func (x *execution) ordered(levels [][]string) []*core.TaskRun {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []*core.TaskRun
	for _, level := range levels {
		for _, id := range level {
			if tr, ok := x.results[id]; ok {
				out = append(out, tr)
			}
		}
	}
	return out
}
