// Package engine assembles a pipeline from configuration and executes its
// task graph level by level, recording every run in the state store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/lookpipe/internal/dag"
	"github.com/leapstack-labs/lookpipe/internal/monitor"
	"github.com/leapstack-labs/lookpipe/internal/pipeline"
	"github.com/leapstack-labs/lookpipe/internal/state"
	"github.com/leapstack-labs/lookpipe/pkg/adapter"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/leapstack-labs/lookpipe/pkg/extract"
	"github.com/leapstack-labs/lookpipe/pkg/frame"
)

// Hooks receives lifecycle callbacks. *monitor.Hook implements it.
type Hooks interface {
	BeforePipelineRun(info monitor.RunInfo)
	AfterPipelineRun(info monitor.RunInfo)
	OnPipelineError(info monitor.RunInfo, err error)
	BeforeTaskRun(task string)
	AfterTaskRun(task string) monitor.TaskStats
	OnTaskError(task string, err error)
}

// Config holds engine configuration.
type Config struct {
	Params    pipeline.Params
	Warehouse adapter.Config

	// StatePath is the SQLite run history. Empty disables history.
	StatePath string
	// WorkspacePath is the DuckDB file backing datasets. Empty keeps them
	// in memory.
	WorkspacePath string

	// OutputDir receives processed datasets as parquet when set.
	OutputDir string
	// PostgresDSN receives processed datasets as tables when set.
	PostgresDSN    string
	PostgresSchema string

	MemoryThresholdMB int

	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger

	// Extractor overrides the warehouse extractor.
	Extractor pipeline.Extractor
	// Store overrides the state store opened from StatePath.
	Store core.Store
	// Hooks overrides the monitoring hook.
	Hooks Hooks
}

// Engine runs one configured pipeline.
type Engine struct {
	logger  *slog.Logger
	graph   *dag.Graph[pipeline.NamedTask]
	catalog *pipeline.Catalog
	ws      *frame.Workspace
	store   core.Store
	hooks   Hooks
	closers []func() error
}

// New validates the parameters, opens the workspace, sinks and state
// store and builds the task graph.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{logger: logger}

	ex := cfg.Extractor
	if ex == nil {
		ex = extract.New(cfg.Warehouse, logger)
	}
	tasks := append(pipeline.BuildIngestion(cfg.Params, ex), pipeline.BuildProcessing(cfg.Params, logger)...)
	graph, err := pipeline.Build(tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	e.graph = graph

	ws, err := frame.NewWorkspace(ctx, cfg.WorkspacePath, logger)
	if err != nil {
		return nil, err
	}
	e.ws = ws
	e.closers = append(e.closers, ws.Close)

	var sinks []pipeline.Sink
	if cfg.OutputDir != "" {
		sinks = append(sinks, &pipeline.ParquetSink{Dir: cfg.OutputDir})
	}
	if cfg.PostgresDSN != "" {
		pg, err := pipeline.NewPostgresSink(ctx, cfg.PostgresDSN, cfg.PostgresSchema)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		sinks = append(sinks, pg)
		e.closers = append(e.closers, func() error { pg.Close(); return nil })
	}
	e.catalog = pipeline.NewCatalog(ws, logger, sinks...)

	switch {
	case cfg.Store != nil:
		e.store = cfg.Store
	case cfg.StatePath != "":
		store := state.NewSQLiteStore(logger)
		if err := store.Open(cfg.StatePath); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		e.closers = append(e.closers, store.Close)
		if err := store.InitSchema(); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to initialize state schema: %w", err)
		}
		e.store = store
	}

	e.hooks = cfg.Hooks
	if e.hooks == nil {
		e.hooks = monitor.NewHook(logger, cfg.MemoryThresholdMB)
	}

	logger.Debug("engine initialized", slog.Int("tasks", graph.Len()), slog.Int("sinks", len(sinks)))
	return e, nil
}

// Close releases everything New opened, in reverse order.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Graph returns the task graph.
func (e *Engine) Graph() *dag.Graph[pipeline.NamedTask] { return e.graph }

// Catalog returns the dataset catalog.
func (e *Engine) Catalog() *pipeline.Catalog { return e.catalog }

// Store returns the state store, or nil when history is disabled.
func (e *Engine) Store() core.Store { return e.store }

// Tasks returns every task in topological order.
func (e *Engine) Tasks() []pipeline.NamedTask {
	order, _ := e.graph.TopologicalSort()
	tasks := make([]pipeline.NamedTask, 0, len(order))
	for _, id := range order {
		t, _ := e.graph.Node(id)
		tasks = append(tasks, t)
	}
	return tasks
}
