package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/leapstack-labs/lookpipe/pkg/frame"
)

// Dataset naming used between the ingestion and processing stages.
const (
	RawPrefix       = "ingestion_raw_"
	ProcessedPrefix = "processing_intermediate_"
)

// RawDataset names the extracted dataset of table.
func RawDataset(table string) string { return RawPrefix + table }

// ProcessedDataset names the processed dataset of table.
func ProcessedDataset(table string) string { return ProcessedPrefix + table }

// Sink persists a dataset outside the workspace.
type Sink interface {
	Name() string
	Write(ctx context.Context, dataset string, lf *frame.LazyFrame) (int64, error)
}

// DatasetNotFoundError is returned when a task reads a dataset nothing
// has produced.
type DatasetNotFoundError struct {
	Name string
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset %q not found in catalog\nHint: run the task that produces it or select it with its upstream tasks", e.Name)
}

// Catalog holds the datasets of a run. Materialized frames are staged in
// the workspace; processed datasets stay lazy until a sink writes them.
// It is safe for concurrent use.
type Catalog struct {
	ws     *frame.Workspace
	sinks  []Sink
	logger *slog.Logger

	mu       sync.RWMutex
	datasets map[string]*frame.LazyFrame
}

// NewCatalog creates a catalog backed by ws. Every dataset passed to
// Publish is handed to each sink.
func NewCatalog(ws *frame.Workspace, logger *slog.Logger, sinks ...Sink) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		ws:       ws,
		sinks:    sinks,
		logger:   logger,
		datasets: make(map[string]*frame.LazyFrame),
	}
}

// Save stages a materialized frame under name.
func (c *Catalog) Save(ctx context.Context, name string, f *frame.Frame) (*frame.LazyFrame, error) {
	lf, err := c.ws.Register(ctx, name, f)
	if err != nil {
		return nil, fmt.Errorf("failed to save dataset %s: %w", name, err)
	}
	c.put(name, lf)
	c.logger.Debug("dataset saved", slog.String("dataset", name), slog.Int("rows", f.Height()))
	return lf, nil
}

// Publish writes a lazy dataset to every sink and then stores it under
// name. Without sinks the plan is counted so that it still executes. A
// dataset is only stored once every write succeeded. Returns the row count.
func (c *Catalog) Publish(ctx context.Context, name string, lf *frame.LazyFrame) (int64, error) {
	if len(c.sinks) == 0 {
		rows, err := lf.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to compute dataset %s: %w", name, err)
		}
		c.put(name, lf)
		return rows, nil
	}

	var rows int64
	for _, s := range c.sinks {
		n, err := s.Write(ctx, name, lf)
		if err != nil {
			return 0, fmt.Errorf("failed to write dataset %s to %s: %w", name, s.Name(), err)
		}
		c.logger.Debug("dataset written", slog.String("dataset", name), slog.String("sink", s.Name()), slog.Int64("rows", n))
		rows = n
	}
	c.put(name, lf)
	return rows, nil
}

func (c *Catalog) put(name string, lf *frame.LazyFrame) {
	c.mu.Lock()
	c.datasets[name] = lf
	c.mu.Unlock()
}

// Load returns the dataset stored under name.
func (c *Catalog) Load(name string) (*frame.LazyFrame, error) {
	c.mu.RLock()
	lf, ok := c.datasets[name]
	c.mu.RUnlock()
	if !ok {
		return nil, &DatasetNotFoundError{Name: name}
	}
	return lf, nil
}

// Exists reports whether name has been stored.
func (c *Catalog) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.datasets[name]
	return ok
}

// Names returns the stored dataset names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.datasets))
}
