package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/lookpipe/internal/dag"
	"github.com/leapstack-labs/lookpipe/pkg/frame"
	"github.com/leapstack-labs/lookpipe/pkg/transform"
	"github.com/samber/lo"
)

// Stage tags.
const (
	TagIngestion   = "ingestion"
	TagIncremental = "incremental"
	TagSnapshot    = "snapshot"
	TagProcessing  = "processing"
)

// Extractor reads source tables. *extract.Extractor implements it.
type Extractor interface {
	ExtractIncremental(ctx context.Context, table, dateColumn, credentialsPath, startDate string, lookbackDays int) (*frame.Frame, error)
	ExtractSnapshot(ctx context.Context, table, credentialsPath string, safetyLimit int64) (*frame.Frame, error)
}

// ExtractTaskName names the extraction task of table.
func ExtractTaskName(table string) string { return "extract_" + table }

// ProcessTaskName names the processing task of table.
func ProcessTaskName(table string) string { return "process_" + table }

// BuildIngestion returns one extraction task per configured source table,
// incremental tables first, each in configuration order.
func BuildIngestion(p Params, ex Extractor) []NamedTask {
	tasks := make([]NamedTask, 0, len(p.Incremental)+len(p.Snapshot))

	for _, t := range p.Incremental {
		table, dateColumn := t.Name, t.DateColumn
		tasks = append(tasks, NamedTask{
			Name:    ExtractTaskName(table),
			Label:   fmt.Sprintf("extract %s incrementally by %s", table, dateColumn),
			Tags:    []string{TagIngestion, TagIncremental, table},
			Outputs: []string{RawDataset(table)},
			Run: func(ctx context.Context, cat *Catalog) (int64, error) {
				f, err := ex.ExtractIncremental(ctx, table, dateColumn, p.CredentialsPath, p.StartDate, p.LookbackDays)
				if err != nil {
					return 0, err
				}
				if _, err := cat.Save(ctx, RawDataset(table), f); err != nil {
					return 0, err
				}
				return int64(f.Height()), nil
			},
		})
	}

	for _, name := range p.Snapshot {
		table := name
		tasks = append(tasks, NamedTask{
			Name:    ExtractTaskName(table),
			Label:   fmt.Sprintf("extract %s as a snapshot", table),
			Tags:    []string{TagIngestion, TagSnapshot, table},
			Outputs: []string{RawDataset(table)},
			Run: func(ctx context.Context, cat *Catalog) (int64, error) {
				f, err := ex.ExtractSnapshot(ctx, table, p.CredentialsPath, p.SafetyLimit)
				if err != nil {
					return 0, err
				}
				if _, err := cat.Save(ctx, RawDataset(table), f); err != nil {
					return 0, err
				}
				return int64(f.Height()), nil
			},
		})
	}

	return tasks
}

// BuildProcessing returns one processing task per target schema.
func BuildProcessing(p Params, logger *slog.Logger) []NamedTask {
	tasks := make([]NamedTask, 0, len(p.Schemas))
	for _, s := range p.Schemas {
		table, target := s.Table, s.Schema
		tasks = append(tasks, NamedTask{
			Name:    ProcessTaskName(table),
			Label:   fmt.Sprintf("conform %s to %d columns", table, len(target)),
			Tags:    []string{TagProcessing, table},
			Inputs:  []string{RawDataset(table)},
			Outputs: []string{ProcessedDataset(table)},
			Run: func(ctx context.Context, cat *Catalog) (int64, error) {
				raw, err := cat.Load(RawDataset(table))
				if err != nil {
					return 0, err
				}
				out, err := transform.ProcessTable(raw, target, table, logger)
				if err != nil {
					return 0, err
				}
				return cat.Publish(ctx, ProcessedDataset(table), out)
			},
		})
	}
	return tasks
}

// Build wires tasks into a graph. A task depends on the task producing
// each of its inputs; inputs no task produces are external and must be in
// the catalog when the task runs.
func Build(tasks []NamedTask) (*dag.Graph[NamedTask], error) {
	g := dag.New[NamedTask]()
	producers := make(map[string]string)

	for _, t := range tasks {
		if _, dup := g.Node(t.Name); dup {
			return nil, fmt.Errorf("duplicate task %q", t.Name)
		}
		g.AddNode(t.Name, t)
		for _, out := range t.Outputs {
			if other, ok := producers[out]; ok {
				return nil, fmt.Errorf("dataset %q is produced by both %s and %s", out, other, t.Name)
			}
			producers[out] = t.Name
		}
	}

	for _, t := range tasks {
		for _, in := range t.Inputs {
			if producer, ok := producers[in]; ok {
				if err := g.AddEdge(producer, t.Name); err != nil {
					return nil, err
				}
			}
		}
	}

	if cycle := g.FindCycle(); cycle != nil {
		return nil, &dag.CycleError{Path: cycle}
	}
	return g, nil
}

// ExternalInputs returns the inputs of tasks that no task in the list
// produces, sorted and without duplicates.
func ExternalInputs(tasks []NamedTask) []string {
	produced := lo.FlatMap(tasks, func(t NamedTask, _ int) []string { return t.Outputs })
	inputs := lo.FlatMap(tasks, func(t NamedTask, _ int) []string { return t.Inputs })
	external := lo.Uniq(lo.Without(inputs, produced...))
	slices.Sort(external)
	return external
}
