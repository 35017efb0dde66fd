// Package pipeline turns a validated configuration into named tasks that
// move datasets through a catalog: one extraction task per source table
// and one processing task per configured target schema.
package pipeline

import (
	"context"
	"slices"
)

// RunFunc executes a task against the catalog and returns the number of
// rows it produced.
type RunFunc func(ctx context.Context, cat *Catalog) (int64, error)

// NamedTask is a unit of work with fixed parameters bound at build time.
type NamedTask struct {
	// Name identifies the task in the graph, logs and run history.
	Name string
	// Label is a human readable description.
	Label string
	Tags  []string
	// Inputs and Outputs are catalog dataset names.
	Inputs  []string
	Outputs []string
	Run     RunFunc
}

// HasTag reports whether the task carries tag.
func (t NamedTask) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// HasAnyTag reports whether the task carries at least one of tags.
func (t NamedTask) HasAnyTag(tags ...string) bool {
	for _, tag := range tags {
		if t.HasTag(tag) {
			return true
		}
	}
	return false
}
