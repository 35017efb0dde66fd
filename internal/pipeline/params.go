package pipeline

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/leapstack-labs/lookpipe/pkg/extract"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// IncrementalTable is a source table extracted by date window.
type IncrementalTable struct {
	Name       string
	DateColumn string
}

// TableSchema is the target schema for one processed table.
type TableSchema struct {
	Table  string
	Schema schema.TargetSchema
}

// Params holds everything the factory binds into tasks.
type Params struct {
	CredentialsPath string
	StartDate       string
	LookbackDays    int
	SafetyLimit     int64

	Incremental []IncrementalTable
	Snapshot    []string
	Schemas     []TableSchema
}

// Validate checks the parameters shared by every task. Identifier shape
// is checked again by the extractor when a task runs.
func (p Params) Validate() error {
	if len(p.Incremental)+len(p.Snapshot) > 0 && p.CredentialsPath == "" {
		return &core.ConfigurationError{Key: "ingestion.credentials", Reason: "a credentials path is required"}
	}
	if len(p.Incremental) > 0 {
		if _, err := time.Parse(extract.DateLayout, p.StartDate); err != nil {
			return &core.ConfigurationError{Key: "ingestion.start_date", Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", p.StartDate)}
		}
	}
	if p.LookbackDays < 0 {
		return &core.ConfigurationError{Key: "ingestion.lookback_days", Reason: "must not be negative"}
	}
	if len(p.Snapshot) > 0 && p.SafetyLimit <= 0 {
		return &core.ConfigurationError{Key: "ingestion.safety_limit", Reason: "must be positive"}
	}

	seen := make(map[string]string)
	for _, t := range p.Incremental {
		if t.DateColumn == "" {
			return &core.ConfigurationError{Key: "ingestion.incremental_tables." + t.Name, Reason: "date column is required"}
		}
		seen[t.Name] = "incremental"
	}
	for _, name := range p.Snapshot {
		if kind, dup := seen[name]; dup {
			return &core.ConfigurationError{Key: "ingestion.snapshot_tables", Reason: fmt.Sprintf("table %q is already listed as %s", name, kind)}
		}
		seen[name] = "snapshot"
	}

	for _, s := range p.Schemas {
		if _, err := s.Schema.Resolve(); err != nil {
			return fmt.Errorf("processing.schemas.%s: %w", s.Table, err)
		}
	}
	return nil
}
