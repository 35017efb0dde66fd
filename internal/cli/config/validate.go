package config

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/lookpipe/internal/engine"
	"github.com/leapstack-labs/lookpipe/internal/pipeline"
	"github.com/leapstack-labs/lookpipe/pkg/adapter"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/robfig/cron/v3"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
	outputs    = []string{"table", "markdown", "json"}
)

// Validate checks the settings the CLI owns. Pipeline parameters are
// checked by Params().Validate().
func (c *Config) Validate() error {
	if !slices.Contains(logLevels, c.LogLevel) {
		return &core.ConfigurationError{Key: "log_level", Reason: fmt.Sprintf("%q is not one of %v", c.LogLevel, logLevels)}
	}
	if !slices.Contains(logFormats, c.LogFormat) {
		return &core.ConfigurationError{Key: "log_format", Reason: fmt.Sprintf("%q is not one of %v", c.LogFormat, logFormats)}
	}
	if !slices.Contains(outputs, c.Output) {
		return &core.ConfigurationError{Key: "output", Reason: fmt.Sprintf("%q is not one of %v", c.Output, outputs)}
	}
	if c.Warehouse.Type == "" {
		return &core.ConfigurationError{Key: "warehouse.type", Reason: "a warehouse type is required"}
	}
	if !adapter.IsRegistered(c.Warehouse.Type) {
		return &core.ConfigurationError{Key: "warehouse.type", Err: &adapter.UnknownAdapterError{Type: c.Warehouse.Type, Available: adapter.ListAdapters()}}
	}
	if c.Run.Concurrency < 0 {
		return &core.ConfigurationError{Key: "run.concurrency", Reason: "must not be negative"}
	}
	if c.Run.Retries < 0 {
		return &core.ConfigurationError{Key: "run.retries", Reason: "must not be negative"}
	}
	if c.Run.Schedule != "" {
		if _, err := cron.ParseStandard(c.Run.Schedule); err != nil {
			return &core.ConfigurationError{Key: "run.schedule", Err: err}
		}
	}
	if c.Monitoring.MemoryAlertThresholdMB < 0 {
		return &core.ConfigurationError{Key: "monitoring.memory_alert_threshold_mb", Reason: "must not be negative"}
	}
	return c.Params().Validate()
}

// Params maps the ingestion and processing settings onto pipeline parameters.
func (c *Config) Params() pipeline.Params {
	p := pipeline.Params{
		CredentialsPath: c.Ingestion.Credentials,
		StartDate:       c.Ingestion.StartDate,
		LookbackDays:    c.Ingestion.LookbackDays,
		SafetyLimit:     c.Ingestion.SafetyLimit,
		Snapshot:        slices.Clone(c.Ingestion.SnapshotTables),
		Schemas:         slices.Clone(c.Processing.Schemas),
	}
	for _, t := range c.Ingestion.IncrementalTables {
		p.Incremental = append(p.Incremental, pipeline.IncrementalTable{Name: t.Name, DateColumn: t.DateColumn})
	}
	return p
}

// AdapterConfig returns the warehouse connection settings.
func (c *Config) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:            c.Warehouse.Type,
		CredentialsPath: c.Ingestion.Credentials,
		Project:         c.Warehouse.Project,
		Dataset:         c.Warehouse.Dataset,
		Location:        c.Warehouse.Location,
		Options:         c.Warehouse.Options,
	}
}

// EngineConfig returns the engine settings.
func (c *Config) EngineConfig(logger *slog.Logger) engine.Config {
	return engine.Config{
		Params:            c.Params(),
		Warehouse:         c.AdapterConfig(),
		StatePath:         c.StatePath,
		WorkspacePath:     c.Workspace,
		OutputDir:         c.Sink.OutputDir,
		PostgresDSN:       c.Sink.PostgresDSN,
		PostgresSchema:    c.Sink.PostgresSchema,
		MemoryThresholdMB: c.Monitoring.MemoryAlertThresholdMB,
		Logger:            logger,
	}
}

// RunOptions returns the run settings merged with per-invocation selection.
func (c *Config) RunOptions(selectTasks, tags []string, downstream bool) engine.RunOptions {
	return engine.RunOptions{
		Pipeline:    "__default__",
		Env:         c.Env,
		Select:      selectTasks,
		Tags:        tags,
		Downstream:  downstream,
		FailFast:    c.Run.FailFast,
		Concurrency: c.Run.Concurrency,
		Retries:     c.Run.Retries,
		RetryDelay:  c.Run.RetryDelay,
	}
}
