// Package config loads lookpipe.yaml and maps it onto the pipeline,
// engine and warehouse configuration types.
package config

import (
	"time"

	"github.com/leapstack-labs/lookpipe/internal/pipeline"
)

// Config holds all CLI configuration options.
type Config struct {
	Env       string `koanf:"env"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	Output    string `koanf:"output"`

	StatePath string `koanf:"state_path"`
	// Workspace is the DuckDB file staging datasets during a run.
	// Empty keeps them in memory.
	Workspace string `koanf:"workspace"`

	Warehouse  WarehouseConfig  `koanf:"warehouse"`
	Ingestion  IngestionConfig  `koanf:"ingestion"`
	Processing ProcessingConfig `koanf:"processing"`
	Sink       SinkConfig       `koanf:"sink"`
	Run        RunConfig        `koanf:"run"`
	Monitoring MonitoringConfig `koanf:"monitoring"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
	// ProjectRoot anchors relative paths.
	ProjectRoot string `koanf:"-"`
}

// WarehouseConfig selects the source warehouse.
type WarehouseConfig struct {
	Type     string            `koanf:"type"`
	Project  string            `koanf:"project"`
	Dataset  string            `koanf:"dataset"`
	Location string            `koanf:"location"`
	Options  map[string]string `koanf:"options"`
}

// IngestionConfig lists the source tables and the extraction window.
type IngestionConfig struct {
	Credentials       string             `koanf:"credentials"`
	StartDate         string             `koanf:"start_date"`
	LookbackDays      int                `koanf:"lookback_days"`
	SafetyLimit       int64              `koanf:"safety_limit"`
	IncrementalTables []IncrementalTable `koanf:"incremental_tables"`
	SnapshotTables    []string           `koanf:"snapshot_tables"`
}

// IncrementalTable is one incremental source table.
type IncrementalTable struct {
	Name       string `koanf:"name"`
	DateColumn string `koanf:"date_column"`
}

// ProcessingConfig holds the target schemas. Schemas are read from the
// config file (processing.schemas) and from SchemasFile, in document order.
type ProcessingConfig struct {
	SchemasFile string                 `koanf:"schemas_file"`
	Schemas     []pipeline.TableSchema `koanf:"-"`
}

// SinkConfig selects where processed datasets are written.
type SinkConfig struct {
	OutputDir      string `koanf:"output_dir"`
	PostgresDSN    string `koanf:"postgres_dsn"`
	PostgresSchema string `koanf:"postgres_schema"`
}

// RunConfig tunes execution.
type RunConfig struct {
	Concurrency int           `koanf:"concurrency"`
	FailFast    bool          `koanf:"fail_fast"`
	Retries     int           `koanf:"retries"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
	// Schedule is a cron expression; run repeats on it when set.
	Schedule string `koanf:"schedule"`
}

// MonitoringConfig configures the resource monitoring hook.
type MonitoringConfig struct {
	MemoryAlertThresholdMB int `koanf:"memory_alert_threshold_mb"`
}

// Default configuration values.
const (
	DefaultConfigFile   = "lookpipe.yaml"
	DefaultStateFile    = ".lookpipe/state.db"
	DefaultEnv          = "dev"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultOutput       = "table"
	DefaultWarehouse    = "bigquery"
	DefaultDataset      = "bigquery-public-data.thelook_ecommerce"
	DefaultPGSchema     = "lookpipe"
	DefaultRetryDelay   = 5 * time.Second
	DefaultLookbackDays = 2
)
