package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/leapstack-labs/lookpipe/internal/cli/config"
	"github.com/leapstack-labs/lookpipe/internal/engine"
	"github.com/leapstack-labs/lookpipe/internal/monitor"
	"github.com/leapstack-labs/lookpipe/pkg/extract"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// generateSchemaDocs generates the configuration and column type references.
func generateSchemaDocs(outDir string) error {
	log.Printf("Generating schema docs to %s", outDir)

	// Create output directory
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := generateConfigurationDoc(outDir); err != nil {
		return fmt.Errorf("failed to generate configuration.md: %w", err)
	}
	log.Printf("  Generated configuration.md")

	if err := generateTypesDoc(outDir); err != nil {
		return fmt.Errorf("failed to generate types.md: %w", err)
	}
	log.Printf("  Generated types.md")

	return nil
}

// ConfigField represents a configuration field definition.
type ConfigField struct {
	Name        string
	Type        string
	Default     string
	Description string
	Section     string
}

// getConfigSchema returns the configuration schema definition.
// This is based on internal/cli/config/types.go.
func getConfigSchema() []ConfigField {
	itoa := strconv.Itoa
	return []ConfigField{
		{Name: "env", Type: "string", Default: config.DefaultEnv, Description: "Environment name recorded with each run", Section: "general"},
		{Name: "log_level", Type: "string", Default: config.DefaultLogLevel, Description: "debug, info, warn or error", Section: "general"},
		{Name: "log_format", Type: "string", Default: config.DefaultLogFormat, Description: "text or json", Section: "general"},
		{Name: "output", Type: "string", Default: config.DefaultOutput, Description: "Command output: table, markdown or json", Section: "general"},
		{Name: "state_path", Type: "string", Default: config.DefaultStateFile, Description: "SQLite database holding run history", Section: "general"},
		{Name: "workspace", Type: "string", Description: "DuckDB file backing the dataset catalog; empty keeps it in memory", Section: "general"},

		{Name: "type", Type: "string", Default: config.DefaultWarehouse, Description: "bigquery, postgres or duckdb", Section: "warehouse"},
		{Name: "project", Type: "string", Description: "BigQuery billing project; defaults to the credentials project", Section: "warehouse"},
		{Name: "dataset", Type: "string", Default: config.DefaultDataset, Description: "Dataset or schema qualifying source tables", Section: "warehouse"},
		{Name: "location", Type: "string", Description: "BigQuery job location", Section: "warehouse"},
		{Name: "options", Type: "map[string]string", Description: "Adapter-specific options", Section: "warehouse"},

		{Name: "credentials", Type: "string", Description: "Service account JSON (BigQuery) or YAML connection file (postgres, duckdb)", Section: "ingestion"},
		{Name: "start_date", Type: "string", Description: "First day of the incremental window, YYYY-MM-DD", Section: "ingestion"},
		{Name: "lookback_days", Type: "int", Default: itoa(config.DefaultLookbackDays), Description: "The window ends this many days before today, exclusive", Section: "ingestion"},
		{Name: "safety_limit", Type: "int", Default: strconv.FormatInt(extract.DefaultSafetyLimit, 10), Description: "Maximum rows a snapshot table may hold", Section: "ingestion"},
		{Name: "incremental_tables", Type: "list", Description: "Tables read by date window, each with name and date_column", Section: "ingestion"},
		{Name: "snapshot_tables", Type: "list", Description: "Tables read whole after a row count check", Section: "ingestion"},

		{Name: "schemas", Type: "map", Description: "Target schema per table: column name to type descriptor, in order", Section: "processing"},
		{Name: "schemas_file", Type: "string", Description: "YAML file holding more target schemas", Section: "processing"},

		{Name: "output_dir", Type: "string", Description: "Directory receiving processed datasets as parquet", Section: "sink"},
		{Name: "postgres_dsn", Type: "string", Description: "Postgres database receiving processed datasets", Section: "sink"},
		{Name: "postgres_schema", Type: "string", Default: config.DefaultPGSchema, Description: "Schema of the Postgres sink tables", Section: "sink"},

		{Name: "concurrency", Type: "int", Default: itoa(engine.DefaultConcurrency), Description: "Maximum tasks running at once", Section: "run"},
		{Name: "fail_fast", Type: "bool", Default: "false", Description: "Stop the run on the first failed task", Section: "run"},
		{Name: "retries", Type: "int", Default: "0", Description: "Retries for tasks failing with transient errors", Section: "run"},
		{Name: "retry_delay", Type: "duration", Default: config.DefaultRetryDelay.String(), Description: "Initial delay between retries, doubled each attempt", Section: "run"},
		{Name: "schedule", Type: "string", Description: "Cron expression for lookpipe run", Section: "run"},

		{Name: "memory_alert_threshold_mb", Type: "int", Default: itoa(monitor.DefaultThresholdMB), Description: "Warn when a task grows memory by more than this", Section: "monitoring"},
	}
}

// generateConfigurationDoc generates the configuration reference page.
func generateConfigurationDoc(outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter("Configuration", "lookpipe configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("lookpipe reads `lookpipe.yaml` from the working directory or the closest parent directory. Relative paths are resolved against the directory of the file.")

	fields := getConfigSchema()
	for _, section := range []string{"general", "warehouse", "ingestion", "processing", "sink", "run", "monitoring"} {
		if section == "general" {
			w.Header(2, "General")
		} else {
			w.Header(2, InlineCode(section))
		}

		var rows [][]string
		for _, f := range fields {
			if f.Section != section {
				continue
			}
			defVal := "-"
			if f.Default != "" {
				defVal = InlineCode(f.Default)
			}
			rows = append(rows, []string{InlineCode(f.Name), f.Type, defVal, f.Description})
		}
		w.Table([]string{"Field", "Type", "Default", "Description"}, rows)
	}

	w.Header(2, "Full Configuration Example")
	w.CodeBlock("yaml", `# lookpipe.yaml
env: prod
log_format: json

warehouse:
  type: bigquery
  dataset: bigquery-public-data.thelook_ecommerce
  location: US

ingestion:
  credentials: ${GOOGLE_APPLICATION_CREDENTIALS}
  start_date: "2024-01-01"
  lookback_days: 2
  safety_limit: 100000
  incremental_tables:
    - name: orders
      date_column: created_at
    - name: order_items
      date_column: created_at
  snapshot_tables: [users, products]

processing:
  schemas:
    orders:
      order_id: UInt32
      user_id: UInt32
      status: Categorical
      created_at: Datetime
  schemas_file: schemas.yaml

sink:
  output_dir: data/processed
  postgres_dsn: ${ANALYTICS_DSN}

run:
  retries: 2
  schedule: "0 3 * * *"`)

	w.Header(2, "Environment Variables")
	w.Paragraph("Use `${VAR_NAME}` syntax in `credentials`, `warehouse.project` and `sink.postgres_dsn` to read environment variables.")

	filename := filepath.Join(outDir, "configuration.md")
	return os.WriteFile(filename, w.Bytes(), 0600)
}

// generateTypesDoc generates the column type descriptor reference.
func generateTypesDoc(outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter("Column Types", "Type descriptors accepted in target schemas")
	w.GeneratedMarker()

	w.Header(1, "Column Types")
	w.Paragraph("Each column of a target schema names one of these descriptors. Any other descriptor is a configuration error.")

	var rows [][]string
	for k := schema.KindUInt8; k <= schema.KindDecimal; k++ {
		desc, sqlType := k.String(), schema.Primitive(k).SQL()
		if k == schema.KindDecimal {
			d := schema.Decimal(10, 2)
			desc, sqlType = d.String(), d.SQL()
		}
		rows = append(rows, []string{InlineCode(desc), InlineCode(sqlType)})
	}
	w.Table([]string{"Descriptor", "Workspace type"}, rows)

	w.Paragraph("`Decimal` always takes a precision and a scale. A source table missing a schema column fails with a schema error, and source columns not in the schema are dropped. Categorical values are stripped of surrounding whitespace, and unparseable Date and Datetime values become null.")

	filename := filepath.Join(outDir, "types.md")
	return os.WriteFile(filename, w.Bytes(), 0600)
}
