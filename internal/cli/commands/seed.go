package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/lookpipe/pkg/adapters/duckdb"
	"github.com/leapstack-labs/lookpipe/pkg/extract"
	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file.csv|dir>...",
		Short: "Load CSV files into a local DuckDB warehouse",
		Long: `Load CSV files into the DuckDB warehouse named by the ingestion credentials,
one table per file, so the pipeline can run locally without BigQuery.

Each file becomes a table named after the file, replacing any existing
table. Directories load every .csv file they contain. Requires
warehouse.type: duckdb.`,
		Example: `  # Load a thelook sample
  lookpipe seed testdata/thelook

  # Load single files
  lookpipe seed orders.csv users.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args)
		},
	}

	return cmd
}

func runSeed(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cmdCtx.Cfg
	if cfg.Warehouse.Type != "duckdb" {
		return fmt.Errorf("seed loads into a duckdb warehouse, but warehouse.type is %q", cfg.Warehouse.Type)
	}

	files, err := seedFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		cmdCtx.Renderer.Println("No CSV files found")
		return nil
	}

	a := duckdb.New(cmdCtx.Logger)
	if err := a.Connect(cmd.Context(), cfg.AdapterConfig()); err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rows := make([]table.Row, 0, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		if err := extract.ValidateIdentifier(name); err != nil {
			return fmt.Errorf("cannot seed %s: %w", file, err)
		}
		if err := a.LoadCSV(cmd.Context(), name, file); err != nil {
			return fmt.Errorf("failed to seed %s: %w", name, err)
		}
		rows = append(rows, table.Row{name, file})
	}

	r := cmdCtx.Renderer
	r.Table(table.Row{"Table", "File"}, rows, "")
	r.Printf("Loaded %d seed files\n", len(files))
	return nil
}

// seedFiles expands directories in args to the .csv files they contain.
func seedFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
				continue
			}
			files = append(files, filepath.Join(arg, entry.Name()))
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
