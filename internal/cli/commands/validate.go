package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/lookpipe/internal/cli/config"
	"github.com/leapstack-labs/lookpipe/internal/pipeline"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 300 * time.Millisecond

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate lookpipe.yaml and the target schemas",
		Long: `Load lookpipe.yaml, check every setting and type descriptor and build the
task graph, without connecting to the warehouse.

With --watch the configuration and schemas file are validated again each
time they change.`,
		Example: `  # Validate once
  lookpipe validate

  # Re-validate on every save
  lookpipe validate --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if !watch {
				return validateConfig(cmd, cfg)
			}
			return watchConfig(cmd, cfg)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Validate again whenever the configuration changes")

	return cmd
}

func validateConfig(cmd *cobra.Command, cfg *config.Config) error {
	r := NewRenderer(cmd.OutOrStdout(), cfg.Output)
	if err := cfg.Validate(); err != nil {
		return err
	}

	tasks, graph, err := buildTasks(cfg, config.GetLogger(cmd.Context()))
	if err != nil {
		return err
	}

	source := cfg.ConfigFile
	if source == "" {
		source = "defaults and environment"
	}
	r.Printf("Configuration valid (%s)\n", source)
	r.Printf("  warehouse: %s %s\n", cfg.Warehouse.Type, cfg.Warehouse.Dataset)
	r.Printf("  tables: %d incremental, %d snapshot, %d schemas\n",
		len(cfg.Ingestion.IncrementalTables), len(cfg.Ingestion.SnapshotTables), len(cfg.Processing.Schemas))
	r.Printf("  tasks: %d, dependencies: %d\n", graph.Len(), graph.EdgeCount())
	if ext := pipeline.ExternalInputs(tasks); len(ext) > 0 {
		r.Printf("  warning: no task produces %s; processing those tables needs them in the catalog\n", strings.Join(ext, ", "))
	}
	return nil
}

// watchConfig validates cfg, then again after every change to the files
// it was loaded from, until the command context is cancelled.
func watchConfig(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.ConfigFile == "" {
		return fmt.Errorf("no config file to watch\nHint: create %s or pass --config", config.DefaultConfigFile)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watched := map[string]bool{}
	for _, path := range []string{cfg.ConfigFile, cfg.Processing.SchemasFile} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		watched[abs] = true
		// Editors replace files on save, so watch the directory.
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
		}
	}

	logger := config.GetLogger(cmd.Context())
	report := func(c *config.Config) {
		if err := validateConfig(cmd, c); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
	report(cfg)

	ctx := cmd.Context()
	changed := make(chan struct{}, 1)
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			if !watched[abs] {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
		case <-changed:
			logger.Debug("configuration changed", "file", cfg.ConfigFile)
			next, err := config.Load(cfg.ConfigFile, nil)
			if err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				continue
			}
			report(next)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}
