package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/lookpipe/internal/cli/config"
	"github.com/leapstack-labs/lookpipe/internal/dag"
	"github.com/leapstack-labs/lookpipe/internal/engine"
	"github.com/leapstack-labs/lookpipe/internal/pipeline"
	"github.com/leapstack-labs/lookpipe/pkg/extract"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *Renderer
}

// NewCommandContext returns the validated configuration, logger and
// renderer of cmd.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: NewRenderer(cmd.OutOrStdout(), cfg.Output),
	}, nil
}

// getConfig returns the configuration loaded by the root command, loading
// it when the command runs standalone.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	if cfg, ok := config.FromContext(cmd.Context()); ok {
		return cfg, nil
	}
	return config.Load("", cmd.Flags())
}

// createEngine opens an engine for cfg. The caller closes it.
func createEngine(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	// Ensure state directory exists
	if cfg.StatePath != "" {
		stateDir := filepath.Dir(cfg.StatePath)
		if err := os.MkdirAll(stateDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return engine.New(cmd.Context(), cfg.EngineConfig(logger))
}

// buildTasks builds the task list and graph without opening anything.
func buildTasks(cfg *config.Config, logger *slog.Logger) ([]pipeline.NamedTask, *dag.Graph[pipeline.NamedTask], error) {
	p := cfg.Params()
	tasks := append(pipeline.BuildIngestion(p, extract.New(cfg.AdapterConfig(), logger)), pipeline.BuildProcessing(p, logger)...)
	graph, err := pipeline.Build(tasks)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return tasks, graph, nil
}
