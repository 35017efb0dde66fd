package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/lookpipe/internal/engine"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Select     []string
	Tags       []string
	Downstream bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the extraction and processing pipeline",
		Long: `Extract the configured source tables and conform them to their target schemas.

Tasks run level by level; tasks in a level run concurrently. By default a
failed task only skips its dependents. Use --fail-fast to stop the run on
the first failure.

With --schedule (or run.schedule in lookpipe.yaml) the pipeline runs on a
cron schedule until interrupted.`,
		Example: `  # Run the whole pipeline
  lookpipe run

  # Run only the orders tasks
  lookpipe run --tags orders

  # Re-extract users and everything that depends on it
  lookpipe run --select extract_users --downstream

  # Run every night at 03:00
  lookpipe run --schedule "0 3 * * *"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Select, "select", "s", nil, "Comma-separated list of tasks to run")
	cmd.Flags().StringSliceVar(&opts.Tags, "tags", nil, "Run only tasks carrying any of these tags")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include downstream dependents of the selected tasks")

	// Overrides of lookpipe.yaml settings
	cmd.Flags().Bool("fail-fast", false, "Stop the run on the first failed task")
	cmd.Flags().Int("concurrency", engine.DefaultConcurrency, "Maximum tasks running at once")
	cmd.Flags().Int("retries", 0, "Retries for tasks failing with transient errors")
	cmd.Flags().Duration("retry-delay", 0, "Initial delay between retries")
	cmd.Flags().String("schedule", "", "Cron expression to run the pipeline on")
	cmd.Flags().String("start-date", "", "First day of the incremental window (YYYY-MM-DD)")
	cmd.Flags().Int("lookback-days", 0, "Days before today the incremental window ends")
	cmd.Flags().Int64("safety-limit", 0, "Maximum rows a snapshot table may hold")
	cmd.Flags().String("output-dir", "", "Directory receiving processed datasets as parquet")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	if cmdCtx.Cfg.Run.Schedule != "" {
		return runScheduled(cmd, cmdCtx, opts)
	}
	return runOnce(cmd, cmdCtx, opts)
}

func runOnce(cmd *cobra.Command, cmdCtx *CommandContext, opts *RunOptions) error {
	eng, err := createEngine(cmd, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	start := time.Now()
	result, runErr := eng.Run(cmd.Context(), cmdCtx.Cfg.RunOptions(opts.Select, opts.Tags, opts.Downstream))
	if result == nil {
		return runErr
	}

	r := cmdCtx.Renderer
	if r.IsJSON() {
		if err := r.JSON(result); err != nil {
			return err
		}
	} else {
		renderRunResult(r, result)
		r.Printf("Run %s: %s in %s\n", result.Run.ID, result.Run.Status, time.Since(start).Round(time.Millisecond))
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

func renderRunResult(r *Renderer, result *engine.RunResult) {
	rows := make([]table.Row, 0, len(result.Tasks))
	for _, tr := range result.Tasks {
		rows = append(rows, table.Row{
			tr.TaskName,
			tr.Status,
			humanize.Comma(tr.Rows),
			(time.Duration(tr.DurationMS) * time.Millisecond).String(),
			formatBytes(tr.MemoryDelta),
			truncate(tr.Error, 60),
		})
	}
	r.Table(table.Row{"Task", "Status", "Rows", "Duration", "Memory", "Error"}, rows, "No tasks ran")
}

// runScheduled runs the pipeline on the configured cron schedule until the
// command context is cancelled. Overlapping runs are skipped.
func runScheduled(cmd *cobra.Command, cmdCtx *CommandContext, opts *RunOptions) error {
	logger := cronLogger{cmdCtx.Logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	schedule := cmdCtx.Cfg.Run.Schedule
	if _, err := c.AddFunc(schedule, func() {
		if err := runOnce(cmd, cmdCtx, opts); err != nil {
			cmdCtx.Logger.Error("scheduled run failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	c.Start()
	cmdCtx.Renderer.Printf("Scheduled pipeline with %q, waiting for the next run (Ctrl+C to stop)\n", schedule)

	<-cmd.Context().Done()
	<-c.Stop().Done()

	if err := cmd.Context().Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

func formatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
