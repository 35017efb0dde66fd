package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/lookpipe/internal/state"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show run history",
		Long: `List recent pipeline runs from the state database, newest first.

Pass a run id to show the task runs of that run.`,
		Example: `  # List the last 20 runs
  lookpipe runs

  # Show the tasks of one run
  lookpipe runs 3f0c9a52-1c1e-4b7e-9d55-0d3f1f4b2a10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, args, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")

	return cmd
}

func runRuns(cmd *cobra.Command, args []string, limit int) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	if _, err := os.Stat(cmdCtx.Cfg.StatePath); errors.Is(err, os.ErrNotExist) {
		r.Printf("No runs recorded yet (%s does not exist)\n", cmdCtx.Cfg.StatePath)
		return nil
	}

	store := state.NewSQLiteStore(cmdCtx.Logger)
	if err := store.Open(cmdCtx.Cfg.StatePath); err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.InitSchema(); err != nil {
		return fmt.Errorf("failed to initialize state schema: %w", err)
	}

	if len(args) == 1 {
		return showRun(r, store, args[0])
	}

	runs, err := store.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if r.IsJSON() {
		return r.JSON(runs)
	}

	rows := make([]table.Row, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, table.Row{
			run.ID,
			run.Status,
			humanize.Time(run.StartedAt),
			runDuration(run.StartedAt, run.CompletedAt),
			truncate(run.Error, 60),
		})
	}
	r.Table(table.Row{"Run", "Status", "Started", "Duration", "Error"}, rows, "No runs recorded yet")
	return nil
}

type runDetail struct {
	Run   *core.Run       `json:"run"`
	Tasks []*core.TaskRun `json:"tasks"`
}

func showRun(r *Renderer, store *state.SQLiteStore, id string) error {
	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	tasks, err := store.GetTaskRunsForRun(id)
	if err != nil {
		return fmt.Errorf("failed to get task runs: %w", err)
	}
	if r.IsJSON() {
		return r.JSON(runDetail{Run: run, Tasks: tasks})
	}

	r.Printf("Run %s: %s, started %s (%s)\n", run.ID, run.Status, run.StartedAt.Format(time.RFC3339), humanize.Time(run.StartedAt))
	rows := make([]table.Row, 0, len(tasks))
	for _, tr := range tasks {
		rows = append(rows, table.Row{
			tr.TaskName,
			tr.Status,
			humanize.Comma(tr.Rows),
			runDuration(tr.StartedAt, tr.CompletedAt),
			formatBytes(tr.MemoryDelta),
			truncate(tr.Error, 60),
		})
	}
	r.Table(table.Row{"Task", "Status", "Rows", "Duration", "Memory", "Error"}, rows, "No task runs recorded")
	return nil
}

func runDuration(start time.Time, end *time.Time) string {
	if end == nil {
		return "-"
	}
	return end.Sub(start).Round(time.Millisecond).String()
}
