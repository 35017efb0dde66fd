package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the task dependency graph",
		Long: `Display the dependency graph (DAG) of the pipeline tasks.

Tasks are grouped by execution level: tasks in the same level have no
dependencies on each other and run concurrently.`,
		Example: `  # Show the DAG
  lookpipe dag

  # Output as JSON
  lookpipe dag --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}

	return cmd
}

type dagOutput struct {
	Levels [][]string          `json:"levels"`
	Edges  map[string][]string `json:"edges"`
	Tasks  int                 `json:"tasks"`
}

func runDAG(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	_, graph, err := buildTasks(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}

	// Get execution levels
	levels, err := graph.Levels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	r := cmdCtx.Renderer
	if r.IsJSON() {
		out := dagOutput{Levels: levels, Edges: make(map[string][]string), Tasks: graph.Len()}
		for _, id := range graph.IDs() {
			if children := graph.Children(id); len(children) > 0 {
				out.Edges[id] = children
			}
		}
		return r.JSON(out)
	}

	var rows []table.Row
	for i, level := range levels {
		for _, id := range level {
			rows = append(rows, table.Row{i, id, strings.Join(graph.Parents(id), ", ")})
		}
	}
	r.Table(table.Row{"Level", "Task", "Depends on"}, rows, "No tasks configured")
	r.Printf("%d tasks, %d dependencies, %d levels\n", graph.Len(), graph.EdgeCount(), len(levels))
	return nil
}
