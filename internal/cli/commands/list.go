package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/lookpipe/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the pipeline tasks",
		Long: `List every task built from lookpipe.yaml with its tags and the datasets it
reads and writes.

Datasets a processing task reads but no task produces are listed as
external inputs: they must already exist when the task runs.`,
		Example: `  # List tasks
  lookpipe list

  # List tasks as JSON
  lookpipe list --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

type taskInfo struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Tags    []string `json:"tags"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

type listOutput struct {
	Tasks          []taskInfo `json:"tasks"`
	ExternalInputs []string   `json:"external_inputs"`
}

func runList(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	tasks, _, err := buildTasks(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}

	out := listOutput{ExternalInputs: pipeline.ExternalInputs(tasks)}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, taskInfo{Name: t.Name, Label: t.Label, Tags: t.Tags, Inputs: t.Inputs, Outputs: t.Outputs})
	}

	r := cmdCtx.Renderer
	if r.IsJSON() {
		return r.JSON(out)
	}

	rows := make([]table.Row, 0, len(out.Tasks))
	for _, t := range out.Tasks {
		rows = append(rows, table.Row{t.Name, strings.Join(t.Tags, ","), strings.Join(t.Inputs, ","), strings.Join(t.Outputs, ","), t.Label})
	}
	r.Table(table.Row{"Task", "Tags", "Inputs", "Outputs", "Description"}, rows, "No tasks configured")
	r.Printf("%d tasks\n", len(out.Tasks))
	if len(out.ExternalInputs) > 0 {
		r.Printf("External inputs: %s\n", strings.Join(out.ExternalInputs, ", "))
	}
	return nil
}
