package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/lookpipe/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envPrefix and envNesting mirror the environment layer of the config loader.
const (
	envPrefix  = "LOOKPIPE_"
	envNesting = "__"
)

// generateCLIDocs writes index.md plus one page per lookpipe command.
func generateCLIDocs(outDir string) error {
	log.Printf("Generating CLI docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	root := cli.NewRootCmd()
	cmds := documentedCommands(root)

	if err := writePage(outDir, "index.md", cliIndex(root, cmds)); err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := writePage(outDir, cmd.Name()+".md", commandPage(cmd)); err != nil {
			return err
		}
	}
	return nil
}

func writePage(outDir, name string, w *MarkdownWriter) error {
	if err := os.WriteFile(filepath.Join(outDir, name), w.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	log.Printf("  Generated %s", name)
	return nil
}

// documentedCommands skips hidden commands and cobra's help command.
func documentedCommands(root *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, cmd := range root.Commands() {
		if cmd.Hidden || cmd.Name() == "help" {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

func cliIndex(root *cobra.Command, cmds []*cobra.Command) *MarkdownWriter {
	w := NewMarkdownWriter()
	w.Frontmatter("CLI Reference", "The lookpipe command line")
	w.GeneratedMarker()

	w.Header(1, "CLI Reference")
	w.Paragraph("Every command reads `lookpipe.yaml` from the working directory or the closest parent. " +
		"A typical session validates the configuration, inspects the task graph, runs the pipeline and checks the history:")
	w.CodeBlock("bash", `lookpipe validate
lookpipe dag
lookpipe run
lookpipe runs`)

	rows := make([][]string, 0, len(cmds))
	for _, cmd := range cmds {
		link := fmt.Sprintf("[%s](/cli/%s)", InlineCode(cmd.Name()), cmd.Name())
		rows = append(rows, []string{link, cleanDescription(cmd.Short)})
	}
	w.Header(2, "Commands")
	w.Table([]string{"Command", "Description"}, rows)

	w.Header(2, "Global Flags")
	w.Table(flagHeaders, flagRows(root.PersistentFlags()))

	w.Header(2, "Environment")
	w.Paragraph(fmt.Sprintf("Scalar settings can be overridden with %s variables, nesting sections with %s. "+
		"A `.env` file next to the working directory is loaded first. Flags win over the environment, which wins over the file.",
		InlineCode(envPrefix+"*"), InlineCode(envNesting)))
	w.Table([]string{"Variable", "Setting"}, envRows())

	w.Paragraph("lookpipe exits with status 1 on any error and prints the cause to stderr. A failed run is still recorded in the run history.")
	return w
}

// envRows derives the variable names from the configuration reference.
func envRows() [][]string {
	var rows [][]string
	for _, f := range getConfigSchema() {
		if f.Type == "list" || strings.HasPrefix(f.Type, "map") {
			continue
		}
		key, name := f.Name, f.Name
		if f.Section != "general" {
			key = f.Section + "." + f.Name
			name = f.Section + envNesting + f.Name
		}
		rows = append(rows, []string{InlineCode(envPrefix + strings.ToUpper(name)), InlineCode(key)})
	}
	return rows
}

func commandPage(cmd *cobra.Command) *MarkdownWriter {
	w := NewMarkdownWriter()
	w.Frontmatter(cmd.Name(), cmd.Short)
	w.GeneratedMarker()

	w.Header(1, cmd.Name())
	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	w.Paragraph(desc)
	w.CodeBlock("bash", cmd.UseLine())

	if cmd.HasLocalFlags() {
		w.Header(2, "Flags")
		w.Table(flagHeaders, flagRows(cmd.LocalFlags()))
	}
	if cmd.Example != "" {
		w.Header(2, "Examples")
		w.CodeBlock("bash", cleanExample(cmd.Example))
	}
	w.Paragraph("See the [CLI reference](/cli/) for the global flags.")
	return w
}

var flagHeaders = []string{"Flag", "Default", "Description"}

func flagRows(flags *pflag.FlagSet) [][]string {
	var rows [][]string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := InlineCode("--" + f.Name)
		if f.Shorthand != "" {
			name = InlineCode("-"+f.Shorthand) + ", " + name
		}
		def := "-"
		if f.DefValue != "" && f.DefValue != "[]" {
			def = InlineCode(f.DefValue)
		}
		rows = append(rows, []string{name, def, cleanDescription(f.Usage)})
	})
	return rows
}

// cleanExample strips the indentation shared by every non-blank line.
func cleanExample(example string) string {
	lines := strings.Split(example, "\n")
	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, line := range lines {
		if len(line) >= indent && indent > 0 {
			lines[i] = line[indent:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
