package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Output modes.
const (
	ModeTable    = "table"
	ModeMarkdown = "markdown"
	ModeJSON     = "json"
)

// Renderer writes command results as a table, markdown or JSON.
type Renderer struct {
	w    io.Writer
	mode string
}

// NewRenderer creates a renderer. Unknown modes render tables.
func NewRenderer(w io.Writer, mode string) *Renderer {
	return &Renderer{w: w, mode: mode}
}

// IsJSON reports whether results should be encoded as JSON.
func (r *Renderer) IsJSON() bool { return r.mode == ModeJSON }

// Table renders rows under header. An empty result prints empty instead.
func (r *Renderer) Table(header table.Row, rows []table.Row, empty string) {
	if len(rows) == 0 {
		r.Println(empty)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)

	if r.mode == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Println writes a line.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.w, a...)
}

// Printf writes formatted text.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.w, format, a...)
}
