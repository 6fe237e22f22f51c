package verify

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorYellow = lipgloss.Color("#eab308")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	passStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	passMark = "[OK]"
	warnMark = "[??]"
)

// Render writes the report as a check list. With color disabled (piped
// output) the marks still carry the status, so the plain text reads the
// same.
func (r *Report) Render(w io.Writer, color bool) {
	title := fmt.Sprintf("cluster %s: %s", r.ClusterName, r.Overall())
	if color {
		title = titleStyle.Render(title)
	}
	fmt.Fprintln(w, title)

	for _, check := range r.Checks {
		mark := passMark
		style := passStyle
		if check.Status != StatusPass {
			mark = warnMark
			style = warnStyle
		}

		name, detail := check.Name, check.Detail
		if color {
			mark = style.Render(mark)
			detail = dimStyle.Render(detail)
		}
		fmt.Fprintf(w, "  %s %-20s %s\n", mark, name, detail)
	}
}
