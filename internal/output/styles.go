package output

import "github.com/charmbracelet/lipgloss"

// Single-accent palette. ANSI 256 codes so it degrades cleanly on
// basic terminals.
const (
	colorAccent    = "110" // muted blue, scores and titles
	colorAccentDim = "67"  // dimmed accent, metadata
	colorGray      = "245" // labels
	colorDarkGray  = "238" // separators
	colorRed       = "196" // errors
	colorYellow    = "220" // warnings
	colorGreen     = "114" // success summaries
)

// Styles holds the render styles for terminal output.
type Styles struct {
	Title   lipgloss.Style
	Score   lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Rule    lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccentDim)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Rule:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
	}
}

// PlainStyles returns an unstyled set for non-TTY output.
func PlainStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Rule:    lipgloss.NewStyle(),
	}
}
