package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

// Theme holds the color scheme for status output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warning: lipgloss.Color("#FFAF00"), // amber
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Underline(true)
}

// printer renders styled text, or plain text when w is not a terminal.
type printer struct {
	w     io.Writer
	theme Theme
	color bool
}

func newPrinter(w io.Writer) *printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &printer{w: w, theme: defaultTheme, color: color}
}

func (p *printer) paint(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p *printer) jobStatus(s models.JobStatus) string {
	switch s {
	case models.JobDone:
		return p.paint(p.theme.successStyle(), string(s))
	case models.JobDoneErrors:
		return p.paint(p.theme.warningStyle(), string(s))
	case models.JobFailed:
		return p.paint(p.theme.errorStyle(), string(s))
	default:
		return p.paint(p.theme.statusStyle(), string(s))
	}
}

func (p *printer) itemStatus(s models.ItemStatus) string {
	switch s {
	case models.ItemDone:
		return p.paint(p.theme.successStyle(), string(s))
	case models.ItemSkipped, models.ItemArchived:
		return p.paint(p.theme.warningStyle(), string(s))
	case models.ItemFailed:
		return p.paint(p.theme.errorStyle(), string(s))
	default:
		return p.paint(p.theme.statusStyle(), string(s))
	}
}

func (p *printer) validation(s models.ValidationState) string {
	switch s {
	case models.ValidationAccepted:
		return p.paint(p.theme.successStyle(), string(s))
	case models.ValidationRefused:
		return p.paint(p.theme.errorStyle(), string(s))
	default:
		return p.paint(p.theme.hintStyle(), string(s))
	}
}

func (p *printer) header(s string) string {
	return p.paint(p.theme.headerStyle(), s)
}

func (p *printer) hint(s string) string {
	return p.paint(p.theme.hintStyle(), s)
}
