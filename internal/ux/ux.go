// Package ux styles terminal output. Styling is applied only when the
// destination is a terminal.
package ux

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorGood  = lipgloss.Color("#2CD7C7")
	colorWarn  = lipgloss.Color("#F4D03F")
	colorBad   = lipgloss.Color("#E74C3C")
	colorMuted = lipgloss.Color("#6C7A89")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	goodStyle  = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	badStyle   = lipgloss.NewStyle().Foreground(colorBad).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer renders styled text for one output stream.
type Printer struct {
	styled bool
}

// For returns a Printer that styles only when w is a terminal.
func For(w io.Writer) Printer {
	return Printer{styled: IsTerminal(w)}
}

func (p Printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p Printer) Title(text string) string { return p.render(titleStyle, text) }
func (p Printer) Good(text string) string  { return p.render(goodStyle, text) }
func (p Printer) Warn(text string) string  { return p.render(warnStyle, text) }
func (p Printer) Bad(text string) string   { return p.render(badStyle, text) }
func (p Printer) Muted(text string) string { return p.render(mutedStyle, text) }

// Status colors PASS green and anything else red.
func (p Printer) Status(status string) string {
	if status == "PASS" {
		return p.Good(status)
	}
	return p.Bad(status)
}
