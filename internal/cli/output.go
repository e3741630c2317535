// Package cli renders command-line output for the seanotes binary.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ANSI palette entries used for status symbols.
const (
	ColorRed    = lipgloss.Color("1")
	ColorGreen  = lipgloss.Color("2")
	ColorYellow = lipgloss.Color("3")
	ColorBlue   = lipgloss.Color("4")
	ColorCyan   = lipgloss.Color("6")
)

// Printer writes prefixed status lines, colored when the writer is a terminal.
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer
	color    bool
}

// NewPrinter returns a printer for w. Color is enabled only for terminals.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, renderer: lipgloss.NewRenderer(w), color: isTerminal(w)}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Colorize wraps text in color when enabled.
func (p *Printer) Colorize(text string, color lipgloss.Color) string {
	if !p.color {
		return text
	}
	return p.renderer.NewStyle().Foreground(color).Render(text)
}

func (p *Printer) line(symbol string, color lipgloss.Color, format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.Colorize(symbol, color), fmt.Sprintf(format, args...))
}

// Success prints a check-marked line.
func (p *Printer) Success(format string, args ...interface{}) {
	p.line("✓", ColorGreen, format, args...)
}

// Error prints a cross-marked line.
func (p *Printer) Error(format string, args ...interface{}) {
	p.line("✗", ColorRed, format, args...)
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...interface{}) {
	p.line("⚠", ColorYellow, format, args...)
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...interface{}) {
	p.line("ℹ", ColorBlue, format, args...)
}

// Spinner shows activity while a long call runs. It only animates on terminals.
type Spinner struct {
	p      *Printer
	frames []string
	label  string
	mu     sync.Mutex
	active bool
	done   chan struct{}
	exited chan struct{}
}

// Spinner creates a spinner labelled with label.
func (p *Printer) Spinner(label string) *Spinner {
	return &Spinner{
		p:      p,
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		label:  label,
	}
}

// Start begins animating. It is a no-op when output is not a terminal.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active || !s.p.color {
		return
	}
	s.active = true
	s.done = make(chan struct{})
	s.exited = make(chan struct{})

	go func() {
		defer close(s.exited)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(s.frames) {
			fmt.Fprintf(s.p.w, "\r%s %s", s.p.Colorize(s.frames[i], ColorCyan), s.label)
			select {
			case <-ticker.C:
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	<-s.exited
	fmt.Fprint(s.p.w, "\r"+strings.Repeat(" ", len(s.label)+4)+"\r")
}

// FormatDuration renders d coarsely for humans.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "< 1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
