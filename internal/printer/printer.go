// Package printer provides styled terminal output for CLI commands.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

type ctxKey struct{}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Printer writes status lines to a terminal.
type Printer struct {
	w io.Writer
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// WithCtx returns a context carrying p.
func WithCtx(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the Printer stored in ctx, or a stderr printer when none is set.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

// Printf writes a plain formatted line.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Successf writes a success-styled line.
func (p *Printer) Successf(format string, args ...any) {
	fmt.Fprintln(p.w, successStyle.Render("✓ ")+fmt.Sprintf(format, args...))
}

// Infof writes an info-styled line.
func (p *Printer) Infof(format string, args ...any) {
	fmt.Fprintln(p.w, infoStyle.Render("• ")+fmt.Sprintf(format, args...))
}

// Warnf writes a warning-styled line.
func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintln(p.w, warnStyle.Render("! ")+fmt.Sprintf(format, args...))
}

// Errorf writes an error-styled line.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintln(p.w, errorStyle.Render("✗ ")+fmt.Sprintf(format, args...))
}
