// Package output renders CLI output for crossdock commands: status
// lines, aligned tables and key-value blocks, with ANSI color when the
// destination is an interactive terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
)

// ANSI SGR sequences, applied only when the writer decided color is safe.
const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer over out. Color turns on only when out is an
// interactive terminal and neither NO_COLOR nor a CI marker is set.
func New(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		useColor: colorSafe(out),
	}
}

// NewPlain creates a Writer that never emits color.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// colorSafe reports whether ANSI sequences are safe to write to w.
func colorSafe(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		if _, set := os.LookupEnv(v); set {
			return false
		}
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (w *Writer) paint(code, s string) string {
	if !w.useColor {
		return s
	}
	return code + s + ansiReset
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", w.paint(ansiGreen, msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.paint(ansiYellow, msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.paint(ansiRed, msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a bold section header.
func (w *Writer) Header(msg string) {
	_, _ = fmt.Fprintln(w.out, w.paint(ansiBold, msg))
}

// KV prints one aligned "Label:  value" line, indented two spaces.
// Labels are expected to be ASCII; values may be anything.
func (w *Writer) KV(label, value string) {
	_, _ = fmt.Fprintf(w.out, "  %-16s %s\n", label+":", value)
}

// Dim prints a de-emphasized line, for hints and secondary detail.
func (w *Writer) Dim(msg string) {
	_, _ = fmt.Fprintln(w.out, w.paint(ansiDim, msg))
}

// Table renders rows under a bold header with two-space column gaps.
// Column widths follow the widest cell, measured in runes so Cyrillic
// department names align with their ASCII slugs.
func (w *Writer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && utf8.RuneCountInString(cell) > widths[i] {
				widths[i] = utf8.RuneCountInString(cell)
			}
		}
	}

	w.printRow(headers, widths, true)
	for _, row := range rows {
		w.printRow(row, widths, false)
	}
}

func (w *Writer) printRow(cells []string, widths []int, header bool) {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(cell)
		if pad := widths[i] - utf8.RuneCountInString(cell); pad > 0 && i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", pad))
		}
	}
	line := b.String()
	if header {
		line = w.paint(ansiBold, line)
	}
	_, _ = fmt.Fprintln(w.out, line)
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Out returns the underlying writer, for raw output such as in-place
// progress lines that the formatting helpers would mangle.
func (w *Writer) Out() io.Writer {
	return w.out
}
