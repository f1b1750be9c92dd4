package output

import (
	"fmt"
	"io"
	"strings"
)

// ColorMode controls decorated status messages.
type ColorMode string

// Color modes.
const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode parses a color setting; unknown values mean auto.
func ParseColorMode(s string) ColorMode {
	switch ColorMode(strings.ToLower(strings.TrimSpace(s))) {
	case ColorAlways:
		return ColorAlways
	case ColorNever:
		return ColorNever
	default:
		return ColorAuto
	}
}

// Decorate reports whether messages written to w use symbols.
func (m ColorMode) Decorate(w io.Writer) bool {
	switch m {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return IsTerminal(w)
	}
}

// Messenger writes human status lines: info and success to out, warnings
// to errOut.
type Messenger struct {
	out      io.Writer
	errOut   io.Writer
	decorate bool
}

// NewMessenger returns a Messenger. decorate selects symbol prefixes over
// plain words.
func NewMessenger(out, errOut io.Writer, decorate bool) *Messenger {
	return &Messenger{out: out, errOut: errOut, decorate: decorate}
}

func (m *Messenger) write(w io.Writer, symbol, word, msg string) {
	prefix := word
	if m.decorate {
		prefix = symbol
	}
	_, _ = fmt.Fprintln(w, prefix+msg)
}

// Info prints an informational message.
func (m *Messenger) Info(msg string) {
	m.write(m.out, "ℹ️  ", "", msg)
}

// Infof prints a formatted informational message.
func (m *Messenger) Infof(format string, args ...any) {
	m.Info(fmt.Sprintf(format, args...))
}

// Warn prints a warning.
func (m *Messenger) Warn(msg string) {
	m.write(m.errOut, "⚠️  ", "Warning: ", msg)
}

// Warnf prints a formatted warning.
func (m *Messenger) Warnf(format string, args ...any) {
	m.Warn(fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (m *Messenger) Success(msg string) {
	m.write(m.out, "✅ ", "", msg)
}

// Successf prints a formatted success message.
func (m *Messenger) Successf(format string, args ...any) {
	m.Success(fmt.Sprintf(format, args...))
}
