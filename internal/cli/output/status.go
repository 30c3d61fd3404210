package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// DisableColor turns colored status lines off for the whole process.
func DisableColor() {
	color.NoColor = true
}

// Success prints a green status line.
func Success(w io.Writer, format string, args ...any) {
	_, _ = successColor.Fprintln(w, fmt.Sprintf(format, args...))
}

// Warning prints a yellow status line.
func Warning(w io.Writer, format string, args ...any) {
	_, _ = warningColor.Fprintln(w, fmt.Sprintf(format, args...))
}

// Error prints a red status line.
func Error(w io.Writer, format string, args ...any) {
	_, _ = errorColor.Fprintln(w, fmt.Sprintf(format, args...))
}
