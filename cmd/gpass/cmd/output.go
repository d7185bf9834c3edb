package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/jgutierrezgil/guardiapass/internal/strength"
)

var (
	// Color definitions.
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	boldColor    = color.New(color.Bold)
	dimColor     = color.New(color.Faint)
)

// Status lines go to stderr. Stdout carries command output only.

// Success prints a success message in green.
func Success(format string, a ...any) {
	successColor.Fprintf(os.Stderr, "✓ "+format+"\n", a...)
}

// Warning prints a warning message in yellow.
func Warning(format string, a ...any) {
	warningColor.Fprintf(os.Stderr, "⚠ "+format+"\n", a...)
}

// Dim prints text in dim/faint style.
func Dim(format string, a ...any) string {
	return dimColor.Sprintf(format, a...)
}

// SuccessIcon returns a green checkmark.
func SuccessIcon() string {
	return successColor.Sprint("✓")
}

// ErrorIcon returns a red X.
func ErrorIcon() string {
	return errorColor.Sprint("✗")
}

// LabelText renders a strength label colored by how good it is.
func LabelText(l strength.Label) string {
	switch l {
	case strength.Weak:
		return errorColor.Sprint(l)
	case strength.Moderate:
		return warningColor.Sprint(l)
	default:
		return successColor.Sprint(l)
	}
}

// PrintKeyValue prints a key-value pair with the key highlighted.
func PrintKeyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%s: %s\n", boldColor.Sprint(key), value)
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
