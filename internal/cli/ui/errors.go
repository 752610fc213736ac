package ui

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Code         string
	Problem      string
	Fields       map[string]string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

func palette(level ErrorLevel, noColor bool) (header, body *color.Color, symbol string) {
	switch level {
	case ErrorLevelWarning:
		header, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "⚠️"
	case ErrorLevelInfo:
		header, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "ℹ️"
	default:
		header, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "❌"
	}
	if noColor {
		header.DisableColor()
		body.DisableColor()
	}
	return header, body, symbol
}

// FormatError creates a standardized error message
//
// Example output:
//
//	❌ VALIDATION [0006]: test.partner
//	   name: value is required
//
//	   → Inspect the model: objectserver call test.partner default_values '[]'
func FormatError(opts ErrorOptions) string {
	var b strings.Builder
	header, body, symbol := palette(opts.Level, opts.NoColor)

	switch {
	case opts.Context != "" && opts.Code != "":
		header.Fprintf(&b, "%s %s [%s]: %s\n", symbol, strings.ToUpper(opts.Context), opts.Code, opts.Problem)
	case opts.Context != "":
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	default:
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	// Field messages, sorted for stable output
	names := make([]string, 0, len(opts.Fields))
	for name := range opts.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body.Fprintf(&b, "   %s: %s\n", name, opts.Fields[name])
	}

	if len(opts.Suggestions) > 0 {
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// CallError describes an error returned by the engine. Recognized errors get
// their kind and code in the header; models lists the known model names and
// feeds suggestions for unknown ones.
func CallError(err error, models []string, noColor bool) string {
	var e *ormerrors.Error
	if !errors.As(err, &e) {
		return FormatError(ErrorOptions{
			Level:   ErrorLevelError,
			Context: "internal error",
			Code:    string(ormerrors.CodeOf(err)),
			Problem: err.Error(),
			NoColor: noColor,
		})
	}

	opts := ErrorOptions{
		Level:   ErrorLevelError,
		Context: strings.ReplaceAll(e.Kind.String(), "_", " "),
		Code:    string(e.Code),
		Problem: e.Message,
		Fields:  e.Fields,
		NoColor: noColor,
	}
	if e.Message == "" && e.Err != nil {
		opts.Problem = e.Err.Error()
	}
	if e.Resource != "" {
		opts.Problem = fmt.Sprintf("%s: %s", e.Resource, opts.Problem)
	}

	switch {
	case errors.Is(err, ormerrors.ErrResourceNotFound):
		if e.Resource != "" && !contains(models, e.Resource) {
			opts.Suggestions = FindSimilar(e.Resource, models, nil)
		}
		opts.HelpCommands = []string{"List models: objectserver call core.model search '[]'"}
	case errors.Is(err, ormerrors.ErrConcurrency):
		opts.HelpCommands = []string{"Read the record again and retry with its current _version"}
	case errors.Is(err, ormerrors.ErrSecurity):
		opts.HelpCommands = []string{"Check core.model_access, core.field_access and core.rule for the user's roles"}
	}
	return FormatError(opts)
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat objectserver.yaml",
			"Get help: objectserver --help",
		},
		NoColor: noColor,
	})
}

// Warning creates a standardized warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
