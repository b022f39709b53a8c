// Package output renders venuectl command results, either as human
// tables or as JSON for scripting.
package output

// Printer renders a command result to stdout.
type Printer interface {
	Print(v any) error
}
