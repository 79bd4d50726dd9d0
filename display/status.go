package display

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/teranos/evalanche/sym"
)

// Success prints a success status line
func Success(format string, args ...interface{}) {
	pterm.Success.Printfln(format, args...)
}

// Failure prints a failure status line
func Failure(format string, args ...interface{}) {
	pterm.Error.Printfln(format, args...)
}

// Info prints an informational status line
func Info(format string, args ...interface{}) {
	pterm.Info.Printfln(format, args...)
}

// Warning prints a warning status line
func Warning(format string, args ...interface{}) {
	pterm.Warning.Printfln(format, args...)
}

// Header prints a command header: glyph, title and a rule
func Header(glyph, title string) {
	pterm.Printf("%s %s\n", pterm.LightCyan(glyph), pterm.Bold.Sprint(title))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// KeyValue prints an aligned "key: value" line
func KeyValue(key string, value interface{}) {
	pterm.Printf("  %-16s %v\n", pterm.Gray(key+":"), value)
}

// State colours a run state for terminal output
func State(state string) string {
	switch state {
	case "DONE":
		return pterm.Green(sym.Done + " " + state)
	case "FAILED":
		return pterm.Red(sym.Failed + " " + state)
	default:
		return pterm.Yellow(state)
	}
}
