// Package sym defines canonical glyphs for evalanche commands and system markers.
// These glyphs are stable across CLI output, log lines and documentation.
package sym

// Command glyphs. Each top-level CLI command has one.
const (
	AM       = "≡" // am: configuration and system settings
	Catalog  = "⊞" // catalog: schemas, tables, columns, routines
	SQL      = "⌕" // sql: run a custom query
	Preview  = "◫" // preview: show the selected data
	Pipeline = "꩜" // pipeline: invoke a routine over every row
	Eval     = "⊨" // eval: score rows with metrics
)

// System markers used in status lines.
const (
	DB      = "⊔" // database/storage layer
	Join    = "⋈" // two-source join
	Batch   = "▤" // one batch of rows
	Done    = "✓" // run finished
	Failed  = "✗" // run failed
	Routine = "ƒ" // routine invocation
)

// SymbolToCommand maps glyph strings to their text command equivalents.
var SymbolToCommand = map[string]string{
	AM:       "am",
	Catalog:  "catalog",
	SQL:      "sql",
	Preview:  "preview",
	Pipeline: "pipeline",
	Eval:     "eval",
}

// CommandToSymbol maps text commands to their canonical glyph strings.
var CommandToSymbol = map[string]string{
	"am":       AM,
	"catalog":  Catalog,
	"sql":      SQL,
	"preview":  Preview,
	"pipeline": Pipeline,
	"eval":     Eval,
}

// CommandDescriptions provides the short help line of each command.
var CommandDescriptions = map[string]string{
	"am":       "Configuration: show, query and validate settings",
	"catalog":  "Catalog: list schemas, tables, columns and routines",
	"sql":      "SQL: run a custom query against the session",
	"preview":  "Preview: show the rows a data selection resolves to",
	"pipeline": "Pipeline: run a routine over every row and append the results",
	"eval":     "Evaluate: score rows with metrics",
}

// Short returns "<glyph> <command>" for use in headers, or the command alone
// when it has no glyph.
func Short(command string) string {
	if glyph, ok := CommandToSymbol[command]; ok {
		return glyph + " " + command
	}
	return command
}
