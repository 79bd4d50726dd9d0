package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
//	0 (default) - results, errors with hints, final status
//	1 (-v)      - + batch progress, run summaries
//	2 (-vv)     - + timing, config loaded
//	3 (-vvv)    - + SQL text, individual routine calls

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	OutputResults    OutputCategory = iota // Query results, command output
	OutputErrors                           // Errors with hints
	OutputUserStatus                       // Final success/failure status

	OutputProgress // Batch progress ("batch 3: 1000 rows appended")
	OutputRunInfo  // Run summaries

	OutputTiming // Operation timing
	OutputConfig // Config values loaded/applied

	OutputSQLQueries   // SQL text sent to the session
	OutputRoutineCalls // Individual routine invocations
)

var categoryLevels = map[OutputCategory]int{
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	OutputProgress: VerbosityInfo,
	OutputRunInfo:  VerbosityInfo,

	OutputTiming: VerbosityDebug,
	OutputConfig: VerbosityDebug,

	OutputSQLQueries:   VerbosityTrace,
	OutputRoutineCalls: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}
