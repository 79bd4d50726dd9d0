package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/evalanche/display"
	"github.com/teranos/evalanche/sym"
)

var sqlLimit int

// SQLCmd runs a custom query against the session
var SQLCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: sym.SQL + " Run a custom SQL query",
	Long: sym.SQL + ` sql — Run a custom SQL query

The query is validated before any rows are read, and only the first
--limit rows are shown. Routines can be called like any SQL function.

Examples:
  evalanche sql "SELECT * FROM questions"
  evalanche sql "SELECT id, square_len(json_object('q', question)) FROM questions" --limit 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQL,
}

func init() {
	SQLCmd.Flags().IntVarP(&sqlLimit, "limit", "l", 50, "Maximum number of rows to show (0 = all)")
}

func runSQL(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := cmd.Context()
	frame, err := ws.session.SQL(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	records, err := frame.Limit(sqlLimit).Collect(ctx)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(records)
	}
	out, err := display.RecordsTable(frame.Columns(), records)
	if err != nil {
		return err
	}
	fmt.Print(out)
	display.Info("%d rows", len(records))
	return nil
}
