package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/evalanche/display"
	"github.com/teranos/evalanche/sym"
)

var (
	previewFlags      selectionFlags
	previewLimit      int
	previewColumnOnly bool
)

// PreviewCmd shows the rows a data selection resolves to
var PreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: sym.Preview + " Preview selected data",
	Long: sym.Preview + ` preview — Show the rows a data selection resolves to

Select one dataset with --table or --sql, or expected and actual results
from separate datasets with --ground-* and --inference-*. Separate datasets
are inner-joined on their join columns; ground truth columns whose names
collide with inference columns are prefixed GROUND_.

Examples:
  evalanche preview --table EVAL.main.answers --columns id,response,answer
  evalanche preview --ground-table EVAL.main.expected --ground-join id \
                    --inference-sql "SELECT * FROM actual" --inference-join id
  evalanche preview --manifest eval.toml --columns-only`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	previewFlags.register(PreviewCmd)
	PreviewCmd.Flags().IntVarP(&previewLimit, "limit", "l", 0, "Rows to show (default: preview.limit)")
	PreviewCmd.Flags().BoolVar(&previewColumnOnly, "columns-only", false, "List the columns metric parameters can use")
}

func runPreview(cmd *cobra.Command, args []string) error {
	sel, err := previewFlags.selection()
	if err != nil {
		return err
	}

	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := cmd.Context()
	pc := ws.cfg.GetPreviewConfig()

	if previewColumnOnly {
		columns, err := sel.ConfigureColumns(ctx, ws.session, pc.ConfigureLimit)
		if err != nil {
			return err
		}
		return outputList(cmd, "column", columns)
	}

	limit := previewLimit
	if limit <= 0 {
		limit = pc.Limit
	}
	result, err := sel.Preview(ctx, ws.session, limit)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(result)
	}
	if sel.Separate() {
		display.Info("%s joined on %s = %s", sym.Join, sel.Inference.JoinColumn, sel.Ground.JoinColumn)
	}
	out, err := display.RecordsTable(result.Columns, result.Records)
	if err != nil {
		return err
	}
	fmt.Print(out)
	display.Info("%d rows (limit %d)", len(result.Records), result.Limit)
	return nil
}
