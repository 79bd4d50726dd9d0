package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/evalanche/metric"
	"github.com/teranos/evalanche/selection"
)

// selectionFlags bind a data selection to command flags: one source, or a
// ground truth and an inference source with their join columns
type selectionFlags struct {
	table   string
	sql     string
	columns []string

	groundTable   string
	groundSQL     string
	groundColumns []string
	groundJoin    string

	inferenceTable   string
	inferenceSQL     string
	inferenceColumns []string
	inferenceJoin    string

	manifest string
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.table, "table", "", "Source table (catalog.schema.table)")
	fs.StringVar(&f.sql, "sql", "", "Source custom SQL")
	fs.StringSliceVar(&f.columns, "columns", nil, "Columns to keep from --table (default: all)")

	fs.StringVar(&f.groundTable, "ground-table", "", "Ground truth table")
	fs.StringVar(&f.groundSQL, "ground-sql", "", "Ground truth custom SQL")
	fs.StringSliceVar(&f.groundColumns, "ground-columns", nil, "Columns to keep from --ground-table")
	fs.StringVar(&f.groundJoin, "ground-join", "", "Ground truth join column")

	fs.StringVar(&f.inferenceTable, "inference-table", "", "Inference table")
	fs.StringVar(&f.inferenceSQL, "inference-sql", "", "Inference custom SQL")
	fs.StringSliceVar(&f.inferenceColumns, "inference-columns", nil, "Columns to keep from --inference-table")
	fs.StringVar(&f.inferenceJoin, "inference-join", "", "Inference join column")

	fs.StringVar(&f.manifest, "manifest", "", "Read the selection from an evaluation manifest")
}

// selection returns the selection named by the flags. --manifest takes the
// [selection] of the manifest and ignores the other flags.
func (f *selectionFlags) selection() (selection.Selection, error) {
	if f.manifest != "" {
		m, err := metric.LoadManifest(f.manifest)
		if err != nil {
			return selection.Selection{}, err
		}
		return m.Selection, nil
	}

	var sel selection.Selection
	single := selection.Source{Table: f.table, SQL: f.sql, Columns: f.columns}
	if !single.IsZero() {
		sel.Single = &single
	}
	ground := selection.Source{Table: f.groundTable, SQL: f.groundSQL, Columns: f.groundColumns, JoinColumn: f.groundJoin}
	if !ground.IsZero() || ground.JoinColumn != "" {
		sel.Ground = &ground
	}
	inference := selection.Source{Table: f.inferenceTable, SQL: f.inferenceSQL, Columns: f.inferenceColumns, JoinColumn: f.inferenceJoin}
	if !inference.IsZero() || inference.JoinColumn != "" {
		sel.Inference = &inference
	}
	return sel, nil
}
