package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teranos/evalanche/ai/provider"
	"github.com/teranos/evalanche/display"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/metric"
	"github.com/teranos/evalanche/sym"
)

var (
	evalManifest string
	evalWorkers  int
	evalShowRows bool
)

// EvalCmd scores a data selection with metrics
var EvalCmd = &cobra.Command{
	Use:   "eval",
	Short: sym.Eval + " Score data with metrics",
	Long: sym.Eval + ` eval — Score every row of a data selection with metrics

The manifest names the data selection, the metrics, the column assigned
to each metric parameter and an optional results table:

  [selection.single]
  table = "EVAL.main.answers"

  [[metrics]]
  name = "exact_match"
  params = { output = "response", expected = "answer" }

  [output]
  table = "EVAL.main.scores"
  create = true

Examples:
  evalanche eval --manifest eval.toml
  evalanche eval metrics`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

var evalMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List the available metrics and their parameters",
	Args:  cobra.NoArgs,
	RunE:  runEvalMetrics,
}

func init() {
	EvalCmd.Flags().StringVarP(&evalManifest, "manifest", "m", "", "Evaluation manifest (TOML)")
	EvalCmd.Flags().IntVarP(&evalWorkers, "workers", "w", 0, "Rows scored concurrently (default: pipeline.workers, else CPU count)")
	EvalCmd.Flags().BoolVar(&evalShowRows, "rows", false, "Print every scored row")
	EvalCmd.MarkFlagRequired("manifest")

	EvalCmd.AddCommand(evalMetricsCmd)
}

// metricRegistry returns the built-in metrics, judged by the configured LLM
func metricRegistry(ws *workspace) (*metric.Registry, error) {
	judge, err := provider.NewAIClient(ws.cfg, ws.clientConfig("metric"))
	if err != nil {
		return nil, err
	}
	reg := metric.NewRegistry()
	if err := metric.RegisterBuiltins(reg, judge); err != nil {
		return nil, err
	}
	return reg, nil
}

func runEval(cmd *cobra.Command, args []string) error {
	manifest, err := metric.LoadManifest(evalManifest)
	if err != nil {
		return err
	}
	if err := manifest.Validate(); err != nil {
		return err
	}
	output, err := manifest.OutputRef()
	if err != nil {
		return err
	}

	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	reg, err := metricRegistry(ws)
	if err != nil {
		return err
	}
	metrics, assignments, err := manifest.Resolve(reg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	frame, err := manifest.Selection.Resolve(ctx, ws.session, 0)
	if err != nil {
		return err
	}

	if manifest.Output.Create && !output.IsZero() {
		exists, err := ws.session.TableExists(ctx, output)
		if err != nil {
			return err
		}
		if !exists {
			if err := ws.session.CreateTable(ctx, output, metric.OutputColumns(frame.Columns(), metrics)); err != nil {
				return err
			}
		}
	}

	workers := evalWorkers
	if workers <= 0 {
		workers = ws.cfg.GetPipelineConfig().Workers
	}
	runner := metric.NewRunner(ws.session, metric.Options{
		Workers: workers,
		Output:  output,
		Logger:  ws.logger,
	})

	result, err := runner.Run(ctx, frame, metrics, assignments)
	if err != nil {
		return errors.Wrap(err, "evaluation failed")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(result)
	}

	if evalShowRows {
		out, err := display.RecordsTable(result.Columns, result.Records)
		if err != nil {
			return err
		}
		fmt.Print(out)
	}

	rows := make([][]string, len(result.Summary))
	for i, s := range result.Summary {
		rows[i] = []string{s.Metric, strconv.Itoa(s.Scored), strconv.FormatFloat(s.Mean, 'f', 3, 64)}
	}
	out, err := display.Table([]string{"metric", "scored", "mean"}, rows)
	if err != nil {
		return err
	}
	fmt.Print(out)

	if output.IsZero() {
		display.Success("Scored %d rows", len(result.Records))
	} else {
		display.Success("Scored %d rows, appended to %s", len(result.Records), output)
	}
	return nil
}

func runEvalMetrics(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	reg, err := metricRegistry(ws)
	if err != nil {
		return err
	}

	type metricInfo struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Required    []metric.Param `json:"required"`
	}
	list := reg.List()
	infos := make([]metricInfo, len(list))
	for i, m := range list {
		infos[i] = metricInfo{Name: m.Name(), Description: m.Description(), Required: m.Required()}
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(infos)
	}

	var rows [][]string
	for _, info := range infos {
		for i, p := range info.Required {
			name, desc := "", ""
			if i == 0 {
				name, desc = info.Name, info.Description
			}
			rows = append(rows, []string{name, desc, p.Name, p.Description})
		}
	}
	out, err := display.Table([]string{"metric", "description", "parameter", "meaning"}, rows)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
