package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/evalanche/display"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/pipeline"
	"github.com/teranos/evalanche/session"
	"github.com/teranos/evalanche/sym"
)

var (
	pipelineFlags        selectionFlags
	pipelineRoutine      string
	pipelineOutput       string
	pipelineCreateOutput bool
	pipelineWorkers      int
	pipelineBatchSize    int
	pipelineRunsLimit    int
)

// PipelineCmd groups pipeline commands
var PipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: sym.Pipeline + " Run a routine over every row of a selection",
	Long: sym.Pipeline + ` pipeline — Run a routine over every row and append the results

A run tags every source row with a unique ROW_ID, reads the rows in
batches, calls the routine once per row on a pool bounded by the CPU
count, joins each response back to its row and appends the batch to the
output table. Runs are recorded and listed by "pipeline runs".

Examples:
  evalanche pipeline run --routine square_len --table EVAL.main.questions \
                         --output EVAL.main.results --create-output
  evalanche pipeline runs
  evalanche pipeline show <run-id>`,
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a pipeline run and wait for it to finish",
	Args:  cobra.NoArgs,
	RunE:  runPipelineRun,
}

var pipelineRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runPipelineRuns,
}

var pipelineShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runPipelineShow,
}

func init() {
	pipelineFlags.register(pipelineRunCmd)
	pipelineRunCmd.Flags().StringVarP(&pipelineRoutine, "routine", "r", "", "Routine to call once per row (required)")
	pipelineRunCmd.Flags().StringVarP(&pipelineOutput, "output", "o", "", "Output table, catalog.schema.table (required)")
	pipelineRunCmd.Flags().BoolVar(&pipelineCreateOutput, "create-output", false, "Create the output table when it does not exist")
	pipelineRunCmd.Flags().IntVarP(&pipelineWorkers, "workers", "w", 0, "Concurrent calls per batch (default: pipeline.workers, else CPU count)")
	pipelineRunCmd.Flags().IntVar(&pipelineBatchSize, "batch-size", 0, "Rows per batch (default: pipeline.batch_size)")
	pipelineRunCmd.MarkFlagRequired("routine")
	pipelineRunCmd.MarkFlagRequired("output")

	pipelineRunsCmd.Flags().IntVarP(&pipelineRunsLimit, "limit", "l", 20, "Number of runs to show (0 = all)")

	PipelineCmd.AddCommand(pipelineRunCmd)
	PipelineCmd.AddCommand(pipelineRunsCmd)
	PipelineCmd.AddCommand(pipelineShowCmd)
}

func runPipelineRun(cmd *cobra.Command, args []string) error {
	sel, err := pipelineFlags.selection()
	if err != nil {
		return err
	}
	output, err := session.ParseTableRef(pipelineOutput)
	if err != nil {
		return err
	}

	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := cmd.Context()
	source, err := sel.Resolve(ctx, ws.session, 0)
	if err != nil {
		return errors.WrapConfiguration(err, "input data")
	}

	cfg := pipeline.ConfigFrom(ws.cfg.GetPipelineConfig())
	if pipelineWorkers > 0 {
		cfg.Workers = pipelineWorkers
	}
	if pipelineBatchSize > 0 {
		cfg.BatchSize = pipelineBatchSize
	}

	if pipelineCreateOutput {
		if err := createPipelineOutput(cmd, ws, source, output, cfg); err != nil {
			return err
		}
	}

	runner := pipeline.NewRunner(ws.session, ws.store, cfg, ws.logger)
	if !display.ShouldOutputJSON(cmd) {
		display.Info("%s %s over %s with %d workers", sym.Pipeline, pipelineRoutine, output, runner.Workers())
	}

	run, err := runner.Run(ctx, pipeline.Request{
		Routine: pipelineRoutine,
		Source:  source,
		Output:  output,
	})
	if run == nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		if jerr := display.OutputJSON(run); jerr != nil {
			return jerr
		}
		return err
	}
	printRun(run)
	return err
}

// createPipelineOutput creates output with the columns a run appends, unless
// it already exists. cfg carries the configured column defaults.
func createPipelineOutput(cmd *cobra.Command, ws *workspace, source *session.Frame, output session.TableRef, cfg pipeline.Config) error {
	ctx := cmd.Context()
	exists, err := ws.session.TableExists(ctx, output)
	if err != nil || exists {
		return err
	}

	tagged, err := pipeline.TagRows(source, cfg.RowIDColumn)
	if err != nil {
		return err
	}
	if err := ws.session.CreateTable(ctx, output, pipeline.OutputColumns(tagged.Columns(), cfg.ResponseColumn)); err != nil {
		return err
	}
	if !display.ShouldOutputJSON(cmd) {
		display.Info("Created %s", output)
	}
	return nil
}

func runPipelineRuns(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	runs, err := ws.store.List(cmd.Context(), pipelineRunsLimit)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(runs)
	}
	if len(runs) == 0 {
		display.Info("No runs yet")
		return nil
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.ID[:8],
			r.Routine,
			r.Output,
			display.State(string(r.State)),
			strconv.Itoa(r.Batches),
			strconv.Itoa(r.RowsAppended),
			r.StartedAt.Local().Format(time.DateTime),
			display.Duration(r.Duration()),
		}
	}
	out, err := display.Table([]string{"run", "routine", "output", "state", "batches", "rows", "started", "duration"}, rows)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runPipelineShow(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	run, err := ws.store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(run)
	}
	printRun(run)
	return nil
}

func printRun(run *pipeline.Run) {
	display.Header(sym.Pipeline, "Run "+run.ID)
	display.KeyValue("state", display.State(string(run.State)))
	display.KeyValue("routine", run.Routine)
	display.KeyValue("output", run.Output)
	display.KeyValue("batches", run.Batches)
	display.KeyValue("rows read", run.RowsRead)
	display.KeyValue("rows appended", run.RowsAppended)
	display.KeyValue("duration", display.Duration(run.Duration()))
	if run.Error != "" {
		display.KeyValue("error", run.Error)
	}
}
