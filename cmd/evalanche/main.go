package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/evalanche/am"
	"github.com/teranos/evalanche/cmd/evalanche/commands"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
)

var rootCmd = &cobra.Command{
	Use:   "evalanche",
	Short: "evalanche - select evaluation data and run routines over it",
	Long: `evalanche - select evaluation data and run routines over it

Pick the rows to evaluate, from one dataset or from expected and actual
results joined on a key, run a routine over every row in parallel and
append the responses to a table, then score the rows with metrics.

Available commands:
  am       - Show and validate configuration
  catalog  - List schemas, tables, columns and routines
  sql      - Run a custom SQL query
  preview  - Show the rows a data selection resolves to
  pipeline - Run a routine over every row and append the results
  eval     - Score rows with metrics
  usage    - Show LLM usage and cost

Examples:
  evalanche catalog tables main
  evalanche preview --table EVAL.main.questions
  evalanche pipeline run --routine square_len --table EVAL.main.questions --output EVAL.main.results
  evalanche eval --manifest eval.toml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logJSON, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(logJSON, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if _, err := am.LoadFromFile(path); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default: am.toml cascade)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.CatalogCmd)
	rootCmd.AddCommand(commands.SQLCmd)
	rootCmd.AddCommand(commands.PreviewCmd)
	rootCmd.AddCommand(commands.PipelineCmd)
	rootCmd.AddCommand(commands.EvalCmd)
	rootCmd.AddCommand(commands.UsageCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Cleanup()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintln(os.Stderr, "Hint:", strings.ReplaceAll(hints, "\n--\n", "\nHint: "))
		}
		os.Exit(1)
	}
}
