package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/evalanche/display"
	"github.com/teranos/evalanche/sym"
)

var usageSince time.Duration

// UsageCmd reports LLM usage recorded by prompt routines and judged metrics
var UsageCmd = &cobra.Command{
	Use:   "usage",
	Short: sym.Routine + " Show LLM usage and cost",
	Long: `Show LLM requests, tokens and cost recorded by prompt routines and
LLM-judged metrics.

Examples:
  evalanche usage                # Last 24 hours
  evalanche usage --since 168h   # Last week`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	UsageCmd.Flags().DurationVar(&usageSince, "since", 24*time.Hour, "Report usage over this period")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := cmd.Context()
	since := time.Now().Add(-usageSince)

	stats, err := ws.tracker.GetUsageStats(ctx, since)
	if err != nil {
		return err
	}
	breakdown, err := ws.tracker.GetModelBreakdown(ctx, since)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{
			"since":  since.UTC(),
			"stats":  stats,
			"models": breakdown,
		})
	}

	display.Header(sym.Routine, "LLM usage since "+since.Format(time.DateTime))
	display.KeyValue("requests", stats.TotalRequests)
	display.KeyValue("tokens", stats.TotalTokens)
	display.KeyValue("cost", fmt.Sprintf("$%.4f", stats.TotalCost))
	fmt.Println()

	if len(breakdown) == 0 {
		return nil
	}
	rows := make([][]string, len(breakdown))
	for i, b := range breakdown {
		rows[i] = []string{
			b.ModelName,
			b.ModelProvider,
			strconv.Itoa(b.RequestCount),
			strconv.Itoa(b.TotalTokens),
			fmt.Sprintf("$%.4f", b.TotalCost),
		}
	}
	out, err := display.Table([]string{"model", "provider", "requests", "tokens", "cost"}, rows)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
