package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/race"
	"github.com/ppiankov/guardrace/internal/redact"
)

var (
	historyKind  string
	historyLimit int
	historyJSON  bool
	historyStats bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Only show runs with this outcome kind")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of recent runs to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print as JSON")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Print outcome counts instead of runs")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent guarded runs from the run store",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if historyStats {
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		if historyJSON {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "Total runs: %d  (avg %.0fms, %d producers cancelled)\n",
			stats.Total, stats.AvgElapsedMS, stats.ProducerCancelled)
		for _, kind := range race.Kinds {
			if n := stats.ByKind[string(kind)]; n > 0 {
				fmt.Fprintf(out, "  %-20s %d\n", kind, n)
			}
		}
		return nil
	}

	runs, err := store.List(ctx, historyKind, historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		data, _ := json.MarshalIndent(runs, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTRACE\tKIND\tELAPSED\tPROMPT\tDETAIL")
	for _, r := range runs {
		detail := r.Reason
		if detail == "" {
			detail = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.TraceID, r.Kind, r.ElapsedMS, redact.Preview(r.Prompt, 40), detail)
	}
	return tw.Flush()
}
