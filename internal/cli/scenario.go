package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/scenario"
)

var scenarioFormat string

func init() {
	rootCmd.AddCommand(scenarioCmd)
	scenarioCmd.Flags().StringVar(&scenarioFormat, "format", "text", "Output format: text or json")
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario [file...]",
	Short: "Run race scenario files",
	Long: "Runs each scenario file's cases through the race coordinator and checks the\n" +
		"outcome kind, reason and elapsed time. With no files the built-in races run.\n" +
		"Exits 1 if any case fails.",
	RunE: runScenario,
}

func runScenario(cmd *cobra.Command, args []string) error {
	if scenarioFormat != "text" && scenarioFormat != "json" {
		return fmt.Errorf("unknown format %q (use text or json)", scenarioFormat)
	}

	var results []*scenario.RunResult
	if len(args) == 0 {
		results = append(results, scenario.Run(cmd.Context(), scenario.Builtin()))
	}
	for _, path := range args {
		r, err := scenario.LoadAndRun(cmd.Context(), path)
		if err != nil {
			return err
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	if scenarioFormat == "json" {
		s, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	} else {
		fmt.Fprint(out, scenario.FormatText(results))
	}

	failed := 0
	for _, r := range results {
		failed += r.Failed
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario case(s) failed", failed)
	}
	return nil
}
