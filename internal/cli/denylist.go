package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/config"
	"github.com/ppiankov/guardrace/internal/denylist"
)

var denylistJSON bool

func init() {
	rootCmd.AddCommand(denylistCmd)
	denylistCmd.Flags().BoolVar(&denylistJSON, "json", false, "Print the patterns as JSON")
}

var denylistCmd = &cobra.Command{
	Use:   "denylist",
	Short: "Show the content patterns the guard enforces",
	Long: `Loads the denylist named by guard.denylist in the config and prints its
patterns. Built-in patterns are shown when the file does not exist. An
invalid pattern in the file is reported as an error.`,
	Args: cobra.NoArgs,
	RunE: runDenylist,
}

type denylistOutput struct {
	Source   string         `json:"source"`
	Count    int            `json:"count"`
	Patterns map[string]any `json:"patterns"`
}

func runDenylist(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	dl, err := denylist.Load(cfg.Guard.Denylist)
	if err != nil {
		return err
	}

	out := denylistOutput{
		Source:   denylistSource(cfg.Guard.Denylist),
		Count:    dl.Len(),
		Patterns: dl.ToMap(),
	}

	w := cmd.OutOrStdout()
	if denylistJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "Denylist: %s (%d patterns)\n", out.Source, out.Count)
	for _, category := range []string{"phrases", "globs", "regexes"} {
		patterns, _ := out.Patterns[category].([]string)
		if len(patterns) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s:\n", category)
		for _, p := range patterns {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
	return nil
}

func denylistSource(path string) string {
	if path == "" {
		path = denylist.DefaultPath()
	}
	if path == "" {
		return "built-in"
	}
	if _, err := os.Stat(path); err != nil {
		return "built-in (" + path + " not found)"
	}
	return path
}
