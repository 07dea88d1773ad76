package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/client"
	"github.com/ppiankov/guardrace/internal/config"
	"github.com/ppiankov/guardrace/internal/gate"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/race"
)

var (
	checkRemote string
	checkJSON   bool
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkRemote, "remote", "", "Ask a guardrace server at this address")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the verdict as JSON")
}

var checkCmd = &cobra.Command{
	Use:   "check <text>",
	Short: "Evaluate text with the guard only (dry-run)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

type checkOutput struct {
	Decision  model.Decision `json:"decision"`
	Reason    string         `json:"reason,omitempty"`
	ElapsedMS int64          `json:"elapsed_ms"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	start := time.Now()

	v, err := evaluateText(cmd.Context(), text)
	if err != nil {
		return err
	}

	out := checkOutput{Decision: model.Allow, ElapsedMS: time.Since(start).Milliseconds()}
	if !v.Accepted {
		out.Decision = model.Deny
		out.Reason = v.Reason
	}

	w := cmd.OutOrStdout()
	if checkJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(w, string(data))
	} else if out.Reason != "" {
		fmt.Fprintf(w, "%s: %s\n", out.Decision, out.Reason)
	} else {
		fmt.Fprintln(w, out.Decision)
	}

	if out.Decision == model.Deny {
		return fmt.Errorf("denied")
	}
	return nil
}

func evaluateText(ctx context.Context, text string) (race.Verdict, error) {
	if checkRemote != "" {
		c, err := client.New(checkRemote)
		if err != nil {
			return race.Verdict{}, err
		}
		defer c.Close()
		return c.Check(ctx, text)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return race.Verdict{}, err
	}
	g, err := gate.BuildGuard(cfg)
	if err != nil {
		return race.Verdict{}, err
	}
	return gate.New(g, nil, gate.Options{Race: cfg.Race.Options(), Logger: logger}).Check(ctx, text)
}
