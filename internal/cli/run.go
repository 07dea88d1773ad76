package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/client"
	"github.com/ppiankov/guardrace/internal/gate"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/race"
)

var (
	runSystem    string
	runRemote    string
	runGuardAddr string
	runJSON      bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runSystem, "system", "", "System prompt")
	runCmd.Flags().StringVar(&runRemote, "remote", "", "Run on a guardrace server at this address instead of locally")
	runCmd.Flags().StringVar(&runGuardAddr, "guard-addr", "", "Generate locally but race the guard of a guardrace server at this address")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full result as JSON")
}

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Generate a response while the guard evaluates the prompt",
	Long: "Starts the configured producer and guard concurrently. Output is printed only\n" +
		"if the guard accepts; a rejection cancels generation and exits non-zero.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := model.NewRequest(strings.Join(args, " "), runSystem)
	if runRemote != "" {
		return runRemoteGenerate(ctx, cmd, req)
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if runGuardAddr != "" {
		c, err := client.New(runGuardAddr)
		if err != nil {
			return err
		}
		defer c.Close()
		rt.gate.SetGuard(c.Guard())
	}

	res, err := rt.gate.Generate(ctx, req)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func runRemoteGenerate(ctx context.Context, cmd *cobra.Command, req model.Request) error {
	c, err := client.New(runRemote)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Generate(ctx, req)
	if err != nil {
		return err
	}
	return printResult(cmd, gate.Result{
		TraceID:           resp.TraceID,
		RequestID:         resp.RequestID,
		Kind:              race.Kind(resp.Kind),
		Content:           resp.Content,
		Model:             resp.Model,
		Reason:            resp.Reason,
		Error:             resp.Error,
		Timeout:           resp.Timeout,
		ProducerCancelled: resp.ProducerCancelled,
		ElapsedMS:         resp.ElapsedMS,
		Path:              resp.Path,
	})
}

func printResult(cmd *cobra.Command, res gate.Result) error {
	out := cmd.OutOrStdout()
	if runJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else if res.OK() {
		fmt.Fprintln(out, res.Content)
	}

	switch res.Kind {
	case race.Completed:
		return nil
	case race.Blocked:
		return fmt.Errorf("blocked: %s (trace %s)", res.Reason, res.TraceID)
	default:
		return fmt.Errorf("%s: %s (trace %s)", res.Kind, res.Error, res.TraceID)
	}
}
