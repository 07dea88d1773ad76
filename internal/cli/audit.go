package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/audit"
	"github.com/ppiankov/guardrace/internal/config"
)

var (
	replayTrace  string
	replayKind   string
	replaySince  time.Duration
	replayFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditReplayCmd)
	auditReplayCmd.Flags().StringVar(&replayTrace, "trace", "", "Only entries with this trace ID")
	auditReplayCmd.Flags().StringVar(&replayKind, "kind", "", "Only entries with this outcome kind")
	auditReplayCmd.Flags().DurationVar(&replaySince, "since", 0, "Only entries newer than this (e.g. 1h)")
	auditReplayCmd.Flags().StringVar(&replayFormat, "format", "text", "Output format: text or json")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained outcome log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the audit log",
	Long: "Walks the JSONL audit log and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.\n" +
		"Defaults to audit.path from the config.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditVerify,
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay [path]",
	Short: "Replay recorded race outcomes as a timeline",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditReplay,
}

func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.Audit.Path == "" {
		return "", fmt.Errorf("no audit log configured (audit.path is empty)")
	}
	return cfg.Audit.Path, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return fmt.Errorf("audit chain broken")
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	filter := audit.ReplayFilter{TraceID: replayTrace, Kind: replayKind}
	if replaySince > 0 {
		filter.From = time.Now().Add(-replaySince)
	}
	result, err := audit.Replay(path, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch replayFormat {
	case "json":
		s, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	case "text":
		fmt.Fprint(out, audit.FormatTimeline(result))
	default:
		return fmt.Errorf("unknown format %q (use text or json)", replayFormat)
	}
	return nil
}
