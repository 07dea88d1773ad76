package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve guarded generation as MCP tools over stdio",
	Long:  "Exposes guardrace_generate, guardrace_check and guardrace_history to MCP clients.\nLogs go to stderr; stdout carries the protocol.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	mcp.Version = version
	return mcp.New(rt.gate, rt.store).Run(ctx)
}
