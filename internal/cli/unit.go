package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/systemd"
)

var unitOpts systemd.UnitOptions

func init() {
	rootCmd.AddCommand(unitCmd)
	unitCmd.Flags().StringVar(&unitOpts.Binary, "binary", "/usr/local/bin/guardrace", "Path to the guardrace binary")
	unitCmd.Flags().IntVar(&unitOpts.Port, "port", 50061, "gRPC listen port")
	unitCmd.Flags().StringVar(&unitOpts.StateDir, "state-dir", "", "Writable directory for the audit log and run store")
	unitCmd.Flags().StringVar(&unitOpts.User, "user", "", "User to run the server as")
}

var unitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Print a systemd unit for the gate server",
	Long:  "Prints a hardened systemd unit running 'guardrace serve'. The --config flag,\nif given, is passed through. Reload with 'systemctl reload guardrace'.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		opts := unitOpts
		opts.ConfigPath = configPath
		fmt.Fprint(cmd.OutOrStdout(), systemd.ServeUnit(opts))
	},
}
