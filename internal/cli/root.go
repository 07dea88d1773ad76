package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/logging"
)

var (
	configPath string
	logLevel   string
	noColor    bool

	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "guardrace",
	Short: "Race content guards against generation",
	Long: "Starts generation and guard evaluation at the same time. A rejected request\n" +
		"cancels the in-flight generation and never returns its output; an accepted\n" +
		"one costs no extra latency beyond the slower of the two.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(os.Stderr, logging.Options{Level: logLevel, NoColor: noColor})
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.guardrace/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored log output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
