package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/config"
	"github.com/ppiankov/guardrace/internal/server"
)

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 50061, "gRPC listen port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC gate server",
	Long: "Runs guardrace as a shared gate over gRPC. Clients submit prompts for guarded\n" +
		"generation or guard-only checks. The guard is hot-reloaded when the config or\n" +
		"denylist file changes.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := openRuntime(ctx)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer rt.Close()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	srv := server.New(rt.gate, server.Config{Port: servePort, ConfigPath: path, Logger: logger})

	reloader, err := server.NewReloader(srv, []string{path, rt.cfg.Guard.Denylist})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	} else {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				if err := srv.Reload(); err != nil {
					fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
				}
				continue
			}
			fmt.Fprintln(os.Stderr, "\nShutting down gate server...")
			cancel()
			srv.GracefulStop()
			return
		}
	}()

	fmt.Fprintf(os.Stderr, "guardrace gate server listening on :%d\n", servePort)
	fmt.Fprintf(os.Stderr, "Producer: %s  Guard timeout: %s  Config: %s\n\n",
		rt.cfg.Producer.Kind, rt.cfg.Race.GuardTimeout.Std(), rt.hash)

	return srv.Serve()
}
