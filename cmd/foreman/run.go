package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/foreman/pkg/config"
	"github.com/cuemby/foreman/pkg/coordinator"
	"github.com/cuemby/foreman/pkg/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run -f FLEET",
	Short: "Run a coordinator for a fleet file",
	Long: `Run a Foreman coordinator.

The fleet file (YAML or TOML, chosen by extension) declares coordinator
settings and the worker definitions. The coordinator serves the control
API until interrupted, then stops every worker.

Examples:
  # Run a fleet and start every worker
  foreman run -f fleet.yaml --autostart

  # Override the API address and log verbosity
  foreman run -f fleet.toml --api-addr 0.0.0.0:7070 --log-level debug`,
	RunE: runCoordinator,
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "Fleet file (required)")
	runCmd.Flags().String("api-addr", "", "Override coordinator.api_addr")
	runCmd.Flags().String("data-dir", "", "Override coordinator.data_dir")
	runCmd.Flags().String("log-level", "", "Override coordinator.log_level (debug, info, warn, error)")
	runCmd.Flags().Bool("log-json", false, "Log as JSON")
	runCmd.Flags().Bool("autostart", false, "Start every worker once the coordinator is up")
	_ = runCmd.MarkFlagRequired("file")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	cfg, err := config.Load(filename)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("api-addr"); v != "" {
		cfg.Coordinator.APIAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Coordinator.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Coordinator.LogLevel = v
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Coordinator.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}
	if cmd.Flags().Changed("autostart") {
		cfg.Coordinator.Autostart, _ = cmd.Flags().GetBool("autostart")
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Coordinator.LogLevel),
		JSONOutput: cfg.Coordinator.LogJSON,
		Output:     os.Stderr,
	})

	coord, err := coordinator.New(cfg, Version)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %v", err)
	}

	fmt.Printf("✓ Coordinator running on %s with %d workers\n", coord.Addr(), len(cfg.Workers))
	fmt.Println("Press Ctrl+C to stop.")

	<-ctx.Done()
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Coordinator.ShutdownTimeout+cfg.Coordinator.StopGracePeriod)
	defer cancel()
	if err := coord.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown cleanly: %v", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
