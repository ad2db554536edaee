package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/foreman/pkg/client"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	coordinatorAddr string
	outputJSON      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Foreman - worker process supervisor and capability router",
	Long: `Foreman launches a fleet of long-running worker processes, tracks
their lifecycle and health, and routes capability requests to the best
running, healthy worker.

Start a coordinator with 'foreman run -f fleet.yaml', then use the other
commands to operate it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Foreman version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	defaultAddr := os.Getenv("FOREMAN_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:7070"
	}
	rootCmd.PersistentFlags().StringVar(&coordinatorAddr, "addr", defaultAddr, "Coordinator API address (env FOREMAN_ADDR)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print raw JSON responses")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(eventsCmd)
}

// newClient connects to the coordinator named by --addr
func newClient() (*client.Client, error) {
	c, err := client.NewClient(coordinatorAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator: %v", err)
	}
	return c, nil
}

// printJSON writes v as indented JSON to stdout
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
