package main

import (
	"fmt"

	"github.com/cuemby/foreman/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate -f FLEET",
	Short: "Check a fleet file without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		cfg, err := config.Load(filename)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(cfg)
		}

		fmt.Printf("✓ %s is valid\n", filename)
		fmt.Printf("  API Address: %s\n", cfg.Coordinator.APIAddr)
		fmt.Printf("  Health Interval: %s\n", cfg.Coordinator.HealthInterval)
		if cfg.Coordinator.DataDir != "" {
			fmt.Printf("  Data Directory: %s\n", cfg.Coordinator.DataDir)
		}
		fmt.Printf("  Workers: %d\n", len(cfg.Workers))
		for _, w := range cfg.Workers {
			fmt.Printf("    - %s (priority %d): %v\n", w.Name, w.Priority, w.Capabilities)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringP("file", "f", "", "Fleet file (required)")
	_ = validateCmd.MarkFlagRequired("file")
}
