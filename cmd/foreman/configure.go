package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/foreman/pkg/control"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var serverConfigureCmd = &cobra.Command{
	Use:   "configure NAME",
	Short: "Update a worker definition",
	Long: `Merge a partial definition into a registered worker.

The patch is read from a YAML file, from flags, or both (flags win). The
running process is not restarted; routing sees the change at once and the
process picks it up on its next start.

Examples:
  # Raise a worker's routing preference
  foreman server configure search --priority 1

  # Apply a patch file
  foreman server configure search -f patch.yaml

patch.yaml:
  capabilities: [web_search, web_scrape]
  env:
    LOG_LEVEL: debug`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigure,
}

func init() {
	serverConfigureCmd.Flags().StringP("file", "f", "", "YAML patch file")
	serverConfigureCmd.Flags().Int("priority", 0, "Routing priority (lower is preferred)")
	serverConfigureCmd.Flags().StringSlice("capabilities", nil, "Replace the capability list")
	serverConfigureCmd.Flags().String("description", "", "Human readable description")
	serverConfigureCmd.Flags().String("category", "", "Category hint for capability grouping")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	patch, err := buildPatch(cmd)
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return fmt.Errorf("nothing to configure: pass -f or at least one field flag")
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.ConfigureServer(context.Background(), args[0], patch)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(resp)
	}

	printDefinition(resp)
	return nil
}

var serverResetCmd = &cobra.Command{
	Use:   "reset NAME",
	Short: "Discard configured changes to a worker",
	Long: `Return a worker to the definition from the fleet file.

Changes made with 'foreman server configure' are persisted and win over the
fleet file on every later start. Reset drops them, both in the running
coordinator and in its data directory. The process is not restarted.

Examples:
  foreman server reset search`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.ResetServer(context.Background(), args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}
		printDefinition(resp)
		return nil
	},
}

func printDefinition(resp *control.ConfigureResponse) {
	fmt.Printf("✓ %s\n", resp.Message)
	if resp.Definition != nil {
		fmt.Printf("  Priority: %d\n", resp.Definition.Priority)
		fmt.Printf("  Capabilities: %s\n", strings.Join(resp.Definition.Capabilities, ", "))
	}
}

// buildPatch reads the optional patch file and overlays flag values
func buildPatch(cmd *cobra.Command) (*types.DefinitionPatch, error) {
	patch := &types.DefinitionPatch{}

	if filename, _ := cmd.Flags().GetString("file"); filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %v", err)
		}
		if err := yaml.Unmarshal(data, patch); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("priority") {
		v, _ := flags.GetInt("priority")
		patch.Priority = &v
	}
	if flags.Changed("capabilities") {
		patch.Capabilities, _ = flags.GetStringSlice("capabilities")
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		patch.Description = &v
	}
	if flags.Changed("category") {
		v, _ := flags.GetString("category")
		patch.Category = &v
	}
	return patch, nil
}
