package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// Server commands
var serverCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"servers"},
	Short:   "Manage workers",
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.ListServers(context.Background(), all)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tHEALTH\tPRIORITY\tRESTARTS\tCAPABILITIES")
		for _, s := range resp.Servers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				s.Name, s.Status, s.HealthStatus, s.Priority, s.RestartCount, strings.Join(s.Capabilities, ","))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n%d total, %d running, %d healthy\n",
			resp.Summary.Total, resp.Summary.Running, resp.Summary.Healthy)
		return nil
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status NAME",
	Short: "Show the full state of a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.ServerStatus(context.Background(), args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}

		fmt.Printf("Name:          %s\n", resp.Name)
		fmt.Printf("Status:        %s\n", resp.Status)
		fmt.Printf("Health:        %s\n", resp.HealthStatus)
		if resp.PID != 0 {
			fmt.Printf("PID:           %d\n", resp.PID)
		}
		if resp.Uptime != "" {
			fmt.Printf("Uptime:        %s\n", resp.Uptime)
		}
		fmt.Printf("Restarts:      %d\n", resp.RestartCount)
		if resp.LastError != "" {
			fmt.Printf("Last Error:    %s\n", resp.LastError)
		}
		if !resp.LastHealthCheck.IsZero() {
			fmt.Printf("Last Check:    %s\n", resp.LastHealthCheck.Format(time.RFC3339))
		}
		if resp.Definition != nil {
			fmt.Printf("Command:       %s %s\n", resp.Definition.Command, strings.Join(resp.Definition.Args, " "))
			fmt.Printf("Priority:      %d\n", resp.Definition.Priority)
			fmt.Printf("Capabilities:  %s\n", strings.Join(resp.Definition.Capabilities, ", "))
		}
		if len(resp.Tools) > 0 {
			fmt.Printf("Tools:         %s\n", strings.Join(resp.Tools, ", "))
		}
		return nil
	},
}

var serverStartCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.StartServer(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printAction(resp.Message, resp)
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.StopServer(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printAction(resp.Message, resp)
	},
}

var serverRestartCmd = &cobra.Command{
	Use:   "restart NAME",
	Short: "Stop a worker, wait for it to settle, and start it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.RestartServer(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printAction(resp.Message, resp)
	},
}

var serverLogsCmd = &cobra.Command{
	Use:   "logs NAME",
	Short: "Show captured worker output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, _ := cmd.Flags().GetInt("lines")

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.ServerLogs(context.Background(), args[0], lines)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}

		for _, l := range resp.Lines {
			fmt.Printf("%s [%s] %s\n", l.Timestamp.Format(time.RFC3339), l.Stream, l.Content)
		}
		return nil
	},
}

func printAction(message string, resp any) error {
	if outputJSON {
		return printJSON(resp)
	}
	fmt.Printf("✓ %s\n", message)
	return nil
}

func init() {
	serverCmd.AddCommand(serverListCmd)
	serverCmd.AddCommand(serverStatusCmd)
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverRestartCmd)
	serverCmd.AddCommand(serverConfigureCmd)
	serverCmd.AddCommand(serverResetCmd)
	serverCmd.AddCommand(serverLogsCmd)

	serverListCmd.Flags().BoolP("all", "a", false, "Include stopped and errored workers")
	serverLogsCmd.Flags().IntP("lines", "n", 100, "Number of lines to show")
}
