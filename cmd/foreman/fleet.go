package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cuemby/foreman/pkg/control"
	"github.com/cuemby/foreman/pkg/events"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health [NAME]",
	Short: "Evaluate worker health now",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.HealthCheck(context.Background(), name)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tHEALTH\tMESSAGE")
		for _, r := range resp.HealthResults {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.WorkerName, r.Status, r.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		s := resp.Summary
		fmt.Printf("\n%d checked: %d healthy, %d warning, %d error\n", s.Total, s.Healthy, s.Warnings, s.Errors)
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route CAPABILITY",
	Short: "Ask which worker should serve a capability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preferred, _ := cmd.Flags().GetString("prefer")
		tool, _ := cmd.Flags().GetString("tool")
		payload, _ := cmd.Flags().GetString("request")

		req := &control.RouteRequest{Capability: args[0], ToolName: tool}
		if preferred != "" {
			req.Preferences = &control.RoutePreferences{PreferredServer: preferred}
		}
		if payload != "" {
			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("--request must be valid JSON")
			}
			req.Request = json.RawMessage(payload)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.RouteRequest(context.Background(), req)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}

		fmt.Printf("✓ %s → %s\n", resp.Capability, resp.RoutedTo)
		fmt.Printf("  Request ID: %s\n", resp.RequestID)
		fmt.Printf("  Eligible: %s\n", strings.Join(resp.EligibleServers, ", "))
		return nil
	},
}

var capabilitiesCmd = &cobra.Command{
	Use:     "capabilities",
	Aliases: []string{"caps"},
	Short:   "List advertised capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.GetCapabilities(context.Background(), category)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CAPABILITY\tCATEGORY\tAVAILABLE\tSERVERS")
		for _, cp := range resp.Capabilities {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", cp.Name, cp.Category, cp.Available, strings.Join(cp.Servers, ","))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n%d capabilities, %d available\n", resp.Summary.Total, resp.Summary.Available)
		return nil
	},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show coordinator and fleet-wide counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.SystemOverview(context.Background())
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}

		co := resp.Coordinator
		fmt.Printf("Coordinator %s (version %s, pid %d, up %s)\n", co.InstanceID, co.Version, co.PID, co.Uptime)
		fmt.Println()
		wk := resp.Workers
		fmt.Printf("Workers:       %d total, %d running, %d starting, %d stopped, %d error\n",
			wk.Total, wk.Running, wk.Starting, wk.Stopped, wk.Errored)
		fmt.Printf("Processes:     %d\n", wk.Processes)
		h := resp.Health
		fmt.Printf("Health:        %d healthy, %d warning, %d error\n", h.Healthy, h.Warnings, h.Errors)
		fmt.Printf("Restarts:      %d\n", resp.TotalRestarts)
		fmt.Printf("Capabilities:  %d (%d available)\n", resp.Capabilities, resp.Available)
		if resp.EventsDropped > 0 {
			fmt.Printf("Events Dropped: %d\n", resp.EventsDropped)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event journal or follow live events",
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		limit, _ := cmd.Flags().GetInt("limit")
		worker, _ := cmd.Flags().GetString("worker")

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if follow {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.StreamEvents(ctx, worker, printEvent)
		}

		resp, err := c.ListEvents(context.Background(), limit)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}
		for _, ev := range resp.Events {
			if worker != "" && ev.Worker != worker {
				continue
			}
			printEvent(ev)
		}
		return nil
	},
}

func printEvent(ev *events.Event) {
	if outputJSON {
		_ = json.NewEncoder(os.Stdout).Encode(ev)
		return
	}

	line := fmt.Sprintf("%s  %-24s", ev.Timestamp.Format(time.RFC3339), ev.Type)
	if ev.Worker != "" {
		line += "  " + ev.Worker
	}
	line += "  " + ev.Message

	if len(ev.Metadata) > 0 {
		keys := make([]string, 0, len(ev.Metadata))
		for k := range ev.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%s", k, ev.Metadata[k])
		}
	}
	fmt.Println(line)
}

func init() {
	routeCmd.Flags().String("prefer", "", "Preferred server, used when eligible")
	routeCmd.Flags().String("tool", "", "Tool name to echo in the decision")
	routeCmd.Flags().String("request", "", "JSON request payload to carry")

	capabilitiesCmd.Flags().String("category", "", "Filter by category")

	eventsCmd.Flags().BoolP("follow", "F", false, "Stream live events")
	eventsCmd.Flags().IntP("limit", "n", 50, "Number of journal entries to show")
	eventsCmd.Flags().String("worker", "", "Only show events for this worker")
}
