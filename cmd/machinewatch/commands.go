package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/muurk/machinewatch/internal/app"
	"github.com/muurk/machinewatch/internal/config"
	"github.com/muurk/machinewatch/internal/protocol"
	"github.com/muurk/machinewatch/internal/reconcile"
	"github.com/muurk/machinewatch/internal/store"
	"github.com/muurk/machinewatch/internal/tui"
	"github.com/muurk/machinewatch/internal/ui"
)

// Discovery flags
var (
	broadcastIP  string
	scanTimeout  time.Duration
	outputFormat string
	persist      bool
	refresh      time.Duration
)

// Serve flags
var (
	serveHost    string
	servePort    int
	pollInterval time.Duration
)

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// addScanFlags registers the flags shared by commands that run cycles
func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&broadcastIP, "broadcast", "", "Broadcast address to scan (default: detected from the primary interface)")
	cmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Collection window (default: discovery.timeout from config)")
}

// scanRequest builds the cycle request from config and flags
func scanRequest() reconcile.Request {
	req := app.DefaultRequest(cfg)
	if broadcastIP != "" {
		req.BroadcastIP = broadcastIP
	}
	if scanTimeout > 0 {
		req.Timeout = scanTimeout
	}
	return req
}

func checkFormat() error {
	switch outputFormat {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected table or json)", outputFormat)
	}
}

// discoverCmd runs a single discovery cycle
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery cycle",
	Long: `Broadcast a discovery beacon, wait for replies and print every
machine that answered.

Each reply is parsed and upserted into the configured device store, so
the result is also visible to 'machinewatch devices' and the HTTP API.
Use --persist=false to scan without touching the store.`,
	Example: `  # Scan the detected subnet with the configured timeout
  machinewatch discover

  # Scan a specific broadcast address for 2 seconds
  machinewatch discover --broadcast 192.168.10.255 --timeout 2s

  # JSON output for scripting
  machinewatch discover --format json`,
	RunE: runDiscover,
}

func init() {
	addScanFlags(discoverCmd)
	discoverCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")
	discoverCmd.Flags().BoolVar(&persist, "persist", true, "Record results in the device store")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	if !persist {
		cfg.Database.Driver = config.DatabaseMemory
		cfg.Cache.Enabled = false
		cfg.Events.Driver = config.EventsNone
	}

	req := scanRequest()
	if outputFormat == "table" {
		target := req.BroadcastIP
		if target == "" {
			target = "auto"
		}
		fmt.Println(ui.NewHeader("Discovery", "machinewatch discover",
			ui.Param{Key: "Broadcast", Value: target},
			ui.Param{Key: "Port", Value: fmt.Sprint(cfg.Discovery.Port)},
			ui.Param{Key: "Timeout", Value: req.Timeout.String()},
		).Render())
	}

	var runner reconcile.Runner
	a := app.New(cfg, fx.Populate(&runner))

	return app.Run(cmd.Context(), a, func(ctx context.Context) error {
		start := time.Now()
		res, err := runner.RunCycle(ctx, req)
		if err != nil {
			if outputFormat == "table" {
				fmt.Println(ui.RenderError("Discovery failed", err, ui.DiscoveryTips...))
			}
			return err
		}

		if outputFormat == "json" {
			return printJSON(res)
		}

		rows := make([]ui.Row, 0, len(res.Devices))
		for _, d := range res.Devices {
			rows = append(rows, ui.Row{
				IPAddress:   d.IPAddress,
				Port:        d.Port,
				Status:      d.MachineStatus,
				LastSeen:    res.FinishedAt,
				RawResponse: d.RawResponse,
			})
		}
		if len(rows) > 0 {
			fmt.Println(ui.RenderDeviceTable(rows))
		}
		fmt.Println(ui.RenderSummary(res.Message(), res.DiscoveredCount, time.Since(start)))
		return nil
	})
}

// devicesCmd lists stored devices
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices in the store",
	Long: `List every machine recorded in the device store with the status
it reported when it was last seen.`,
	Example: `  machinewatch devices
  machinewatch devices --format json`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}

	var st store.Store
	a := app.New(cfg, fx.Populate(&st))

	return app.Run(cmd.Context(), a, func(ctx context.Context) error {
		records, err := st.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(records)
		}

		if len(records) == 0 {
			fmt.Println(ui.MutedStyle.Render("No devices recorded. Run 'machinewatch discover' first."))
			return nil
		}

		rows := make([]ui.Row, 0, len(records))
		for _, r := range records {
			rows = append(rows, rowFromRecord(r))
		}
		fmt.Println(ui.RenderDeviceTable(rows))
		return nil
	})
}

func rowFromRecord(r *store.Record) ui.Row {
	return ui.Row{
		IPAddress: r.IPAddress,
		Port:      r.Port,
		Status: protocol.MachineStatus{
			Status:             r.Status,
			RunningTimeMinutes: r.RunningTimeMinutes,
			JobName:            r.JobName,
			BalanceTimeMinutes: r.BalanceTimeMinutes,
			Filename:           r.Filename,
		},
		LastSeen:    r.LastSeen,
		RawResponse: r.RawResponse,
	}
}

// watchCmd launches the interactive monitor
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor machines interactively",
	Long: `Launch a live terminal view that runs a discovery cycle every
refresh interval and shows every machine seen since it started.

Press r to scan immediately and q to quit.`,
	Example: `  machinewatch watch
  machinewatch watch --refresh 30s --broadcast 10.0.0.255`,
	RunE: runWatch,
}

func init() {
	addScanFlags(watchCmd)
	watchCmd.Flags().DurationVar(&refresh, "refresh", 15*time.Second, "Interval between scans (0 = manual only)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return fmt.Errorf("watch needs an interactive terminal; use 'machinewatch discover' instead")
	}

	var runner reconcile.Runner
	a := app.New(cfg, fx.Populate(&runner))

	return app.Run(cmd.Context(), a, func(ctx context.Context) error {
		model := tui.NewMonitorModel(runner, scanRequest(), refresh)
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("monitor error: %w", err)
		}
		return nil
	})
}

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API and, when a poll interval is set, run discovery
cycles in the background.

Endpoints:
  GET /api/db-check                  store health
  GET /api/discover-devices          run one cycle (?broadcastIp=, ?timeout= in ms)
  GET /api/discovered-devices        list stored devices
  GET /api/discovered-devices/:ip    one stored device
  GET /api/discovery/stream          websocket feed of cycle results

The server advertises itself over mDNS unless advertise.enabled is false.`,
	Example: `  # Listen on the configured address
  machinewatch serve

  # Poll every minute on a custom port
  machinewatch serve --port 8080 --poll-interval 1m`,
	Annotations: map[string]string{"logs": "config"},
	RunE:        runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default: http.host from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: http.port from config)")
	serveCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Run discovery on this interval (default: discovery.poll_interval from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHost != "" {
		cfg.HTTP.Host = serveHost
	}
	if servePort != 0 {
		cfg.HTTP.Port = servePort
	}
	if pollInterval > 0 {
		cfg.Discovery.PollInterval = pollInterval
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a := app.New(cfg, app.ServeModule)

	startCtx, cancel := context.WithTimeout(cmd.Context(), a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	select {
	case <-a.Wait():
	case <-cmd.Context().Done():
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), a.StopTimeout())
	defer cancelStop()
	return a.Stop(stopCtx)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
