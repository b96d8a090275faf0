package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/machinewatch/internal/config"
	"github.com/muurk/machinewatch/internal/discovery"
	"github.com/muurk/machinewatch/internal/logging"
	"github.com/muurk/machinewatch/internal/simulator"
	"github.com/muurk/machinewatch/internal/ui"
)

// Simulator flags
var (
	simListen  string
	simJob     string
	simFile    string
	simJobTime time.Duration
	simStatus  string
	simRaw     string
)

// Browse flags
var browseTimeout time.Duration

// Config flags
var forceInit bool

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// simulateCmd answers discovery beacons like a machine would
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a machine answering discovery beacons",
	Long: `Listen on the discovery port and answer every beacon with a status
reply, the way a networked machine does.

The simulated job starts when the command starts. Running time grows and
balance time shrinks until the job completes, after which the machine
reports IDLE. Use --raw to send a fixed reply verbatim, for example to
exercise the parser with malformed text.`,
	Example: `  # Answer beacons on the configured discovery port
  machinewatch simulate

  # Run on another host port with a short job
  machinewatch simulate --listen :3001 --job bracket --job-time 10m

  # Send a malformed reply
  machinewatch simulate --raw "Status:RUNNING RunningTime:"`,
	Annotations: map[string]string{"logs": "config"},
	RunE:        runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simListen, "listen", "", "UDP address to listen on (default: :<discovery.port>)")
	simulateCmd.Flags().StringVar(&simJob, "job", "DEMO-JOB", "Job name to report")
	simulateCmd.Flags().StringVar(&simFile, "file", "demo.nc", "Program file to report")
	simulateCmd.Flags().DurationVar(&simJobTime, "job-time", 90*time.Minute, "Length of the simulated job")
	simulateCmd.Flags().StringVar(&simStatus, "status", "", "Status reported while the job runs (default RUNNING)")
	simulateCmd.Flags().StringVar(&simRaw, "raw", "", "Fixed reply text sent instead of the simulated status")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	addr := simListen
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Discovery.Port)
	}

	machine := simulator.NewMachine(simJob, simFile, simJobTime)
	machine.Status = simStatus
	machine.Override = simRaw

	ctx := cmd.Context()
	responder, err := simulator.Listen(ctx, addr, []byte(cfg.Discovery.Beacon), machine.Reply)
	if err != nil {
		return err
	}
	defer responder.Close()

	fmt.Println(ui.NewHeader("Simulator", "machinewatch simulate",
		ui.Param{Key: "Listen", Value: responder.Addr().String()},
		ui.Param{Key: "Beacon", Value: cfg.Discovery.Beacon},
		ui.Param{Key: "Job", Value: fmt.Sprintf("%s (%s)", simJob, simJobTime)},
	).Render())
	fmt.Println(ui.MutedStyle.Render("Answering beacons. Press Ctrl+C to stop."))

	err = responder.Serve(ctx)
	logging.Info("Simulator stopped", zap.Int64("replies", responder.Replies()))
	fmt.Printf("\n%s %d beacon(s) answered\n", ui.SuccessMarker, responder.Replies())
	return err
}

// serversCmd lists machinewatch servers advertised on the network
var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Find machinewatch servers on the network",
	Long: `Browse mDNS for machinewatch servers started with 'machinewatch serve'
and print their API addresses.`,
	Example: `  machinewatch servers
  machinewatch servers --timeout 10s`,
	Annotations: map[string]string{"config": "skip"},
	RunE:        runServers,
}

func init() {
	serversCmd.Flags().DurationVar(&browseTimeout, "timeout", 3*time.Second, "How long to listen for advertisements")
}

func runServers(cmd *cobra.Command, args []string) error {
	fmt.Printf("Browsing for machinewatch servers (timeout: %s)...\n\n", browseTimeout)

	servers, err := discovery.BrowseServers(cmd.Context(), browseTimeout)
	if err != nil {
		return fmt.Errorf("browse failed: %w", err)
	}

	if len(servers) == 0 {
		fmt.Println("No servers found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Check that 'machinewatch serve' is running with advertise.enabled")
		fmt.Println("  - mDNS does not cross subnets; browse from the same network")
		fmt.Println("  - Try increasing --timeout")
		return nil
	}

	fmt.Printf("Found %d server(s):\n\n", len(servers))
	for i, s := range servers {
		fmt.Printf("%d. %s\n", i+1, s.Instance)
		fmt.Printf("   URL:  %s\n", s.BaseURL())
		if v := s.Metadata["version"]; v != "" {
			fmt.Printf("   Version: %s\n", v)
		}
		if p := s.Metadata["discovery_port"]; p != "" {
			fmt.Printf("   Discovery port: %s\n", p)
		}
		fmt.Println()
	}
	return nil
}

// configCmd groups the config file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Example: `  machinewatch config init
  machinewatch config init --config ./machinewatch.yaml --force`,
	Annotations: map[string]string{"config": "skip"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			p, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			path = p
		}

		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cannot access config file: %w", err)
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.SuccessMarker, path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after the file, defaults and MACHINEWATCH_*
environment overrides have been merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}
