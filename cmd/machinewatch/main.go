// Machinewatch discovers networked machines by UDP broadcast and keeps a
// record of what each one last reported.
//
// A single beacon is broadcast on the local subnet; every machine that
// answers within the collection window has its status reply parsed and
// upserted into the device store keyed by IP address. The same discovery
// cycle is available from the command line, the interactive monitor and
// the HTTP API.
//
// Usage:
//
//	machinewatch [command] [flags]
//
// See 'machinewatch --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/machinewatch/internal/config"
	"github.com/muurk/machinewatch/internal/logging"
	"github.com/muurk/machinewatch/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

// cfg is loaded before every command except those that manage the file itself
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "machinewatch",
	Short: "Machine discovery and status monitor",
	Long: `Discover machines on the local network by UDP broadcast and track
the status each one reports.

Every discovery cycle sends one beacon to the subnet broadcast address,
collects replies until the timeout elapses, and records each machine's
status, job and timers in the device store.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["config"] == "skip" {
			return logging.Initialize(logLevel)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := logLevel
		if level == "" && cmd.Annotations["logs"] == "config" {
			level = cfg.LogLevel
		}
		return logging.Initialize(level)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/machinewatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{"config": "skip"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("machinewatch %s\n", version.Full())
	},
}
