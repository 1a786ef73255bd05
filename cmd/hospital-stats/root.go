package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/config"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var (
	configPath string
	jsonOutput bool

	// cfg is loaded once per invocation before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "hospital-stats",
	Short:        "Offline-first encounter capture and monthly statistics",
	Long:         "Record therapist-patient encounters on this device, sync them to the record service when online, and aggregate them into monthly reporting tables.",
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFromFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}

		slog.SetDefault(slog.New(cfg.Log.NewLogHandler(cmd.ErrOrStderr())))
		slog.Debug("configuration loaded", "command", cmd.Name())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (overrides HSTATS_CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(reportCmd)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
