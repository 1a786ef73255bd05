package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local queue and sync state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	online := app.probe(ctx)
	meta := app.local.Metadata()
	records := len(app.local.ListRecords())
	queued := len(app.local.Queue())
	deletes := len(app.local.PendingDeletes())

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"owner":           app.owner,
			"remote":          cfg.Client.RemoteURL,
			"online":          online,
			"records":         records,
			"queued":          queued,
			"pending_deletes": deletes,
			"metadata":        meta,
		})
	}

	lastSync := "never"
	if meta.LastSync != nil {
		lastSync = meta.LastSync.Local().Format(time.DateTime)
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(w, "Owner:\t%s\n", orDash(app.owner))
	fmt.Fprintf(w, "Remote:\t%s\n", orDash(cfg.Client.RemoteURL))
	fmt.Fprintf(w, "Online:\t%t\n", online)
	fmt.Fprintf(w, "Records:\t%d\n", records)
	fmt.Fprintf(w, "Queued:\t%d\n", queued)
	fmt.Fprintf(w, "Pending deletes:\t%d\n", deletes)
	fmt.Fprintf(w, "Last sync:\t%s (%d synced, %d failed)\n", lastSync, meta.LastSyncedCount, meta.LastFailedCount)
	fmt.Fprintf(w, "Total synced:\t%d\n", meta.TotalSynced)
	w.Flush()

	return nil
}
