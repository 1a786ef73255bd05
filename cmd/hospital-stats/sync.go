package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/syncer"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

var syncPull bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload queued encounters to the record service",
	Long:  "Probe the record service and, when reachable, upload every queued encounter. A run that uploads anything refreshes the monthly totals in the background before the command exits.",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncPull, "pull", false,
		"Also merge rows stored remotely into the local store")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	online := app.probe(ctx)
	res := app.sync.SyncPatientRecords(ctx)

	var pulled *syncer.PullResult
	if syncPull && online {
		pr, err := app.sync.Pull(ctx)
		if err != nil {
			return err
		}
		pulled = &pr
	}

	if jsonOutput {
		out := map[string]any{"online": online, "sync": res}
		if pulled != nil {
			out["pull"] = pulled
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		printSyncResult(cmd, res)
		if pulled != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Pulled %d remote rows, merged %d\n", pulled.Received, pulled.Merged)
		}
	}

	if res.FailedCount > 0 {
		return fmt.Errorf("%d record(s) failed to sync", res.FailedCount)
	}
	return nil
}

func printSyncResult(cmd *cobra.Command, res types.SyncResult) {
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	if len(res.FailedRecords) == 0 {
		return
	}
	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "LOCAL ID\tPATIENT\tREASON")
	for _, f := range res.FailedRecords {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.LocalID, orDash(f.PatientIdentifier), f.Reason)
	}
	w.Flush()
}
