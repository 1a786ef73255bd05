package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute the monthly totals from remote encounters",
	Args:  cobra.NoArgs,
	RunE:  runAggregate,
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.agg == nil {
		return errNoRemote
	}

	res := app.agg.Aggregate(ctx, app.owner)

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		for _, e := range res.Errors {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", e)
		}
	}

	if !res.Success {
		return fmt.Errorf("aggregation did not complete: %s", res.Message)
	}
	return nil
}
