package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/report"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/validation"
)

var (
	reportMonth string
	reportYear  int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Monthly report workbooks",
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a month's totals as an .xlsx workbook",
	Long:  "Read the visit and booking totals for a month from the record service, write them to a workbook in the report directory and upload it when report storage is configured.",
	Args:  cobra.NoArgs,
	RunE:  runReportExport,
}

func init() {
	reportExportCmd.Flags().StringVar(&reportMonth, "month", "", "Month name, e.g. March (default: current month)")
	reportExportCmd.Flags().IntVar(&reportYear, "year", 0, "Year (default: current year)")
	reportCmd.AddCommand(reportExportCmd)
}

func runReportExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	now := time.Now()
	month, year := reportMonth, reportYear
	if month == "" {
		month = now.Month().String()
	}
	if year == 0 {
		year = now.Year()
	}
	if errs := validation.ValidatePeriod(month, year); len(errs) > 0 {
		return fmt.Errorf("invalid period: %s %s", errs[0].Field, errs[0].Message)
	}

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.remote == nil {
		return errNoRemote
	}
	if app.owner == "" {
		return errors.New("HSTATS_OWNER is required to export reports")
	}

	uploader, err := report.NewUploader(cfg.Report)
	if err != nil {
		return err
	}

	res, err := report.NewExporter(app.remote, uploader, cfg.Report.OutputDir, app.owner).Export(ctx, month, year)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d visit rows, %d booking rows)\n", res.Path, res.Visits, res.Bookings)
	if res.ObjectKey != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded to %s\n", res.ObjectKey)
	}
	if res.URL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Download: %s (expires %s)\n", res.URL, res.Expires.Local().Format(time.DateTime))
	}
	return nil
}
