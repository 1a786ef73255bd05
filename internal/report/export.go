package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/remote"
)

// Result describes one exported workbook.
type Result struct {
	Path      string    `json:"path"`
	ObjectKey string    `json:"object_key,omitempty"`
	URL       string    `json:"url,omitempty"`
	Expires   time.Time `json:"expires,omitzero"`
	Visits    int       `json:"visit_rows"`
	Bookings  int       `json:"booking_rows"`
}

// Exporter turns the stored summary tables into workbooks.
type Exporter struct {
	reader    remote.SummaryReader
	uploader  Uploader
	outputDir string
	owner     string
}

// NewExporter creates an Exporter for owner. A nil uploader keeps exports
// local.
func NewExporter(reader remote.SummaryReader, uploader Uploader, outputDir, owner string) *Exporter {
	if uploader == nil {
		uploader = NoopUploader{}
	}
	return &Exporter{reader: reader, uploader: uploader, outputDir: outputDir, owner: owner}
}

// Export reads the month's summary rows, writes them to
// {outputDir}/{year}-{month}.xlsx and uploads the file when storage is
// configured.
func (e *Exporter) Export(ctx context.Context, month string, year int) (Result, error) {
	visits, err := e.reader.ListVisitTotals(ctx, month, year)
	if err != nil {
		return Result{}, fmt.Errorf("read visit totals: %w", err)
	}
	bookings, err := e.reader.ListBookingTotals(ctx, month, year)
	if err != nil {
		return Result{}, fmt.Errorf("read booking totals: %w", err)
	}

	f, err := Build(visits, bookings)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create report directory: %w", err)
	}
	res := Result{
		Path:     filepath.Join(e.outputDir, strconv.Itoa(year)+"-"+month+".xlsx"),
		Visits:   len(visits),
		Bookings: len(bookings),
	}
	if err := f.SaveAs(res.Path); err != nil {
		return Result{}, fmt.Errorf("save workbook: %w", err)
	}

	slog.Info("report written",
		"component", "report",
		"action", "export",
		"path", res.Path,
		"visit_rows", res.Visits,
		"booking_rows", res.Bookings,
	)

	if _, local := e.uploader.(NoopUploader); local {
		return res, nil
	}

	key := ObjectKey(e.owner, month, year)
	if err := e.uploader.Upload(ctx, key, res.Path); err != nil {
		return res, err
	}
	res.ObjectKey = key

	u, exp, err := e.uploader.PresignedURL(ctx, key)
	switch {
	case errors.Is(err, ErrNotConfigured):
	case err != nil:
		return res, err
	default:
		res.URL, res.Expires = u, exp
	}

	slog.Info("report uploaded",
		"component", "report",
		"action", "upload",
		"key", key,
	)
	return res, nil
}
