// Package report renders a month of summary rows as an .xlsx workbook and
// optionally uploads it to S3-compatible storage.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// Sheet names.
const (
	VisitSheet   = "Visit Totals"
	BookingSheet = "Booking Totals"
)

var (
	visitHeaders = []string{
		"Facility", "Platform", "Patient Type", "Referred From", "Age / Repeat",
		"Tx / TxD", "Count", "Owner", "Role", "Sub-district",
	}
	bookingHeaders = []string{
		"Facility", "Total Booked", "Booked Seen", "Unbooked Seen", "Owner",
	}
)

// Build lays out visits and bookings on their own sheets. Each sheet gets a
// styled, frozen header row followed by one row per bucket and a totals row.
// The caller owns the returned file and must Close it.
func Build(visits []types.VisitBucket, bookings []types.BookingBucket) (*excelize.File, error) {
	f := excelize.NewFile()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	visitRows := make([][]any, 0, len(visits)+1)
	total := 0
	for _, v := range visits {
		visitRows = append(visitRows, []any{
			v.Facility, v.Platform, v.PatientType, v.ReferredFrom, v.AgeOrRepeat,
			v.TxOrTxD, v.Count, v.OwnerName, v.Role, v.SubDistrict,
		})
		total += v.Count
	}
	visitRows = append(visitRows, []any{"Total", nil, nil, nil, nil, nil, total})

	bookingRows := make([][]any, 0, len(bookings)+1)
	var booked, seen, unbooked int
	for _, b := range bookings {
		bookingRows = append(bookingRows, []any{b.Facility, b.TotalBooked, b.BookedSeen, b.UnbookedSeen, b.OwnerName})
		booked += b.TotalBooked
		seen += b.BookedSeen
		unbooked += b.UnbookedSeen
	}
	bookingRows = append(bookingRows, []any{"Total", booked, seen, unbooked})

	if err := writeSheet(f, VisitSheet, header, visitHeaders, visitRows); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSheet(f, BookingSheet, header, bookingHeaders, bookingRows); err != nil {
		f.Close()
		return nil, err
	}

	// The default sheet only exists until ours are in place.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(VisitSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("locate %s: %w", VisitSheet, err)
	}
	f.SetActiveSheet(idx)

	return f, nil
}

func writeSheet(f *excelize.File, name string, style int, headers []string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &hdr); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(name, "A1", last, style); err != nil {
		return fmt.Errorf("style %s header: %w", name, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", name, i+2, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return fmt.Errorf("convert column number: %w", err)
	}
	if err := f.SetColWidth(name, "A", lastCol, 18); err != nil {
		return fmt.Errorf("set %s column width: %w", name, err)
	}

	return f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
