package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "service.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	n := 0
	s.now = func() time.Time { return fixedNow }
	s.newID = func() string {
		n++
		return fmt.Sprintf("srv-%d", n)
	}
	return s
}

func sampleEncounter(owner, patient string) types.Encounter {
	minutes := 30
	return types.Encounter{
		LocalID:           "local_01HX",
		Owner:             owner,
		PatientIdentifier: patient,
		AgeGroup:          "Adult",
		Facility:          "Clinic A",
		FacilityType:      types.FacilityPHC,
		AppointmentDate:   "2024-03-05",
		AppointmentType:   types.AppointmentNew,
		Attendance:        types.AttendanceAttended,
		SessionDuration:   &minutes,
		Activities:        []string{"Assessment", "Splinting"},
		AssistiveDevices: map[string]types.DeviceIssue{
			"Wheelchair": {Issued: true, Funding: "State", SerialNumber: "WC-9"},
		},
		Synced: true,
		Source: types.SourceLocal,
	}
}

func TestStore_Open(t *testing.T) {
	s, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "svc.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if s.Driver() != DialectSQLite {
		t.Errorf("Driver() = %q, want %q", s.Driver(), DialectSQLite)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	if _, err := Open(context.Background(), Options{Driver: "mysql"}); err == nil {
		t.Error("Open(mysql) error = nil, want error")
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertEncounter(ctx, sampleEncounter("u1", "P1")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	got, err := s.ListEncounters(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("len(ListEncounters) = %d, want 1 after reopen", len(got))
	}
}

func TestStore_InsertEncounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.InsertEncounter(ctx, sampleEncounter("u1", "P1"))
	if err != nil {
		t.Fatalf("InsertEncounter() error = %v", err)
	}
	if got.ID != "srv-1" {
		t.Errorf("ID = %q, want srv-1", got.ID)
	}
	// client-only fields never reach the table
	if got.LocalID != "" || got.Synced || got.Source != "" {
		t.Errorf("client fields leaked: %+v", got)
	}
	if !got.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, fixedNow)
	}

	list, err := s.ListEncounters(ctx, "u1")
	if err != nil {
		t.Fatalf("ListEncounters() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(ListEncounters) = %d, want 1", len(list))
	}
	row := list[0]
	if row.ID != "srv-1" || row.PatientIdentifier != "P1" || row.Owner != "u1" {
		t.Errorf("row = %+v", row)
	}
	if row.SessionDuration == nil || *row.SessionDuration != 30 {
		t.Errorf("SessionDuration = %v, want 30", row.SessionDuration)
	}
	if len(row.Activities) != 2 || row.Activities[1] != "Splinting" {
		t.Errorf("Activities = %v", row.Activities)
	}
	if d := row.AssistiveDevices["Wheelchair"]; !d.Issued || d.SerialNumber != "WC-9" {
		t.Errorf("AssistiveDevices = %+v", row.AssistiveDevices)
	}
	if !row.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", row.CreatedAt, fixedNow)
	}
}

func TestStore_InsertEncounter_KeepsSuppliedID(t *testing.T) {
	s := newTestStore(t)
	e := sampleEncounter("u1", "P1")
	e.ID = "already-assigned"

	got, err := s.InsertEncounter(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "already-assigned" {
		t.Errorf("ID = %q, want already-assigned", got.ID)
	}
}

func TestStore_InsertEncounter_NullDurationAndCollections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := sampleEncounter("u1", "P1")
	e.SessionDuration = nil
	e.Activities = nil
	e.AssistiveDevices = nil

	if _, err := s.InsertEncounter(ctx, e); err != nil {
		t.Fatal(err)
	}
	list, _ := s.ListEncounters(ctx, "u1")
	if list[0].SessionDuration != nil {
		t.Errorf("SessionDuration = %v, want nil", *list[0].SessionDuration)
	}
	if list[0].Activities == nil || len(list[0].Activities) != 0 {
		t.Errorf("Activities = %#v, want empty", list[0].Activities)
	}
}

func TestStore_InsertEncounter_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertEncounter(ctx, sampleEncounter("u1", "P1")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*types.Encounter)
		dup    bool
	}{
		{"same patient date facility", func(e *types.Encounter) {}, true},
		{"same server id", func(e *types.Encounter) { e.ID = "srv-1"; e.PatientIdentifier = "P9" }, true},
		{"different date", func(e *types.Encounter) { e.AppointmentDate = "2024-03-06" }, false},
		{"different facility", func(e *types.Encounter) { e.Facility = "Clinic B" }, false},
		{"different owner", func(e *types.Encounter) { e.Owner = "u2" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := sampleEncounter("u1", "P1")
			tt.mutate(&e)
			_, err := s.InsertEncounter(ctx, e)
			if tt.dup && !errors.Is(err, ErrDuplicate) {
				t.Errorf("InsertEncounter() error = %v, want ErrDuplicate", err)
			}
			if !tt.dup && err != nil {
				t.Errorf("InsertEncounter() error = %v, want nil", err)
			}
		})
	}
}

func TestStore_ListEncounters_OwnerScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.InsertEncounter(ctx, sampleEncounter("u1", "P1"))
	s.InsertEncounter(ctx, sampleEncounter("u2", "P2"))

	list, err := s.ListEncounters(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].PatientIdentifier != "P2" {
		t.Errorf("ListEncounters(u2) = %+v, want only P2", list)
	}

	none, err := s.ListEncounters(ctx, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("ListEncounters(nobody) = %d rows, want 0", len(none))
	}
}

func TestStore_UpdateEncounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, _ := s.InsertEncounter(ctx, sampleEncounter("u1", "P1"))

	later := fixedNow.Add(time.Hour)
	s.now = func() time.Time { return later }

	change := inserted
	change.Attendance = types.AttendanceDidNotAttend
	change.SessionDuration = nil
	change.Owner = "someone-else" // ownership is not updatable

	got, err := s.UpdateEncounter(ctx, "u1", inserted.ID, change)
	if err != nil {
		t.Fatalf("UpdateEncounter() error = %v", err)
	}
	if got.Attendance != types.AttendanceDidNotAttend {
		t.Errorf("Attendance = %q", got.Attendance)
	}
	if got.SessionDuration != nil {
		t.Errorf("SessionDuration = %v, want nil", *got.SessionDuration)
	}
	if got.Owner != "u1" {
		t.Errorf("Owner = %q, want u1", got.Owner)
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(later) {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestStore_UpdateEncounter_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.InsertEncounter(ctx, sampleEncounter("u1", "P1"))
	s.InsertEncounter(ctx, sampleEncounter("u1", "P2"))

	if _, err := s.UpdateEncounter(ctx, "u2", a.ID, a); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateEncounter(wrong owner) error = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateEncounter(ctx, "u1", "missing", a); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateEncounter(missing) error = %v, want ErrNotFound", err)
	}

	clash := a
	clash.PatientIdentifier = "P2"
	if _, err := s.UpdateEncounter(ctx, "u1", a.ID, clash); !errors.Is(err, ErrDuplicate) {
		t.Errorf("UpdateEncounter(clash) error = %v, want ErrDuplicate", err)
	}
}

func TestStore_DeleteEncounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.InsertEncounter(ctx, sampleEncounter("u1", "P1"))

	if err := s.DeleteEncounter(ctx, "u2", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteEncounter(wrong owner) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteEncounter(ctx, "u1", a.ID); err != nil {
		t.Fatalf("DeleteEncounter() error = %v", err)
	}
	if err := s.DeleteEncounter(ctx, "u1", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteEncounter() error = %v, want ErrNotFound", err)
	}
	list, _ := s.ListEncounters(ctx, "u1")
	if len(list) != 0 {
		t.Errorf("len(ListEncounters) = %d, want 0", len(list))
	}
}

func TestStore_Profile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfile(missing) error = %v, want ErrNotFound", err)
	}

	if _, err := s.PutProfile(ctx, types.Profile{ID: "u1", Name: "Dr Smith", Role: "OT"}); err != nil {
		t.Fatalf("PutProfile() error = %v", err)
	}
	if _, err := s.PutProfile(ctx, types.Profile{ID: "u1", Name: "Dr Smith", Role: "PT", SubDistrict: "North"}); err != nil {
		t.Fatalf("PutProfile(replace) error = %v", err)
	}

	got, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := types.Profile{ID: "u1", Name: "Dr Smith", Role: "PT", SubDistrict: "North"}
	if got != want {
		t.Errorf("GetProfile() = %+v, want %+v", got, want)
	}
}

func visitRow(facility, platform string, count int) types.VisitBucket {
	return types.VisitBucket{
		VisitKey: types.VisitKey{
			Facility:     facility,
			Platform:     platform,
			PatientType:  "New",
			ReferredFrom: "Hosp",
			AgeOrRepeat:  "Adult",
			TxOrTxD:      "Tx",
		},
		Count:     count,
		Month:     "March",
		Year:      2024,
		OwnerName: "Dr Smith",
	}
}

func TestStore_VisitTotals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []types.VisitBucket{visitRow("Clinic B", "Outpatient", 1), visitRow("Clinic A", "Outpatient", 2)}
	if err := s.InsertVisitTotals(ctx, "u1", rows); err != nil {
		t.Fatalf("InsertVisitTotals() error = %v", err)
	}
	other := visitRow("Clinic A", "Outpatient", 7)
	other.Month = "April"
	s.InsertVisitTotals(ctx, "u1", []types.VisitBucket{other})
	s.InsertVisitTotals(ctx, "u2", []types.VisitBucket{visitRow("Clinic Z", "Outpatient", 9)})

	got, err := s.ListVisitTotals(ctx, "u1", "March", 2024)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Facility != "Clinic A" || got[0].Count != 2 {
		t.Errorf("ListVisitTotals() = %+v, want Clinic A then Clinic B", got)
	}

	n, err := s.DeleteVisitTotals(ctx, "u1", "March", 2024, "Someone Else")
	if err != nil || n != 0 {
		t.Errorf("DeleteVisitTotals(other name) = %d, %v, want 0 rows", n, err)
	}
	n, err = s.DeleteVisitTotals(ctx, "u1", "March", 2024, "Dr Smith")
	if err != nil || n != 2 {
		t.Errorf("DeleteVisitTotals() = %d, %v, want 2 rows", n, err)
	}

	april, _ := s.ListVisitTotals(ctx, "u1", "April", 2024)
	if len(april) != 1 {
		t.Errorf("April rows = %d, want 1 (untouched)", len(april))
	}
	u2, _ := s.ListVisitTotals(ctx, "u2", "March", 2024)
	if len(u2) != 1 {
		t.Errorf("u2 rows = %d, want 1 (untouched)", len(u2))
	}
}

func TestStore_InsertVisitTotals_DuplicateRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []types.VisitBucket{visitRow("Clinic A", "Outpatient", 1), visitRow("Clinic A", "Outpatient", 2)}
	if err := s.InsertVisitTotals(ctx, "u1", rows); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("InsertVisitTotals() error = %v, want ErrDuplicate", err)
	}
	got, _ := s.ListVisitTotals(ctx, "u1", "March", 2024)
	if len(got) != 0 {
		t.Errorf("rows after failed batch = %d, want 0", len(got))
	}
}

func TestStore_BookingTotals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := types.BookingBucket{
		DedupKey:     "March_2024_Dr Smith_Clinic A",
		Facility:     "Clinic A",
		TotalBooked:  3,
		BookedSeen:   2,
		UnbookedSeen: 1,
		Month:        "March",
		Year:         2024,
		OwnerName:    "Dr Smith",
	}
	if err := s.InsertBookingTotals(ctx, "u1", []types.BookingBucket{row}); err != nil {
		t.Fatalf("InsertBookingTotals() error = %v", err)
	}
	if err := s.InsertBookingTotals(ctx, "u1", []types.BookingBucket{row}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second InsertBookingTotals() error = %v, want ErrDuplicate", err)
	}
	if err := s.InsertBookingTotals(ctx, "u1", nil); err != nil {
		t.Errorf("InsertBookingTotals(nil) error = %v", err)
	}

	got, err := s.ListBookingTotals(ctx, "u1", "March", 2024)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != row {
		t.Errorf("ListBookingTotals() = %+v, want %+v", got, row)
	}

	// empty owner name clears the whole period
	n, err := s.DeleteBookingTotals(ctx, "u1", "March", 2024, "")
	if err != nil || n != 1 {
		t.Errorf("DeleteBookingTotals() = %d, %v, want 1 row", n, err)
	}
}

func TestStore_ListSummaryPeriods(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	april := visitRow("Clinic A", "Outpatient", 1)
	april.Month = "April"
	renamed := visitRow("Clinic A", "Outpatient", 1)
	renamed.OwnerName = "Dr Jones"
	s.InsertVisitTotals(ctx, "u1", []types.VisitBucket{visitRow("Clinic A", "Outpatient", 2), april, renamed})
	s.InsertBookingTotals(ctx, "u1", []types.BookingBucket{{
		DedupKey: "May_2024_Dr Smith_Clinic A", Facility: "Clinic A", TotalBooked: 1,
		Month: "May", Year: 2024, OwnerName: "Dr Smith",
	}, {
		DedupKey: "March_2024_Dr Smith_Clinic A", Facility: "Clinic A", TotalBooked: 1,
		Month: "March", Year: 2024, OwnerName: "Dr Smith",
	}})
	s.InsertVisitTotals(ctx, "u2", []types.VisitBucket{visitRow("Clinic Z", "Outpatient", 9)})

	got, err := s.ListSummaryPeriods(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := []types.SummaryPeriod{
		{Month: "April", Year: 2024, OwnerName: "Dr Smith"},
		{Month: "March", Year: 2024, OwnerName: "Dr Jones"},
		{Month: "March", Year: 2024, OwnerName: "Dr Smith"},
		{Month: "May", Year: 2024, OwnerName: "Dr Smith"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListSummaryPeriods() = %+v, want %+v", got, want)
	}

	none, err := s.ListSummaryPeriods(ctx, "u3")
	if err != nil || len(none) != 0 {
		t.Errorf("ListSummaryPeriods(u3) = %v, %v, want empty", none, err)
	}
}
