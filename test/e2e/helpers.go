// Package e2e drives devices against an in-process record service: local
// capture, sync, pull, deletion and aggregation through the real HTTP
// client and server.
package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/aggregate"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/api"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/connectivity"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/kv"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/localstore"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/remote"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/store"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/syncer"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

const apiKey = "e2e-api-key"

// service is a record service whose network can be switched off.
type service struct {
	store  *store.SQLStore
	server *httptest.Server
	down   atomic.Bool
}

func newService(t *testing.T) *service {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	svc := &service{store: s}
	router := api.NewRouter(api.NewHandler(s, apiKey, "e2e"))
	svc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if svc.down.Load() {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(svc.server.Close)
	return svc
}

func (s *service) setDown(down bool) { s.down.Store(down) }

func (s *service) encounters(t *testing.T, owner string) []types.Encounter {
	t.Helper()
	rows, err := s.store.ListEncounters(context.Background(), owner)
	if err != nil {
		t.Fatalf("ListEncounters: %v", err)
	}
	return rows
}

func (s *service) visitCount(t *testing.T, owner, month string, year int) int {
	t.Helper()
	rows, err := s.store.ListVisitTotals(context.Background(), owner, month, year)
	if err != nil {
		t.Fatalf("ListVisitTotals: %v", err)
	}
	n := 0
	for _, r := range rows {
		n += r.Count
	}
	return n
}

// device is one installation of the client: its own substrate, local
// store and engines, talking to svc as owner.
type device struct {
	kv      kv.Store
	local   *localstore.Store
	remote  *remote.Client
	agg     *aggregate.Engine
	sync    *syncer.Engine
	monitor *connectivity.Monitor
}

func newDevice(t *testing.T, svc *service, owner string, substrate kv.Store) *device {
	t.Helper()
	ctx := context.Background()

	if substrate == nil {
		substrate = kv.NewMemory()
	}
	d := &device{
		kv:    substrate,
		local: localstore.New(ctx, substrate),
		remote: remote.NewClient(remote.Config{
			BaseURL: svc.server.URL,
			APIKey:  apiKey,
			Owner:   owner,
			Timeout: 5 * time.Second,
		}),
	}
	d.agg = aggregate.New(d.remote, d.remote)
	d.sync = syncer.New(d.local, d.remote, owner,
		syncer.WithOnline(func() bool { return d.monitor.Online() }),
		syncer.WithAggregation(d.agg),
	)
	d.monitor = connectivity.New(d.remote, d.sync, connectivity.WithProbeTimeout(2*time.Second))
	t.Cleanup(d.agg.Wait)
	return d
}

// sqliteSubstrate opens a file-backed substrate at path.
func sqliteSubstrate(t *testing.T, path string) kv.Store {
	t.Helper()
	s, err := kv.NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	return s
}

func (d *device) record(t *testing.T, owner, patient, date, attendance string) types.Encounter {
	t.Helper()
	rec, err := d.local.SaveRecord(context.Background(), types.Encounter{
		Owner:             owner,
		PatientIdentifier: patient,
		Facility:          "Clinic A",
		FacilityType:      "Clinic",
		AppointmentDate:   date,
		AppointmentType:   types.AppointmentNew,
		AgeGroup:          "Adult",
		ClinicalArea:      "Neurology",
		Attendance:        attendance,
	})
	if err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	return rec
}

func (d *device) syncNow(t *testing.T) types.SyncResult {
	t.Helper()
	res := d.sync.SyncPatientRecords(context.Background())
	d.agg.Wait()
	return res
}
