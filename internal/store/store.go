// Package store persists the record service's tables: encounters, owner
// profiles and the two monthly summary tables. Every method is scoped to the
// owner the caller authenticated as.
package store

import (
	"context"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// Store defines the interface contract for the record service's storage.
type Store interface {
	InsertEncounter(ctx context.Context, e types.Encounter) (types.Encounter, error)
	UpdateEncounter(ctx context.Context, owner, id string, e types.Encounter) (types.Encounter, error)
	DeleteEncounter(ctx context.Context, owner, id string) error
	ListEncounters(ctx context.Context, owner string) ([]types.Encounter, error)

	GetProfile(ctx context.Context, owner string) (types.Profile, error)
	PutProfile(ctx context.Context, p types.Profile) (types.Profile, error)

	DeleteVisitTotals(ctx context.Context, owner, month string, year int, ownerName string) (int64, error)
	InsertVisitTotals(ctx context.Context, owner string, rows []types.VisitBucket) error
	ListVisitTotals(ctx context.Context, owner, month string, year int) ([]types.VisitBucket, error)
	DeleteBookingTotals(ctx context.Context, owner, month string, year int, ownerName string) (int64, error)
	InsertBookingTotals(ctx context.Context, owner string, rows []types.BookingBucket) error
	ListBookingTotals(ctx context.Context, owner, month string, year int) ([]types.BookingBucket, error)
	ListSummaryPeriods(ctx context.Context, owner string) ([]types.SummaryPeriod, error)

	Driver() string
	Ping(ctx context.Context) error
	Close() error
}
