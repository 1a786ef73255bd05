// Package remote defines the contract the sync and aggregation engines need
// from the hosted record store, and a REST client that fulfils it.
package remote

import (
	"context"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// RecordStore is the owner-scoped encounter table.
type RecordStore interface {
	// Insert stores rec and returns the stored row with its server id.
	Insert(ctx context.Context, rec types.Encounter) (types.Encounter, error)
	// Update replaces the mutable fields of row id owned by owner.
	Update(ctx context.Context, id, owner string, rec types.Encounter) (types.Encounter, error)
	Delete(ctx context.Context, id, owner string) error
	SelectByOwner(ctx context.Context, owner string) ([]types.Encounter, error)
	Ping(ctx context.Context) error
}

// SummaryStore holds the owner's profile and the two monthly report tables.
type SummaryStore interface {
	Profile(ctx context.Context, owner string) (types.Profile, error)
	DeleteVisitTotals(ctx context.Context, month string, year int, ownerName string) error
	InsertVisitTotals(ctx context.Context, rows []types.VisitBucket) error
	DeleteBookingTotals(ctx context.Context, month string, year int, ownerName string) error
	InsertBookingTotals(ctx context.Context, rows []types.BookingBucket) error
	// ListSummaryPeriods reports every period that currently holds rows in
	// either table.
	ListSummaryPeriods(ctx context.Context) ([]types.SummaryPeriod, error)
}

// SummaryReader reads back stored report rows.
type SummaryReader interface {
	ListVisitTotals(ctx context.Context, month string, year int) ([]types.VisitBucket, error)
	ListBookingTotals(ctx context.Context, month string, year int) ([]types.BookingBucket, error)
}
