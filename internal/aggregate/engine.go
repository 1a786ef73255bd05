// Package aggregate recomputes the monthly visit totals and facility booking
// totals for an owner from the full set of their remote encounter rows.
package aggregate

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/remote"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// Result messages.
const (
	MsgInProgress = "Aggregation already in progress"
	MsgNoOwner    = "Not signed in: sign in to aggregate records"
	MsgNoRecords  = "No records to aggregate"
)

// DefaultTriggerTimeout bounds a background aggregation started by Trigger.
const DefaultTriggerTimeout = 2 * time.Minute

// Option configures an Engine.
type Option func(*Engine)

// WithTriggerTimeout overrides DefaultTriggerTimeout.
func WithTriggerTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithResultHandler observes the result of every background run.
func WithResultHandler(fn func(owner string, res types.AggregationResult)) Option {
	return func(e *Engine) { e.onResult = fn }
}

// Engine recomputes summary tables. At most one run is active at a time.
type Engine struct {
	records   remote.RecordStore
	summaries remote.SummaryStore
	timeout   time.Duration
	onResult  func(string, types.AggregationResult)

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates an Engine reading from records and writing to summaries.
func New(records remote.RecordStore, summaries remote.SummaryStore, opts ...Option) *Engine {
	e := &Engine{
		records:   records,
		summaries: summaries,
		timeout:   DefaultTriggerTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Running reports whether an aggregation run is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// MonthKey identifies one calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

// PartitionByMonth groups records by the month of their appointment date.
// Records whose date does not parse are returned separately.
func PartitionByMonth(records []types.Encounter) (map[MonthKey][]types.Encounter, []types.Encounter) {
	parts := make(map[MonthKey][]types.Encounter)
	var invalid []types.Encounter
	for _, r := range records {
		d, err := time.Parse(time.DateOnly, r.AppointmentDate)
		if err != nil {
			invalid = append(invalid, r)
			continue
		}
		k := MonthKey{Year: d.Year(), Month: d.Month()}
		parts[k] = append(parts[k], r)
	}
	return parts, invalid
}

// Aggregate recomputes both tables for every month owner has records in.
// Each month is replaced delete-then-insert; a failing month is reported in
// Errors and does not stop the others.
func (e *Engine) Aggregate(ctx context.Context, owner string) types.AggregationResult {
	if !e.running.CompareAndSwap(false, true) {
		return types.AggregationResult{Message: MsgInProgress}
	}
	defer e.running.Store(false)

	if owner == "" {
		return types.AggregationResult{Message: MsgNoOwner}
	}

	start := time.Now()
	records, err := e.records.SelectByOwner(ctx, owner)
	if err != nil {
		slog.Error("aggregation load failed",
			"component", "aggregate",
			"action", "load",
			"owner", owner,
			"error", err,
		)
		return types.AggregationResult{
			Message: "Failed to load records for aggregation",
			Errors:  []string{err.Error()},
		}
	}

	profile, err := e.profile(ctx, owner)
	if err != nil {
		return types.AggregationResult{
			Message: "Failed to load profile for aggregation",
			Errors:  []string{err.Error()},
		}
	}

	parts, invalid := PartitionByMonth(records)
	var res types.AggregationResult
	for _, r := range invalid {
		res.Errors = append(res.Errors, fmt.Sprintf("record %s: invalid appointment date %q", r.ID, r.AppointmentDate))
	}

	keys := make([]MonthKey, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b MonthKey) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month))
	})

	failed := e.clearStale(ctx, keys, profile.Name, &res)

	if len(records) == 0 {
		res.Success = failed == 0
		res.Message = MsgNoRecords
		return res
	}

	for _, k := range keys {
		p := Period{
			Month:       k.Month.String(),
			Year:        k.Year,
			OwnerName:   profile.Name,
			Role:        profile.Role,
			SubDistrict: profile.SubDistrict,
		}
		visits := VisitBuckets(parts[k], p)
		bookings := BookingBuckets(parts[k], p)

		if err := e.replace(ctx, p, visits, bookings); err != nil {
			failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s %d: %v", p.Month, p.Year, err))
			slog.Error("month aggregation failed",
				"component", "aggregate",
				"action", "persist",
				"month", p.Month,
				"year", p.Year,
				"error", err,
			)
			continue
		}
		res.AggregatedMonths++
		res.BackendRecords += len(visits)
		res.BookedNumbersRecords += len(bookings)
	}

	res.Success = failed == 0
	if len(res.Errors) == len(invalid) {
		res.Message = fmt.Sprintf("Aggregated %d %s", res.AggregatedMonths, plural(res.AggregatedMonths, "month", "months"))
	} else {
		res.Message = fmt.Sprintf("Aggregated %d of %d months; %d failed", res.AggregatedMonths, len(keys), failed)
	}

	slog.Info("aggregation completed",
		"component", "aggregate",
		"action", "aggregate",
		"owner", owner,
		"months", res.AggregatedMonths,
		"visit_rows", res.BackendRecords,
		"booking_rows", res.BookedNumbersRecords,
		"errors", len(res.Errors),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// profile loads the owner's labels. A missing profile falls back to the
// owner id as the display name.
func (e *Engine) profile(ctx context.Context, owner string) (types.Profile, error) {
	p, err := e.summaries.Profile(ctx, owner)
	if remote.IsNotFound(err) {
		slog.Warn("profile not found, labelling rows with owner id",
			"component", "aggregate",
			"owner", owner,
		)
		return types.Profile{ID: owner, Name: owner}, nil
	}
	if err != nil {
		return types.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if p.Name == "" {
		p.Name = owner
	}
	return p, nil
}

// clearStale deletes the stored rows of every period this run will not
// rewrite: months that no longer have records, and rows labelled with an
// owner name the profile no longer carries. It returns the failure count.
func (e *Engine) clearStale(ctx context.Context, keys []MonthKey, ownerName string, res *types.AggregationResult) int {
	stored, err := e.summaries.ListSummaryPeriods(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list stored periods: %v", err))
		slog.Error("listing stored periods failed",
			"component", "aggregate",
			"action", "clear",
			"error", err,
		)
		return 1
	}

	current := make(map[types.SummaryPeriod]bool, len(keys))
	for _, k := range keys {
		current[types.SummaryPeriod{Month: k.Month.String(), Year: k.Year, OwnerName: ownerName}] = true
	}

	failed := 0
	for _, sp := range stored {
		if current[sp] {
			continue
		}
		p := Period{Month: sp.Month, Year: sp.Year, OwnerName: sp.OwnerName}
		if err := e.replace(ctx, p, nil, nil); err != nil {
			failed++
			res.Errors = append(res.Errors, fmt.Sprintf("clear %s %d: %v", p.Month, p.Year, err))
			continue
		}
		slog.Info("stale period cleared",
			"component", "aggregate",
			"action", "clear",
			"month", p.Month,
			"year", p.Year,
			"owner_name", p.OwnerName,
		)
	}
	return failed
}

func (e *Engine) replace(ctx context.Context, p Period, visits []types.VisitBucket, bookings []types.BookingBucket) error {
	if err := e.summaries.DeleteVisitTotals(ctx, p.Month, p.Year, p.OwnerName); err != nil {
		return fmt.Errorf("delete visit totals: %w", err)
	}
	if err := e.summaries.DeleteBookingTotals(ctx, p.Month, p.Year, p.OwnerName); err != nil {
		return fmt.Errorf("delete booking totals: %w", err)
	}
	if len(visits) > 0 {
		if err := e.summaries.InsertVisitTotals(ctx, visits); err != nil {
			return fmt.Errorf("insert visit totals: %w", err)
		}
	}
	if len(bookings) > 0 {
		if err := e.summaries.InsertBookingTotals(ctx, bookings); err != nil {
			return fmt.Errorf("insert booking totals: %w", err)
		}
	}
	return nil
}

// Trigger runs Aggregate for owner in the background. The result is logged
// and passed to the result handler; failures never reach the caller.
func (e *Engine) Trigger(owner string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		res := e.Aggregate(ctx, owner)
		if !res.Success {
			slog.Warn("background aggregation did not complete",
				"component", "aggregate",
				"action", "trigger",
				"owner", owner,
				"message", res.Message,
				"errors", res.Errors,
			)
		}
		if e.onResult != nil {
			e.onResult(owner, res)
		}
	}()
}

// Wait blocks until every background run started by Trigger has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
