// Package syncer drains the local pending-upload queue against the remote
// record store and pulls remote rows back into the local store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/localstore"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/remote"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// Result messages.
const (
	MsgInProgress    = "Sync already in progress"
	MsgNothingToSync = "No records to sync"
	MsgOffline       = "Offline: records will sync when the connection returns"
	MsgNoOwner       = "Not signed in: sign in to sync records"
	MsgNoRemote      = "Remote store not configured"
)

// Failure reason prefixes on FailedRecord.Reason.
const (
	ReasonDuplicate = "duplicate"
	ReasonRetry     = "retry"
	ReasonRejected  = "rejected"
)

// AggregationTrigger starts a background aggregation for an owner.
type AggregationTrigger interface {
	Trigger(owner string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithOnline supplies the connectivity check consulted before each run.
func WithOnline(online func() bool) Option {
	return func(e *Engine) { e.online = online }
}

// WithAggregation registers the trigger fired after a run that uploaded
// at least one record.
func WithAggregation(t AggregationTrigger) Option {
	return func(e *Engine) { e.aggregation = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs sync passes for one owner. At most one pass runs at a time.
type Engine struct {
	local       *localstore.Store
	remote      remote.RecordStore
	owner       string
	online      func() bool
	aggregation AggregationTrigger
	now         func() time.Time

	running atomic.Bool
}

// New creates an Engine for owner. rs may be nil when no remote is
// configured; runs then return a descriptive no-op result.
func New(local *localstore.Store, rs remote.RecordStore, owner string, opts ...Option) *Engine {
	e := &Engine{
		local:  local,
		remote: rs,
		owner:  owner,
		online: func() bool { return true },
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Running reports whether a sync pass is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Owner returns the owner this engine syncs for.
func (e *Engine) Owner() string {
	return e.owner
}

func (e *Engine) precondition() string {
	switch {
	case e.remote == nil:
		return MsgNoRemote
	case e.owner == "":
		return MsgNoOwner
	case !e.online():
		return MsgOffline
	}
	return ""
}

// SyncPatientRecords uploads every queued record sequentially. Records that
// fail stay queued for the next run; successful ones are marked synced and
// dequeued unless they were edited while the upload was in flight, in which
// case the edit goes out on the next run. Remote deletions left by
// DeleteRecord are replayed first.
func (e *Engine) SyncPatientRecords(ctx context.Context) types.SyncResult {
	if !e.running.CompareAndSwap(false, true) {
		return types.SyncResult{Message: MsgInProgress}
	}
	defer e.running.Store(false)

	if msg := e.precondition(); msg != "" {
		slog.Info("sync skipped",
			"component", "syncer",
			"action", "sync",
			"reason", msg,
		)
		return types.SyncResult{Message: msg}
	}

	// pick up records queued by other processes sharing the substrate
	e.local.Reload(ctx)
	e.flushDeletes(ctx)

	queue := e.local.Queue()
	if len(queue) == 0 {
		e.local.RecordSyncRun(ctx, 0, 0)
		return types.SyncResult{Success: true, Message: MsgNothingToSync}
	}

	start := time.Now()
	var (
		uploaded []string
		stale    []string
		failures []types.FailedRecord
	)
	for _, localID := range queue {
		rec, ok := e.local.GetRecord(localID)
		if !ok {
			slog.Warn("queued record missing, discarding queue entry",
				"component", "syncer",
				"action", "sync",
				"local_id", localID,
			)
			stale = append(stale, localID)
			continue
		}

		serverID, err := e.upload(ctx, rec)
		if err != nil {
			failures = append(failures, failure(rec, err))
			slog.Warn("record upload failed",
				"component", "syncer",
				"action", "sync",
				"local_id", localID,
				"error", err,
			)
			continue
		}

		err = e.local.MarkSynced(ctx, localID, serverID, rec.UpdatedAt, e.now())
		switch {
		case errors.Is(err, localstore.ErrModified):
			slog.Info("record edited during upload, keeping it queued",
				"component", "syncer",
				"action", "sync",
				"local_id", localID,
			)
		case errors.Is(err, localstore.ErrNotFound):
			// deleted during the upload; the row just written is an orphan
			slog.Info("record deleted during upload, scheduling remote delete",
				"component", "syncer",
				"action", "sync",
				"local_id", localID,
				"server_id", serverID,
			)
			e.local.QueueRemoteDelete(ctx, serverID)
			continue
		case err != nil:
			slog.Warn("mark synced failed",
				"component", "syncer",
				"action", "sync",
				"local_id", localID,
				"error", err,
			)
		}
		uploaded = append(uploaded, localID)
	}

	synced := len(uploaded)
	e.local.DequeueMany(ctx, stale)
	e.local.RecordSyncRun(ctx, synced, len(failures))

	slog.Info("sync completed",
		"component", "syncer",
		"action", "sync",
		"synced", synced,
		"failed", len(failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if synced > 0 && e.aggregation != nil {
		e.aggregation.Trigger(e.owner)
	}

	return types.SyncResult{
		Success:       len(failures) == 0,
		Message:       summary(synced, failures),
		SyncedCount:   synced,
		FailedCount:   len(failures),
		FailedRecords: failures,
	}
}

// upload sends one record and returns the server id it is stored under.
func (e *Engine) upload(ctx context.Context, rec types.Encounter) (string, error) {
	payload := rec.RemotePayload()
	payload.UpdatedAt = e.now()
	if payload.Owner == "" {
		payload.Owner = e.owner
	}

	if rec.HasServerID() {
		out, err := e.remote.Update(ctx, rec.ID, payload.Owner, payload)
		if err == nil {
			return firstNonEmpty(out.ID, rec.ID), nil
		}
		if !remote.IsNotFound(err) {
			return "", err
		}
		slog.Info("remote row gone, re-inserting",
			"component", "syncer",
			"action", "sync",
			"local_id", rec.LocalID,
			"server_id", rec.ID,
		)
		payload.ID = ""
	}

	out, err := e.remote.Insert(ctx, payload)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &remote.Error{Code: remote.CodeInternal, Message: "insert returned no id"}
	}
	return out.ID, nil
}

// flushDeletes replays remote deletions for records removed locally after
// they had synced. Failures are retried on the next run.
func (e *Engine) flushDeletes(ctx context.Context) {
	pending := e.local.PendingDeletes()
	if len(pending) == 0 {
		return
	}
	var cleared []string
	for _, id := range pending {
		err := e.remote.Delete(ctx, id, e.owner)
		if err != nil && !remote.IsNotFound(err) {
			slog.Warn("remote delete failed",
				"component", "syncer",
				"action", "delete",
				"server_id", id,
				"error", err,
			)
			continue
		}
		cleared = append(cleared, id)
	}
	e.local.ClearDeletes(ctx, cleared)
}

// DeleteRecord removes a record locally and, when online, from the remote
// store. If the remote call cannot be made now it is replayed by the next
// sync run.
func (e *Engine) DeleteRecord(ctx context.Context, id string) bool {
	if !e.local.DeleteRecord(ctx, id) {
		return false
	}
	if e.precondition() == "" && !e.running.Load() {
		e.flushDeletes(ctx)
	}
	return true
}

func failure(rec types.Encounter, err error) types.FailedRecord {
	f := types.FailedRecord{
		LocalID:           rec.LocalID,
		PatientIdentifier: rec.PatientIdentifier,
		Error:             err.Error(),
	}
	switch {
	case remote.IsDuplicate(err):
		f.Duplicate = true
		f.Reason = fmt.Sprintf("%s: patient %q is already recorded for %s at %s; change the patient identifier and save again",
			ReasonDuplicate, rec.PatientIdentifier, rec.AppointmentDate, rec.Facility)
	case remote.IsRetryable(err):
		f.Reason = ReasonRetry + ": upload failed, will retry on next sync"
	default:
		f.Reason = ReasonRejected + ": the server rejected this record; review and save it again"
	}
	return f
}

func summary(synced int, failures []types.FailedRecord) string {
	if len(failures) == 0 {
		return fmt.Sprintf("Synced %d %s", synced, plural(synced, "record", "records"))
	}

	dups := 0
	for _, f := range failures {
		if f.Duplicate {
			dups++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Synced %d of %d records; %d failed", synced, synced+len(failures), len(failures))
	if dups > 0 {
		fmt.Fprintf(&b, " (%d duplicate patient %s)", dups, plural(dups, "identifier", "identifiers"))
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
