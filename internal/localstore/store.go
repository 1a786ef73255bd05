// Package localstore is the durable on-device record store. It keeps the
// encounter collection, the pending-upload queue and the sync metadata in
// memory and writes each collection through to a kv.Store after every
// mutation. Every mutation first re-reads the substrate, so several
// processes can share one substrate without overwriting each other's
// writes. Substrate failures never fail an operation.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/kv"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
	"github.com/oklog/ulid/v2"
)

// Substrate keys.
const (
	KeyRecords  = "patient_records"
	KeyQueue    = "sync_queue"
	KeyMetadata = "sync_metadata"
	KeyDeletes  = "sync_deletes"
)

// LocalIDPrefix marks identifiers generated on the device.
const LocalIDPrefix = "local_"

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides local identifier generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithPersistErrorHandler registers fn to observe substrate write failures.
func WithPersistErrorHandler(fn func(PersistError)) Option {
	return func(s *Store) { s.onPersistError = fn }
}

// allKeys lists the collections in the order they are written.
var allKeys = []string{KeyRecords, KeyQueue, KeyDeletes, KeyMetadata}

// Store owns the local collections. All methods are safe for concurrent
// use. Reads are served from memory; call Reload to pick up writes made by
// other processes sharing the substrate.
type Store struct {
	kv kv.Store

	mu      sync.Mutex
	records []types.Encounter
	queue   []string
	deletes []string
	meta    types.SyncMetadata
	// dirty marks collections whose in-memory state the substrate has
	// not accepted yet. Refreshes keep them and the next write retries them.
	dirty map[string]bool

	now            func() time.Time
	newID          func() string
	onPersistError func(PersistError)
}

// New loads the collections from substrate. Missing keys start empty;
// unreadable or corrupt values are logged and replaced by empty defaults.
func New(ctx context.Context, substrate kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:    substrate,
		dirty: map[string]bool{},
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return LocalIDPrefix + ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.refresh(ctx, s.kv)

	slog.Info("local store loaded",
		"component", "localstore",
		"records", len(s.records),
		"queued", len(s.queue),
	)
	return s
}

// Reload re-reads the collections from the substrate. Collections holding
// writes the substrate has not accepted are kept as they are.
func (s *Store) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh(ctx, s.kv)
}

// refresh replaces every clean collection with the value stored in st and
// restores the queue invariant. Caller holds s.mu.
func (s *Store) refresh(ctx context.Context, st kv.Store) {
	if !s.dirty[KeyRecords] {
		var v []types.Encounter
		if load(ctx, st, KeyRecords, &v) {
			s.records = v
		}
	}
	if !s.dirty[KeyQueue] {
		var v []string
		if load(ctx, st, KeyQueue, &v) {
			s.queue = v
		}
	}
	if !s.dirty[KeyDeletes] {
		var v []string
		if load(ctx, st, KeyDeletes, &v) {
			s.deletes = v
		}
	}
	if !s.dirty[KeyMetadata] {
		var v types.SyncMetadata
		if load(ctx, st, KeyMetadata, &v) {
			s.meta = v
		}
	}
	if s.repairQueue() {
		s.dirty[KeyRecords] = true
	}
}

// load decodes key into dst. It reports false, leaving dst untouched, when
// the value could not be read or decoded; a missing key decodes as empty.
func load(ctx context.Context, st kv.Store, key string, dst any) bool {
	data, err := st.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return true
	}
	if err != nil {
		slog.Warn("local store read failed, keeping in-memory state",
			"component", "localstore",
			"key", key,
			"error", err,
		)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("local store value corrupt, keeping in-memory state",
			"component", "localstore",
			"key", key,
			"error", err,
		)
		return false
	}
	return true
}

// repairQueue restores the queue invariant after a load: every unsynced
// record is queued exactly once and no synced record is queued. Ids with
// no record are left for the sync engine to discard. It reports whether
// any record had to be given a local id.
func (s *Store) repairQueue() bool {
	assigned := false
	synced := make(map[string]bool, len(s.records))
	for i := range s.records {
		r := &s.records[i]
		if r.LocalID == "" {
			r.LocalID = s.newID()
			assigned = true
		}
		synced[r.LocalID] = r.Synced
	}

	seen := make(map[string]bool, len(s.queue))
	var q []string
	for _, id := range s.queue {
		if seen[id] || synced[id] {
			continue
		}
		seen[id] = true
		q = append(q, id)
	}
	for _, r := range s.records {
		if !r.Synced && !seen[r.LocalID] {
			seen[r.LocalID] = true
			q = append(q, r.LocalID)
		}
	}
	s.queue = q
	return assigned
}

// mutate applies fn to collections freshly read from the substrate and
// writes back the keys fn returns, plus any still dirty. On a substrate
// implementing kv.Transactor the read, fn and the write run under its
// write lock. Caller holds s.mu.
func (s *Store) mutate(ctx context.Context, fn func() []string) error {
	if tx, ok := s.kv.(kv.Transactor); ok {
		var keys []string
		ran := false
		err := tx.Tx(ctx, func(st kv.Store) error {
			s.refresh(ctx, st)
			ran = true
			keys = s.pending(fn())
			for _, key := range keys {
				if err := s.write(ctx, st, key); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			for _, key := range keys {
				delete(s.dirty, key)
			}
			return nil
		}
		if ran {
			// a failed transaction wrote nothing
			var first error
			for _, key := range keys {
				if pe := s.fail(key, err); first == nil {
					first = pe
				}
			}
			return first
		}
		slog.Warn("local store transaction failed to start, writing without it",
			"component", "localstore",
			"error", err,
		)
	}

	s.refresh(ctx, s.kv)
	return s.persist(ctx, s.pending(fn())...)
}

// pending returns keys together with every dirty key, in write order.
func (s *Store) pending(keys []string) []string {
	var out []string
	for _, key := range allKeys {
		if s.dirty[key] || slices.Contains(keys, key) {
			out = append(out, key)
		}
	}
	return out
}

// persist writes the named collections one by one. Caller holds s.mu.
func (s *Store) persist(ctx context.Context, keys ...string) error {
	var first error
	for _, key := range keys {
		if err := s.write(ctx, s.kv, key); err != nil {
			if pe := s.fail(key, err); first == nil {
				first = pe
			}
			continue
		}
		delete(s.dirty, key)
	}
	return first
}

func (s *Store) write(ctx context.Context, st kv.Store, key string) error {
	var v any
	switch key {
	case KeyRecords:
		v = nonNil(s.records)
	case KeyQueue:
		v = nonNil(s.queue)
	case KeyDeletes:
		v = nonNil(s.deletes)
	case KeyMetadata:
		v = s.meta
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.Set(ctx, key, data)
}

// fail marks key dirty and reports the lost write. Caller holds s.mu.
func (s *Store) fail(key string, err error) *PersistError {
	s.dirty[key] = true
	pe := PersistError{Key: key, Err: err}
	slog.Error("local store write failed, continuing in memory",
		"component", "localstore",
		"key", key,
		"error", err,
	)
	if s.onPersistError != nil {
		s.onPersistError(pe)
	}
	return &pe
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// find returns the index of the record matching id, or -1. Caller holds s.mu.
func (s *Store) find(id string) int {
	return slices.IndexFunc(s.records, func(e types.Encounter) bool { return e.Matches(id) })
}

func (s *Store) enqueueLocked(id string) bool {
	if id == "" || slices.Contains(s.queue, id) {
		return false
	}
	s.queue = append(s.queue, id)
	return true
}

// touch returns the current time, moved past prev when the clock has not
// advanced, so that every edit changes UpdatedAt.
func (s *Store) touch(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

// SaveRecord stores rec, assigning a local id when absent. Unsynced records
// are enqueued. A non-nil error is always a *PersistError; the returned
// record is valid either way.
func (s *Store) SaveRecord(ctx context.Context, rec types.Encounter) (types.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec = rec.Clone()
	if rec.LocalID == "" {
		rec.LocalID = s.newID()
	}
	if rec.Source == "" {
		rec.Source = types.SourceLocal
	}
	if !rec.Synced {
		rec.SyncedAt = nil
	}

	err := s.mutate(ctx, func() []string {
		now := s.now()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now

		if i := slices.IndexFunc(s.records, func(e types.Encounter) bool { return e.LocalID == rec.LocalID }); i >= 0 {
			rec.UpdatedAt = s.touch(s.records[i].UpdatedAt)
			s.records[i] = rec
		} else {
			s.records = append(s.records, rec)
		}

		keys := []string{KeyRecords}
		if rec.Synced {
			if i := slices.Index(s.queue, rec.LocalID); i >= 0 {
				s.queue = slices.Delete(s.queue, i, i+1)
				keys = append(keys, KeyQueue)
			}
		} else if s.enqueueLocked(rec.LocalID) {
			keys = append(keys, KeyQueue)
		}
		return keys
	})

	slog.Debug("record saved",
		"component", "localstore",
		"action", "save",
		"local_id", rec.LocalID,
		"synced", rec.Synced,
	)
	return rec.Clone(), err
}

// UpdateRecord merges patch into the record matching id (local or server
// id), marks it unsynced and re-enqueues it. UpdatedAt always moves forward.
func (s *Store) UpdateRecord(ctx context.Context, id string, patch types.EncounterPatch) (types.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out types.Encounter
	found := false
	err := s.mutate(ctx, func() []string {
		i := s.find(id)
		if i < 0 {
			return nil
		}
		found = true
		rec := &s.records[i]
		patch.Apply(rec)
		rec.UpdatedAt = s.touch(rec.UpdatedAt)
		rec.Synced = false
		rec.SyncedAt = nil
		s.enqueueLocked(rec.LocalID)
		out = rec.Clone()
		return []string{KeyRecords, KeyQueue}
	})
	if !found {
		return types.Encounter{}, ErrNotFound
	}

	slog.Debug("record updated",
		"component", "localstore",
		"action", "update",
		"local_id", out.LocalID,
	)
	return out, err
}

// DeleteRecord removes every record matching id and drops the matching
// local ids (and id itself) from the queue. Server ids of removed records
// are kept as pending remote deletions. It reports whether anything matched.
func (s *Store) DeleteRecord(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	s.mutate(ctx, func() []string {
		drop := map[string]bool{id: true}
		kept := s.records[:0]
		for _, r := range s.records {
			if r.Matches(id) {
				found = true
				drop[r.LocalID] = true
				if r.HasServerID() && !slices.Contains(s.deletes, r.ID) {
					s.deletes = append(s.deletes, r.ID)
				}
				continue
			}
			kept = append(kept, r)
		}
		s.records = kept
		s.queue = slices.DeleteFunc(s.queue, func(q string) bool { return drop[q] })
		return []string{KeyRecords, KeyQueue, KeyDeletes}
	})

	slog.Debug("record deleted",
		"component", "localstore",
		"action", "delete",
		"id", id,
		"found", found,
	)
	return found
}

// GetRecord returns a copy of the record matching id.
func (s *Store) GetRecord(id string) (types.Encounter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(id)
	if i < 0 {
		return types.Encounter{}, false
	}
	return s.records[i].Clone(), true
}

// FindRecords returns copies of all records accepted by f.
func (s *Store) FindRecords(f types.RecordFilter) []types.Encounter {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Encounter
	for _, r := range s.records {
		if f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// ListRecords returns copies of all records in insertion order.
func (s *Store) ListRecords() []types.Encounter {
	return s.FindRecords(types.RecordFilter{})
}

// Enqueue adds id to the queue if not already present.
func (s *Store) Enqueue(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func() []string {
		if !s.enqueueLocked(id) {
			return nil
		}
		return []string{KeyQueue}
	})
}

// DequeueMany removes every id in ids from the queue.
func (s *Store) DequeueMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func() []string {
		s.queue = slices.DeleteFunc(s.queue, func(q string) bool { return slices.Contains(ids, q) })
		return []string{KeyQueue}
	})
}

// Queue returns a snapshot of the pending-upload queue.
func (s *Store) Queue() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue)
}

// ClearQueue empties the queue.
func (s *Store) ClearQueue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func() []string {
		s.queue = nil
		return []string{KeyQueue}
	})
}

// PendingDeletes returns server ids whose remote rows still need deleting.
func (s *Store) PendingDeletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deletes)
}

// ClearDeletes forgets the given pending remote deletions.
func (s *Store) ClearDeletes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func() []string {
		s.deletes = slices.DeleteFunc(s.deletes, func(d string) bool { return slices.Contains(ids, d) })
		return []string{KeyDeletes}
	})
}

// QueueRemoteDelete adds serverID to the pending remote deletions.
func (s *Store) QueueRemoteDelete(ctx context.Context, serverID string) error {
	if serverID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func() []string {
		if slices.Contains(s.deletes, serverID) {
			return nil
		}
		s.deletes = append(s.deletes, serverID)
		return []string{KeyDeletes}
	})
}

// MarkSynced records a confirmed upload of the record version whose
// UpdatedAt is version. The server id is attached either way. If the record
// is still at that version it flips to synced and leaves the queue;
// otherwise it was edited during the upload, stays unsynced and queued, and
// ErrModified is returned. ErrNotFound means it was deleted meanwhile.
func (s *Store) MarkSynced(ctx context.Context, localID, serverID string, version, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outcome error
	err := s.mutate(ctx, func() []string {
		i := slices.IndexFunc(s.records, func(e types.Encounter) bool { return e.LocalID == localID })
		if i < 0 {
			outcome = ErrNotFound
			return nil
		}
		rec := &s.records[i]
		if serverID != "" {
			rec.ID = serverID
		}
		if !rec.UpdatedAt.Equal(version) {
			outcome = ErrModified
			return []string{KeyRecords}
		}
		rec.Synced = true
		rec.SyncedAt = &at
		s.queue = slices.DeleteFunc(s.queue, func(q string) bool { return q == localID })
		return []string{KeyRecords, KeyQueue}
	})
	if outcome != nil {
		return outcome
	}
	return err
}

// RecordSyncRun updates the metadata after a sync run.
func (s *Store) RecordSyncRun(ctx context.Context, synced, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, func() []string {
		now := s.now()
		s.meta.LastSync = &now
		s.meta.LastSyncedCount = synced
		s.meta.LastFailedCount = failed
		s.meta.TotalSynced += synced
		return []string{KeyMetadata}
	})
}

// Metadata returns a copy of the sync metadata.
func (s *Store) Metadata() types.SyncMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.meta
	if m.LastSync != nil {
		t := *m.LastSync
		m.LastSync = &t
	}
	return m
}
