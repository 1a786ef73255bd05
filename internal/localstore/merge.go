package localstore

import (
	"context"
	"log/slog"
	"slices"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// SourceRemote tags records that arrived through MergeRemote.
const SourceRemote = "remote"

// MergeRemote folds rows fetched from the remote store into the local
// collection, matching on server id. Synced local copies are refreshed;
// records with unsynced local edits are left alone; unknown rows are added
// as synced. Rows pending remote deletion are ignored. It returns the number
// of records added or refreshed.
func (s *Store) MergeRemote(ctx context.Context, rows []types.Encounter) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := 0
	s.mutate(ctx, func() []string {
		now := s.now()
		for _, row := range rows {
			if row.ID == "" || slices.Contains(s.deletes, row.ID) {
				continue
			}

			i := slices.IndexFunc(s.records, func(e types.Encounter) bool { return e.ID == row.ID })
			if i >= 0 {
				local := s.records[i]
				if !local.Synced {
					continue
				}
				fresh := row.Clone()
				fresh.LocalID = local.LocalID
				fresh.Source = local.Source
				fresh.Synced = true
				fresh.SyncedAt = local.SyncedAt
				s.records[i] = fresh
				merged++
				continue
			}

			fresh := row.Clone()
			fresh.LocalID = s.newID()
			fresh.Source = SourceRemote
			fresh.Synced = true
			fresh.SyncedAt = &now
			s.records = append(s.records, fresh)
			merged++
		}
		if merged == 0 {
			return nil
		}
		return []string{KeyRecords}
	})
	slog.Info("remote rows merged",
		"component", "localstore",
		"action", "merge",
		"received", len(rows),
		"merged", merged,
	)
	return merged
}
