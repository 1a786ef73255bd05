package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/kv"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
	"pgregory.net/rapid"
)

// TestQueueInvariant_Property drives random operation sequences and checks
// that unsynced records and queued ids stay in one-to-one correspondence.
func TestQueueInvariant_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s := New(ctx, kv.NewMemory(), WithClock(func() time.Time { return fixedNow }))

		patients := []string{"P1", "P2", "P3", "P4"}
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			ids := s.ListRecords()
			switch rapid.IntRange(0, 4).Draw(rt, "op") {
			case 0:
				s.SaveRecord(ctx, encounter(rapid.SampledFrom(patients).Draw(rt, "patient")))
			case 1:
				if len(ids) == 0 {
					continue
				}
				r := rapid.SampledFrom(ids).Draw(rt, "update")
				area := rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "area")
				s.UpdateRecord(ctx, r.LocalID, types.EncounterPatch{ClinicalArea: &area})
			case 2:
				if len(ids) == 0 {
					continue
				}
				r := rapid.SampledFrom(ids).Draw(rt, "delete")
				s.DeleteRecord(ctx, r.LocalID)
			case 3:
				// A completed upload, sometimes of a version edited since.
				if len(ids) == 0 {
					continue
				}
				r := rapid.SampledFrom(ids).Draw(rt, "sync")
				if r.Synced {
					continue
				}
				version := r.UpdatedAt
				if rapid.Bool().Draw(rt, "edited") {
					version = version.Add(-time.Second)
				}
				s.MarkSynced(ctx, r.LocalID, "srv-"+r.LocalID, version, fixedNow)
			case 4:
				s.MergeRemote(ctx, []types.Encounter{{
					ID:                "srv-remote-" + rapid.SampledFrom(patients).Draw(rt, "remote"),
					PatientIdentifier: "R",
				}})
			}
			assertQueueInvariant(rt, s)
		}
	})
}
