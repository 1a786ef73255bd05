package aggregate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// DedupKey builds the synthetic key of a booking row.
func DedupKey(month string, year int, ownerName, facility string) string {
	return fmt.Sprintf("%s_%d_%s_%s", month, year, ownerName, facility)
}

// BookingBuckets tallies attendance per normalized facility for one period.
// Attended counts as booked and seen; a walk-in counts as unbooked seen
// only; every other outcome counts as booked only.
func BookingBuckets(records []types.Encounter, p Period) []types.BookingBucket {
	byFacility := make(map[string]*types.BookingBucket)
	for _, r := range records {
		facility := NormalizeFacility(r)
		b, ok := byFacility[facility]
		if !ok {
			b = &types.BookingBucket{
				DedupKey:  DedupKey(p.Month, p.Year, p.OwnerName, facility),
				Facility:  facility,
				Month:     p.Month,
				Year:      p.Year,
				OwnerName: p.OwnerName,
			}
			byFacility[facility] = b
		}

		switch strings.TrimSpace(r.Attendance) {
		case types.AttendanceAttended:
			b.BookedSeen++
			b.TotalBooked++
		case types.AttendanceWalkIn:
			b.UnbookedSeen++
		default:
			b.TotalBooked++
		}
	}

	out := make([]types.BookingBucket, 0, len(byFacility))
	for _, b := range byFacility {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b types.BookingBucket) int { return strings.Compare(a.Facility, b.Facility) })
	return out
}
