package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

func sampleVisits() []types.VisitBucket {
	return []types.VisitBucket{
		{
			VisitKey: types.VisitKey{
				Facility: "Clinic A", Platform: "Clinic", PatientType: "OPD",
				ReferredFrom: "Doctor", AgeOrRepeat: "Adult", TxOrTxD: "Tx",
			},
			Count: 3, Month: "March", Year: 2026, OwnerName: "Jane Doe", Role: "OT", SubDistrict: "North",
		},
		{
			VisitKey: types.VisitKey{
				Facility: "Clinic B", Platform: "Outreach", PatientType: "OPD",
				ReferredFrom: "Self", AgeOrRepeat: "Repeat", TxOrTxD: "TxD",
			},
			Count: 1, Month: "March", Year: 2026, OwnerName: "Jane Doe",
		},
	}
}

func sampleBookings() []types.BookingBucket {
	return []types.BookingBucket{{
		DedupKey: "Clinic A-March-2026", Facility: "Clinic A",
		TotalBooked: 4, BookedSeen: 3, UnbookedSeen: 1,
		Month: "March", Year: 2026, OwnerName: "Jane Doe",
	}}
}

func TestBuild_Sheets(t *testing.T) {
	f, err := Build(sampleVisits(), sampleBookings())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{VisitSheet, BookingSheet}, f.GetSheetList())
	assert.Equal(t, VisitSheet, f.GetSheetName(f.GetActiveSheetIndex()))
}

func TestBuild_VisitRows(t *testing.T) {
	f, err := Build(sampleVisits(), sampleBookings())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(VisitSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, visitHeaders, rows[0])
	assert.Equal(t, []string{"Clinic A", "Clinic", "OPD", "Doctor", "Adult", "Tx", "3", "Jane Doe", "OT", "North"}, rows[1])
	assert.Equal(t, "Clinic B", rows[2][0])
	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "4", rows[3][6])
}

func TestBuild_BookingRows(t *testing.T) {
	f, err := Build(sampleVisits(), sampleBookings())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(BookingSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, bookingHeaders, rows[0])
	assert.Equal(t, []string{"Clinic A", "4", "3", "1", "Jane Doe"}, rows[1])
	assert.Equal(t, []string{"Total", "4", "3", "1"}, rows[2])
}

func TestBuild_Empty(t *testing.T) {
	f, err := Build(nil, nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(BookingSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Total", "0", "0", "0"}, rows[1])
}
