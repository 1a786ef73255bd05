package aggregate

import (
	"cmp"
	"slices"
	"strings"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// Classification labels written to the visit totals table.
const (
	PlatformHospital = "Hospital"
	PlatformICF      = "ICF"
	PlatformPHC      = "PHC"
	PlatformCBS      = "CBS"
	PlatformOther    = "Other"

	PatientNew    = "New"
	PatientRepeat = "Repeat"

	ReferredHosp  = "Hosp"
	ReferredPHC   = "PHC"
	ReferredCBS   = "CBS"
	ReferredOther = "Other"

	AgeUnknown = "Unknown"

	Tx  = "Tx"
	TxD = "Tx+D"
)

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeFacility returns the facility label used by both tables. Hospital
// facilities are split by ward setting; every other type is unchanged.
func NormalizeFacility(e types.Encounter) string {
	name := strings.TrimSpace(e.Facility)
	if norm(e.FacilityType) != types.FacilityHospital {
		return name
	}
	switch norm(e.InpatientOutpatient) {
	case types.SettingInpatient:
		return name + " (" + types.SettingInpatient + ")"
	case types.SettingOutpatient:
		return name + " (" + types.SettingOutpatient + ")"
	}
	return name
}

func platform(facilityType string) string {
	switch norm(facilityType) {
	case types.FacilityHospital:
		return PlatformHospital
	case types.FacilityICF:
		return PlatformICF
	case types.FacilityPHC:
		return PlatformPHC
	case types.FacilityCBS:
		return PlatformCBS
	}
	return PlatformOther
}

func referredFrom(source string) string {
	switch norm(source) {
	case types.ReferralHospital:
		return ReferredHosp
	case types.ReferralPHC:
		return ReferredPHC
	case types.ReferralCBS:
		return ReferredCBS
	}
	return ReferredOther
}

// ClassifyVisit derives the visit bucket key for one encounter.
func ClassifyVisit(e types.Encounter) types.VisitKey {
	repeat := norm(e.AppointmentType) == types.AppointmentRepeat

	k := types.VisitKey{
		Facility:     NormalizeFacility(e),
		Platform:     platform(e.FacilityType),
		PatientType:  PatientNew,
		ReferredFrom: referredFrom(e.ReferralSource),
		AgeOrRepeat:  strings.TrimSpace(e.AgeGroup),
		TxOrTxD:      Tx,
	}
	if k.AgeOrRepeat == "" {
		k.AgeOrRepeat = AgeUnknown
	}
	if repeat {
		k.PatientType = PatientRepeat
		k.AgeOrRepeat = PatientRepeat
	}
	if e.DeviceIssued() {
		k.TxOrTxD = TxD
	}
	return k
}

// CountVisits classifies every record and returns the non-empty buckets,
// sorted by key.
func CountVisits(records []types.Encounter) map[types.VisitKey]int {
	counts := make(map[types.VisitKey]int)
	for _, r := range records {
		counts[ClassifyVisit(r)]++
	}
	for k, n := range counts {
		if n <= 0 {
			delete(counts, k)
		}
	}
	return counts
}

// Period labels the owner and month a set of buckets belongs to.
type Period struct {
	Month       string
	Year        int
	OwnerName   string
	Role        string
	SubDistrict string
}

// VisitBuckets builds the visit totals rows for one period.
func VisitBuckets(records []types.Encounter, p Period) []types.VisitBucket {
	counts := CountVisits(records)
	out := make([]types.VisitBucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, types.VisitBucket{
			VisitKey:    k,
			Count:       n,
			Month:       p.Month,
			Year:        p.Year,
			OwnerName:   p.OwnerName,
			Role:        p.Role,
			SubDistrict: p.SubDistrict,
		})
	}
	slices.SortFunc(out, func(a, b types.VisitBucket) int { return compareKeys(a.VisitKey, b.VisitKey) })
	return out
}

func compareKeys(a, b types.VisitKey) int {
	return cmp.Or(
		cmp.Compare(a.Facility, b.Facility),
		cmp.Compare(a.Platform, b.Platform),
		cmp.Compare(a.PatientType, b.PatientType),
		cmp.Compare(a.ReferredFrom, b.ReferredFrom),
		cmp.Compare(a.AgeOrRepeat, b.AgeOrRepeat),
		cmp.Compare(a.TxOrTxD, b.TxOrTxD),
	)
}
