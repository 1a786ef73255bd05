package validation

import (
	"cmp"
	"slices"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// Field limits.
const (
	MaxIdentifierLength = 64
	MaxTextLength       = 200
	MaxNotesLength      = 2000
	MinSessionMinutes   = 1
	MaxSessionMinutes   = 480
	MinYear             = 2000
	MaxYear             = 2100
	MaxActivities       = 50
)

var appointmentTypes = []string{types.AppointmentNew, types.AppointmentRepeat}

// ValidateEncounter checks a row before the service stores it.
func ValidateEncounter(e types.Encounter) []ValidationError {
	var c Collector

	c.Add(ValidateRequired("user_id", e.Owner))
	c.Add(ValidateRequired("patient_identifier", e.PatientIdentifier))
	ValidateText(&c, "patient_identifier", e.PatientIdentifier, MaxIdentifierLength)
	c.Add(ValidateRequired("facility", e.Facility))
	ValidateText(&c, "facility", e.Facility, MaxTextLength)
	c.Add(ValidateDate("appointment_date", e.AppointmentDate))

	if e.AppointmentType != "" {
		c.Add(ValidateEnum("appointment_type", e.AppointmentType, appointmentTypes))
	}
	if e.Attendance != "" {
		c.Add(ValidateEnum("attendance", e.Attendance, types.AttendanceValues))
	}
	if e.SessionDuration != nil {
		c.Add(ValidateIntRange("session_duration", *e.SessionDuration, MinSessionMinutes, MaxSessionMinutes))
	}

	for field, v := range map[string]string{
		"age_group":             e.AgeGroup,
		"facility_type":         e.FacilityType,
		"inpatient_outpatient":  e.InpatientOutpatient,
		"referral_source":       e.ReferralSource,
		"referral_source_other": e.ReferralSourceOther,
		"clinical_area":         e.ClinicalArea,
		"clinical_area_other":   e.ClinicalAreaOther,
		"disposal":              e.Disposal,
	} {
		ValidateText(&c, field, v, MaxTextLength)
	}
	ValidateText(&c, "clinical_outcome", e.ClinicalOutcome, MaxNotesLength)

	if len(e.Activities) > MaxActivities {
		c.Add(&ValidationError{Field: "activities", Message: "must not list more than 50 activities"})
	}
	for _, a := range e.Activities {
		ValidateText(&c, "activities", a, MaxTextLength)
	}
	for device, d := range e.AssistiveDevices {
		ValidateText(&c, "assistive_devices", device, MaxTextLength)
		ValidateText(&c, "assistive_devices."+device+".serial_number", d.SerialNumber, MaxIdentifierLength)
		ValidateText(&c, "assistive_devices."+device+".description", d.Description, MaxTextLength)
	}

	return sortErrors(c.Errors())
}

// ValidateProfile checks a profile update.
func ValidateProfile(p types.Profile) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("name", p.Name))
	ValidateText(&c, "name", p.Name, MaxTextLength)
	ValidateText(&c, "role", p.Role, MaxTextLength)
	ValidateText(&c, "sub_district", p.SubDistrict, MaxTextLength)
	return c.Errors()
}

// ValidatePeriod checks a month/year pair.
func ValidatePeriod(month string, year int) []ValidationError {
	var c Collector
	c.Add(ValidateMonthName("month", month))
	c.Add(ValidateIntRange("year", year, MinYear, MaxYear))
	return c.Errors()
}

// ValidateVisitRows checks rows written to the visit totals table.
func ValidateVisitRows(rows []types.VisitBucket) []ValidationError {
	var c Collector
	for _, r := range rows {
		for _, e := range ValidatePeriod(r.Month, r.Year) {
			c.Add(&e)
		}
		c.Add(ValidateRequired("owner_name", r.OwnerName))
		c.Add(ValidateRequired("facility", r.Facility))
		if r.Count < 1 {
			c.Add(&ValidationError{Field: "count", Message: "must be at least 1"})
		}
	}
	return c.Errors()
}

// ValidateBookingRows checks rows written to the booking totals table.
func ValidateBookingRows(rows []types.BookingBucket) []ValidationError {
	var c Collector
	for _, r := range rows {
		for _, e := range ValidatePeriod(r.Month, r.Year) {
			c.Add(&e)
		}
		c.Add(ValidateRequired("dedup_key", r.DedupKey))
		c.Add(ValidateRequired("facility", r.Facility))
		if r.TotalBooked < 0 || r.BookedSeen < 0 || r.UnbookedSeen < 0 {
			c.Add(&ValidationError{Field: "counts", Message: "must not be negative"})
		}
	}
	return c.Errors()
}

// sortErrors orders errors by field so map iteration does not leak into
// responses.
func sortErrors(errs []ValidationError) []ValidationError {
	slices.SortStableFunc(errs, func(a, b ValidationError) int {
		return cmp.Compare(a.Field, b.Field)
	})
	return errs
}
