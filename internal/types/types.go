package types

import (
	"encoding/json"
	"time"
)

// Appointment kinds.
const (
	AppointmentNew    = "new"
	AppointmentRepeat = "repeat"
)

// Attendance outcomes. The set is closed; aggregation routes every value
// other than Attended and walk-in into total_booked only.
const (
	AttendanceAttended           = "Attended"
	AttendanceWalkIn             = "Attended Without Appointment (Walk-in)"
	AttendanceAttendedNotTreated = "Attended Not Treated"
	AttendanceDidNotAttend       = "Did Not Attend (DNA)"
	AttendanceCancelledOnDay     = "Cancelled On Day"
	AttendanceRescheduled        = "Rescheduled"
)

// AttendanceValues lists every accepted attendance outcome.
var AttendanceValues = []string{
	AttendanceAttended,
	AttendanceWalkIn,
	AttendanceAttendedNotTreated,
	AttendanceDidNotAttend,
	AttendanceCancelledOnDay,
	AttendanceRescheduled,
}

// Facility type tags.
const (
	FacilityHospital = "hospital"
	FacilityICF      = "icf"
	FacilityPHC      = "phc"
	FacilityCBS      = "cbs"
)

// Referral sources.
const (
	ReferralHospital = "hospital"
	ReferralPHC      = "phc"
	ReferralCBS      = "cbs"
	ReferralOther    = "other"
)

// Hospital encounters are split by ward setting.
const (
	SettingInpatient  = "in-patient"
	SettingOutpatient = "out-patient"
)

// SourceLocal tags records created on this device.
const SourceLocal = "local"

// DeviceIssue describes one assistive device line on an encounter.
type DeviceIssue struct {
	Issued       bool   `json:"issued"`
	Funding      string `json:"funding,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"` // wheelchairs only
	Description  string `json:"description,omitempty"`   // "other" devices only
}

// Encounter is one therapist-patient visit.
//
// LocalID is assigned on this device and never changes; ID is the server
// identifier and stays empty until the remote store first accepts the row.
type Encounter struct {
	ID                  string                 `json:"id,omitempty"`
	LocalID             string                 `json:"local_id,omitempty"`
	Owner               string                 `json:"user_id"`
	PatientIdentifier   string                 `json:"patient_identifier"`
	AgeGroup            string                 `json:"age_group"`
	Facility            string                 `json:"facility"`
	FacilityType        string                 `json:"facility_type"`
	InpatientOutpatient string                 `json:"inpatient_outpatient,omitempty"`
	AppointmentDate     string                 `json:"appointment_date"`
	AppointmentType     string                 `json:"appointment_type"`
	ReferralSource      string                 `json:"referral_source"`
	ReferralSourceOther string                 `json:"referral_source_other,omitempty"`
	ClinicalArea        string                 `json:"clinical_area"`
	ClinicalAreaOther   string                 `json:"clinical_area_other,omitempty"`
	Attendance          string                 `json:"attendance"`
	Disposal            string                 `json:"disposal,omitempty"`
	ClinicalOutcome     string                 `json:"clinical_outcome,omitempty"`
	SessionDuration     *int                   `json:"session_duration"`
	Activities          []string               `json:"activities"`
	AssistiveDevices    map[string]DeviceIssue `json:"assistive_devices"`

	Synced    bool       `json:"synced"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
	Source    string     `json:"source,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasServerID reports whether the record carries a server identifier that is
// distinct from its local handle.
func (e Encounter) HasServerID() bool {
	return e.ID != "" && e.ID != e.LocalID
}

// Matches reports whether id names this record by local or server identifier.
func (e Encounter) Matches(id string) bool {
	return id != "" && (e.LocalID == id || e.ID == id)
}

// DeviceIssued reports whether any assistive device line was issued.
func (e Encounter) DeviceIssued() bool {
	for _, d := range e.AssistiveDevices {
		if d.Issued {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (e Encounter) Clone() Encounter {
	c := e
	if e.SessionDuration != nil {
		v := *e.SessionDuration
		c.SessionDuration = &v
	}
	if e.SyncedAt != nil {
		t := *e.SyncedAt
		c.SyncedAt = &t
	}
	if e.Activities != nil {
		c.Activities = append([]string(nil), e.Activities...)
	}
	if e.AssistiveDevices != nil {
		c.AssistiveDevices = make(map[string]DeviceIssue, len(e.AssistiveDevices))
		for k, v := range e.AssistiveDevices {
			c.AssistiveDevices[k] = v
		}
	}
	return c
}

// RemotePayload strips the fields that only exist on this device.
func (e Encounter) RemotePayload() Encounter {
	p := e.Clone()
	if p.ID == p.LocalID {
		p.ID = ""
	}
	p.LocalID = ""
	p.Synced = false
	p.SyncedAt = nil
	p.Source = ""
	return p
}

// MarshalJSON ensures nil collections marshal as [] and {} not null.
func (e Encounter) MarshalJSON() ([]byte, error) {
	if e.Activities == nil {
		e.Activities = []string{}
	}
	if e.AssistiveDevices == nil {
		e.AssistiveDevices = map[string]DeviceIssue{}
	}
	type Alias Encounter
	return json.Marshal(Alias(e))
}

// EncounterPatch is an all-optional mirror of Encounter. Nil fields leave the
// target unchanged; non-nil fields overwrite. Activities and AssistiveDevices
// are replaced wholesale when non-nil (pass an empty value to clear them).
// There is no Owner field; ownership never changes after creation.
type EncounterPatch struct {
	PatientIdentifier    *string                `json:"patient_identifier,omitempty"`
	AgeGroup             *string                `json:"age_group,omitempty"`
	Facility             *string                `json:"facility,omitempty"`
	FacilityType         *string                `json:"facility_type,omitempty"`
	InpatientOutpatient  *string                `json:"inpatient_outpatient,omitempty"`
	AppointmentDate      *string                `json:"appointment_date,omitempty"`
	AppointmentType      *string                `json:"appointment_type,omitempty"`
	ReferralSource       *string                `json:"referral_source,omitempty"`
	ReferralSourceOther  *string                `json:"referral_source_other,omitempty"`
	ClinicalArea         *string                `json:"clinical_area,omitempty"`
	ClinicalAreaOther    *string                `json:"clinical_area_other,omitempty"`
	Attendance           *string                `json:"attendance,omitempty"`
	Disposal             *string                `json:"disposal,omitempty"`
	ClinicalOutcome      *string                `json:"clinical_outcome,omitempty"`
	SessionDuration      *int                   `json:"session_duration,omitempty"`
	ClearSessionDuration bool                   `json:"clear_session_duration,omitempty"`
	Activities           []string               `json:"activities,omitempty"`
	AssistiveDevices     map[string]DeviceIssue `json:"assistive_devices,omitempty"`
}

// Apply merges the patch into e field by field.
func (p EncounterPatch) Apply(e *Encounter) {
	setString(&e.PatientIdentifier, p.PatientIdentifier)
	setString(&e.AgeGroup, p.AgeGroup)
	setString(&e.Facility, p.Facility)
	setString(&e.FacilityType, p.FacilityType)
	setString(&e.InpatientOutpatient, p.InpatientOutpatient)
	setString(&e.AppointmentDate, p.AppointmentDate)
	setString(&e.AppointmentType, p.AppointmentType)
	setString(&e.ReferralSource, p.ReferralSource)
	setString(&e.ReferralSourceOther, p.ReferralSourceOther)
	setString(&e.ClinicalArea, p.ClinicalArea)
	setString(&e.ClinicalAreaOther, p.ClinicalAreaOther)
	setString(&e.Attendance, p.Attendance)
	setString(&e.Disposal, p.Disposal)
	setString(&e.ClinicalOutcome, p.ClinicalOutcome)

	switch {
	case p.ClearSessionDuration:
		e.SessionDuration = nil
	case p.SessionDuration != nil:
		v := *p.SessionDuration
		e.SessionDuration = &v
	}

	if p.Activities != nil {
		e.Activities = append([]string{}, p.Activities...)
	}
	if p.AssistiveDevices != nil {
		e.AssistiveDevices = make(map[string]DeviceIssue, len(p.AssistiveDevices))
		for k, v := range p.AssistiveDevices {
			e.AssistiveDevices[k] = v
		}
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p EncounterPatch) IsEmpty() bool {
	for _, s := range []*string{
		p.PatientIdentifier, p.AgeGroup, p.Facility, p.FacilityType,
		p.InpatientOutpatient, p.AppointmentDate, p.AppointmentType,
		p.ReferralSource, p.ReferralSourceOther, p.ClinicalArea,
		p.ClinicalAreaOther, p.Attendance, p.Disposal, p.ClinicalOutcome,
	} {
		if s != nil {
			return false
		}
	}
	return p.SessionDuration == nil && !p.ClearSessionDuration &&
		p.Activities == nil && p.AssistiveDevices == nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// RecordFilter selects records by exact field match. Empty fields are ignored.
type RecordFilter struct {
	Owner             string
	Facility          string
	PatientIdentifier string
	AppointmentDate   string
	Synced            *bool
}

// Match reports whether e satisfies every set field of the filter.
func (f RecordFilter) Match(e Encounter) bool {
	if f.Owner != "" && e.Owner != f.Owner {
		return false
	}
	if f.Facility != "" && e.Facility != f.Facility {
		return false
	}
	if f.PatientIdentifier != "" && e.PatientIdentifier != f.PatientIdentifier {
		return false
	}
	if f.AppointmentDate != "" && e.AppointmentDate != f.AppointmentDate {
		return false
	}
	if f.Synced != nil && e.Synced != *f.Synced {
		return false
	}
	return true
}

// SyncMetadata is written only by the sync engine.
type SyncMetadata struct {
	LastSync        *time.Time `json:"lastSync"`
	LastSyncedCount int        `json:"lastSyncedCount"`
	LastFailedCount int        `json:"lastFailedCount"`
	TotalSynced     int        `json:"totalSynced"`
}

// FailedRecord describes one record that did not upload during a sync run.
type FailedRecord struct {
	LocalID           string `json:"localId"`
	PatientIdentifier string `json:"patientIdentifier,omitempty"`
	Reason            string `json:"reason"`
	Error             string `json:"error"`
	Duplicate         bool   `json:"duplicate"`
}

// SyncResult summarizes one sync run for status display.
type SyncResult struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	SyncedCount   int            `json:"syncedCount"`
	FailedCount   int            `json:"failedCount"`
	FailedRecords []FailedRecord `json:"failedRecords"`
}

// MarshalJSON ensures nil slices in SyncResult marshal as [] not null.
func (r SyncResult) MarshalJSON() ([]byte, error) {
	if r.FailedRecords == nil {
		r.FailedRecords = []FailedRecord{}
	}
	type Alias SyncResult
	return json.Marshal(Alias(r))
}

// AggregationResult summarizes one aggregation run.
type AggregationResult struct {
	Success              bool     `json:"success"`
	Message              string   `json:"message"`
	AggregatedMonths     int      `json:"aggregatedMonths"`
	BackendRecords       int      `json:"backendRecords"`
	BookedNumbersRecords int      `json:"bookedNumbersRecords"`
	Errors               []string `json:"errors"`
}

// MarshalJSON ensures nil slices in AggregationResult marshal as [] not null.
func (r AggregationResult) MarshalJSON() ([]byte, error) {
	if r.Errors == nil {
		r.Errors = []string{}
	}
	type Alias AggregationResult
	return json.Marshal(Alias(r))
}

// Profile is the owner's labelling information used by aggregation.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	SubDistrict string `json:"sub_district"`
}

// VisitKey is the classification tuple of a visit bucket. It is a comparable
// struct so it can key a map directly.
type VisitKey struct {
	Facility     string `json:"facility"`
	Platform     string `json:"platform"`
	PatientType  string `json:"patient_type"`
	ReferredFrom string `json:"referred_from"`
	AgeOrRepeat  string `json:"age_or_repeat"`
	TxOrTxD      string `json:"tx_or_txd"`
}

// VisitBucket is one row of the visit totals table.
type VisitBucket struct {
	VisitKey
	Count       int    `json:"count"`
	Month       string `json:"month"`
	Year        int    `json:"year"`
	OwnerName   string `json:"owner_name"`
	Role        string `json:"role,omitempty"`
	SubDistrict string `json:"sub_district,omitempty"`
}

// BookingBucket is one row of the facility booking totals table.
type BookingBucket struct {
	DedupKey     string `json:"dedup_key"`
	Facility     string `json:"facility"`
	TotalBooked  int    `json:"total_booked"`
	BookedSeen   int    `json:"booked_seen"`
	UnbookedSeen int    `json:"unbooked_seen"`
	Month        string `json:"month"`
	Year         int    `json:"year"`
	OwnerName    string `json:"owner_name"`
}

// SummaryPeriod names one group of stored summary rows.
type SummaryPeriod struct {
	Month     string `json:"month"`
	Year      int    `json:"year"`
	OwnerName string `json:"owner_name"`
}

// SummaryPeriodsPayload lists the periods that hold summary rows.
type SummaryPeriodsPayload struct {
	Periods []SummaryPeriod `json:"periods"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Driver  string `json:"driver"`
}

// EncountersResponse wraps a list of encounter rows.
type EncountersResponse struct {
	Encounters []Encounter `json:"encounters"`
}

// MarshalJSON ensures nil slices marshal as [] not null.
func (r EncountersResponse) MarshalJSON() ([]byte, error) {
	if r.Encounters == nil {
		r.Encounters = []Encounter{}
	}
	type Alias EncountersResponse
	return json.Marshal(Alias(r))
}

// VisitTotalsPayload carries visit total rows in both directions.
type VisitTotalsPayload struct {
	Rows []VisitBucket `json:"rows"`
}

// BookingTotalsPayload carries booking total rows in both directions.
type BookingTotalsPayload struct {
	Rows []BookingBucket `json:"rows"`
}
