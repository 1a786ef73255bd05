package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

const encounterColumns = `id, user_id, patient_identifier, age_group, facility, facility_type,
	inpatient_outpatient, appointment_date, appointment_type, referral_source,
	referral_source_other, clinical_area, clinical_area_other, attendance, disposal,
	clinical_outcome, session_duration, activities, assistive_devices, created_at, updated_at`

// InsertEncounter stores e for e.Owner. A server id is assigned unless e
// already carries one.
func (s *SQLStore) InsertEncounter(ctx context.Context, e types.Encounter) (types.Encounter, error) {
	now := s.now()
	if e.ID == "" {
		e.ID = s.newID()
	}
	e.LocalID = ""
	e.Synced = false
	e.SyncedAt = nil
	e.Source = ""
	e.CreatedAt = now
	e.UpdatedAt = now

	activities, devices, err := encodeCollections(e)
	if err != nil {
		return types.Encounter{}, err
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO patient_records (`+encounterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		e.ID, e.Owner, e.PatientIdentifier, e.AgeGroup, e.Facility, e.FacilityType,
		e.InpatientOutpatient, e.AppointmentDate, e.AppointmentType, e.ReferralSource,
		e.ReferralSourceOther, e.ClinicalArea, e.ClinicalAreaOther, e.Attendance, e.Disposal,
		e.ClinicalOutcome, nullInt(e.SessionDuration), activities, devices,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Encounter{}, fmt.Errorf("insert encounter: %w", ErrDuplicate)
		}
		return types.Encounter{}, fmt.Errorf("insert encounter: %w", err)
	}

	return e, nil
}

// UpdateEncounter replaces the mutable fields of row id owned by owner.
func (s *SQLStore) UpdateEncounter(ctx context.Context, owner, id string, e types.Encounter) (types.Encounter, error) {
	activities, devices, err := encodeCollections(e)
	if err != nil {
		return types.Encounter{}, err
	}

	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE patient_records
		SET patient_identifier = ?, age_group = ?, facility = ?, facility_type = ?,
		    inpatient_outpatient = ?, appointment_date = ?, appointment_type = ?,
		    referral_source = ?, referral_source_other = ?, clinical_area = ?,
		    clinical_area_other = ?, attendance = ?, disposal = ?, clinical_outcome = ?,
		    session_duration = ?, activities = ?, assistive_devices = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`),
		e.PatientIdentifier, e.AgeGroup, e.Facility, e.FacilityType,
		e.InpatientOutpatient, e.AppointmentDate, e.AppointmentType,
		e.ReferralSource, e.ReferralSourceOther, e.ClinicalArea,
		e.ClinicalAreaOther, e.Attendance, e.Disposal, e.ClinicalOutcome,
		nullInt(e.SessionDuration), activities, devices, formatTime(s.now()),
		id, owner,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Encounter{}, fmt.Errorf("update encounter: %w", ErrDuplicate)
		}
		return types.Encounter{}, fmt.Errorf("update encounter: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.Encounter{}, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return types.Encounter{}, ErrNotFound
	}

	return s.getEncounter(ctx, owner, id)
}

// DeleteEncounter removes row id owned by owner.
func (s *SQLStore) DeleteEncounter(ctx context.Context, owner, id string) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM patient_records WHERE id = ? AND user_id = ?`), id, owner)
	if err != nil {
		return fmt.Errorf("delete encounter: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEncounters returns every row owned by owner, oldest appointment first.
func (s *SQLStore) ListEncounters(ctx context.Context, owner string) ([]types.Encounter, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+encounterColumns+`
		FROM patient_records
		WHERE user_id = ?
		ORDER BY appointment_date ASC, created_at ASC
	`), owner)
	if err != nil {
		return nil, fmt.Errorf("query encounters: %w", err)
	}
	defer rows.Close()

	var out []types.Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (s *SQLStore) getEncounter(ctx context.Context, owner, id string) (types.Encounter, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+encounterColumns+`
		FROM patient_records
		WHERE id = ? AND user_id = ?
	`), id, owner)

	e, err := scanEncounter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Encounter{}, ErrNotFound
		}
		return types.Encounter{}, fmt.Errorf("scan row: %w", err)
	}
	return e, nil
}

// scanEncounter scans a row into an Encounter, decoding the JSON columns.
func scanEncounter(scanner interface{ Scan(...any) error }) (types.Encounter, error) {
	var (
		e                    types.Encounter
		duration             sql.NullInt64
		activities, devices  string
		createdAt, updatedAt string
	)
	err := scanner.Scan(
		&e.ID, &e.Owner, &e.PatientIdentifier, &e.AgeGroup, &e.Facility, &e.FacilityType,
		&e.InpatientOutpatient, &e.AppointmentDate, &e.AppointmentType, &e.ReferralSource,
		&e.ReferralSourceOther, &e.ClinicalArea, &e.ClinicalAreaOther, &e.Attendance, &e.Disposal,
		&e.ClinicalOutcome, &duration, &activities, &devices, &createdAt, &updatedAt,
	)
	if err != nil {
		return types.Encounter{}, err
	}

	if duration.Valid {
		d := int(duration.Int64)
		e.SessionDuration = &d
	}
	if activities != "" {
		if err := json.Unmarshal([]byte(activities), &e.Activities); err != nil {
			return types.Encounter{}, fmt.Errorf("parse activities JSON: %w", err)
		}
	}
	if devices != "" {
		if err := json.Unmarshal([]byte(devices), &e.AssistiveDevices); err != nil {
			return types.Encounter{}, fmt.Errorf("parse assistive devices JSON: %w", err)
		}
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

func encodeCollections(e types.Encounter) (string, string, error) {
	activities := e.Activities
	if activities == nil {
		activities = []string{}
	}
	devices := e.AssistiveDevices
	if devices == nil {
		devices = map[string]types.DeviceIssue{}
	}
	a, err := json.Marshal(activities)
	if err != nil {
		return "", "", fmt.Errorf("marshal activities: %w", err)
	}
	d, err := json.Marshal(devices)
	if err != nil {
		return "", "", fmt.Errorf("marshal assistive devices: %w", err)
	}
	return string(a), string(d), nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
