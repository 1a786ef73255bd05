package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

// GetProfile returns the profile stored for owner.
func (s *SQLStore) GetProfile(ctx context.Context, owner string) (types.Profile, error) {
	var p types.Profile
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, name, role, sub_district FROM profiles WHERE id = ?
	`), owner).Scan(&p.ID, &p.Name, &p.Role, &p.SubDistrict)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// PutProfile creates or replaces the profile keyed by p.ID.
func (s *SQLStore) PutProfile(ctx context.Context, p types.Profile) (types.Profile, error) {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO profiles (id, name, role, sub_district, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			sub_district = excluded.sub_district,
			updated_at = excluded.updated_at
	`), p.ID, p.Name, p.Role, p.SubDistrict, formatTime(s.now()))
	if err != nil {
		return types.Profile{}, fmt.Errorf("put profile: %w", err)
	}
	return p, nil
}

// DeleteVisitTotals removes owner's visit rows for a period. An empty
// ownerName matches every owner name stored under owner.
func (s *SQLStore) DeleteVisitTotals(ctx context.Context, owner, month string, year int, ownerName string) (int64, error) {
	return s.deletePeriod(ctx, "visit_totals", owner, month, year, ownerName)
}

// DeleteBookingTotals removes owner's booking rows for a period.
func (s *SQLStore) DeleteBookingTotals(ctx context.Context, owner, month string, year int, ownerName string) (int64, error) {
	return s.deletePeriod(ctx, "booking_totals", owner, month, year, ownerName)
}

func (s *SQLStore) deletePeriod(ctx context.Context, table, owner, month string, year int, ownerName string) (int64, error) {
	query := `DELETE FROM ` + table + ` WHERE user_id = ? AND month = ? AND year = ?`
	args := []any{owner, month, year}
	if ownerName != "" {
		query += ` AND owner_name = ?`
		args = append(args, ownerName)
	}

	result, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// InsertVisitTotals stores rows for owner in one transaction. A key
// collision rolls the whole batch back with ErrDuplicate.
func (s *SQLStore) InsertVisitTotals(ctx context.Context, owner string, rows []types.VisitBucket) error {
	if len(rows) == 0 {
		return nil
	}
	createdAt := formatTime(s.now())
	return s.insertBatch(ctx, "visit_totals", `
		INSERT INTO visit_totals (
			user_id, owner_name, month, year, facility, platform, patient_type,
			referred_from, age_or_repeat, tx_or_txd, count, role, sub_district, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(rows), func(i int) []any {
		r := rows[i]
		return []any{
			owner, r.OwnerName, r.Month, r.Year, r.Facility, r.Platform, r.PatientType,
			r.ReferredFrom, r.AgeOrRepeat, r.TxOrTxD, r.Count, r.Role, r.SubDistrict, createdAt,
		}
	})
}

// InsertBookingTotals stores rows for owner in one transaction.
func (s *SQLStore) InsertBookingTotals(ctx context.Context, owner string, rows []types.BookingBucket) error {
	if len(rows) == 0 {
		return nil
	}
	createdAt := formatTime(s.now())
	return s.insertBatch(ctx, "booking_totals", `
		INSERT INTO booking_totals (
			user_id, dedup_key, facility, total_booked, booked_seen, unbooked_seen,
			month, year, owner_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(rows), func(i int) []any {
		r := rows[i]
		return []any{
			owner, r.DedupKey, r.Facility, r.TotalBooked, r.BookedSeen, r.UnbookedSeen,
			r.Month, r.Year, r.OwnerName, createdAt,
		}
	})
}

func (s *SQLStore) insertBatch(ctx context.Context, table, query string, n int, args func(int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(query))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert %s: %w", table, ErrDuplicate)
			}
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListVisitTotals returns owner's visit rows for a period in key order.
func (s *SQLStore) ListVisitTotals(ctx context.Context, owner, month string, year int) ([]types.VisitBucket, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT owner_name, month, year, facility, platform, patient_type, referred_from,
		       age_or_repeat, tx_or_txd, count, role, sub_district
		FROM visit_totals
		WHERE user_id = ? AND month = ? AND year = ?
		ORDER BY facility, platform, patient_type, referred_from, age_or_repeat, tx_or_txd
	`), owner, month, year)
	if err != nil {
		return nil, fmt.Errorf("query visit totals: %w", err)
	}
	defer rows.Close()

	var out []types.VisitBucket
	for rows.Next() {
		var b types.VisitBucket
		if err := rows.Scan(
			&b.OwnerName, &b.Month, &b.Year, &b.Facility, &b.Platform, &b.PatientType, &b.ReferredFrom,
			&b.AgeOrRepeat, &b.TxOrTxD, &b.Count, &b.Role, &b.SubDistrict,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ListBookingTotals returns owner's booking rows for a period by facility.
func (s *SQLStore) ListBookingTotals(ctx context.Context, owner, month string, year int) ([]types.BookingBucket, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT dedup_key, facility, total_booked, booked_seen, unbooked_seen, month, year, owner_name
		FROM booking_totals
		WHERE user_id = ? AND month = ? AND year = ?
		ORDER BY facility, dedup_key
	`), owner, month, year)
	if err != nil {
		return nil, fmt.Errorf("query booking totals: %w", err)
	}
	defer rows.Close()

	var out []types.BookingBucket
	for rows.Next() {
		var b types.BookingBucket
		if err := rows.Scan(
			&b.DedupKey, &b.Facility, &b.TotalBooked, &b.BookedSeen, &b.UnbookedSeen,
			&b.Month, &b.Year, &b.OwnerName,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ListSummaryPeriods returns every (month, year, owner name) that has visit
// or booking rows stored under owner.
func (s *SQLStore) ListSummaryPeriods(ctx context.Context, owner string) ([]types.SummaryPeriod, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT month, year, owner_name FROM visit_totals WHERE user_id = ?
		UNION
		SELECT month, year, owner_name FROM booking_totals WHERE user_id = ?
		ORDER BY year, month, owner_name
	`), owner, owner)
	if err != nil {
		return nil, fmt.Errorf("query summary periods: %w", err)
	}
	defer rows.Close()

	var out []types.SummaryPeriod
	for rows.Next() {
		var p types.SummaryPeriod
		if err := rows.Scan(&p.Month, &p.Year, &p.OwnerName); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
