package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/validation"
)

// SummaryChange reports how many summary rows a write touched.
type SummaryChange struct {
	Deleted  int64 `json:"deleted"`
	Inserted int   `json:"inserted"`
}

// period parses and validates the month/year query pair.
func period(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	month := r.URL.Query().Get("month")
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		year = 0
	}
	if errs := validation.ValidatePeriod(month, year); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid reporting period", errs)
		return "", 0, false
	}
	return month, year, true
}

// ListVisitTotals handles GET /api/v1/summaries/visits
func (h *Handler) ListVisitTotals(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())
	month, year, ok := period(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListVisitTotals(r.Context(), owner, month, year)
	if err != nil {
		slog.Error("list visit totals failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}
	if rows == nil {
		rows = []types.VisitBucket{}
	}
	writeJSON(w, http.StatusOK, types.VisitTotalsPayload{Rows: rows})
}

// InsertVisitTotals handles POST /api/v1/summaries/visits
func (h *Handler) InsertVisitTotals(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())

	var payload types.VisitTotalsPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if errs := validation.ValidateVisitRows(payload.Rows); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Visit totals contain invalid rows", errs)
		return
	}

	if err := h.store.InsertVisitTotals(r.Context(), owner, payload.Rows); err != nil {
		slog.Warn("insert visit totals failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SummaryChange{Inserted: len(payload.Rows)})
}

// DeleteVisitTotals handles DELETE /api/v1/summaries/visits
func (h *Handler) DeleteVisitTotals(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())
	month, year, ok := period(w, r)
	if !ok {
		return
	}

	n, err := h.store.DeleteVisitTotals(r.Context(), owner, month, year, r.URL.Query().Get("owner_name"))
	if err != nil {
		slog.Error("delete visit totals failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryChange{Deleted: n})
}

// ListBookingTotals handles GET /api/v1/summaries/bookings
func (h *Handler) ListBookingTotals(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())
	month, year, ok := period(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListBookingTotals(r.Context(), owner, month, year)
	if err != nil {
		slog.Error("list booking totals failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}
	if rows == nil {
		rows = []types.BookingBucket{}
	}
	writeJSON(w, http.StatusOK, types.BookingTotalsPayload{Rows: rows})
}

// InsertBookingTotals handles POST /api/v1/summaries/bookings
func (h *Handler) InsertBookingTotals(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())

	var payload types.BookingTotalsPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if errs := validation.ValidateBookingRows(payload.Rows); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Booking totals contain invalid rows", errs)
		return
	}

	if err := h.store.InsertBookingTotals(r.Context(), owner, payload.Rows); err != nil {
		slog.Warn("insert booking totals failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SummaryChange{Inserted: len(payload.Rows)})
}

// DeleteBookingTotals handles DELETE /api/v1/summaries/bookings
func (h *Handler) DeleteBookingTotals(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())
	month, year, ok := period(w, r)
	if !ok {
		return
	}

	n, err := h.store.DeleteBookingTotals(r.Context(), owner, month, year, r.URL.Query().Get("owner_name"))
	if err != nil {
		slog.Error("delete booking totals failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryChange{Deleted: n})
}

// ListSummaryPeriods handles GET /api/v1/summaries/periods
func (h *Handler) ListSummaryPeriods(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())

	periods, err := h.store.ListSummaryPeriods(r.Context(), owner)
	if err != nil {
		slog.Error("list summary periods failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}
	if periods == nil {
		periods = []types.SummaryPeriod{}
	}
	writeJSON(w, http.StatusOK, types.SummaryPeriodsPayload{Periods: periods})
}
