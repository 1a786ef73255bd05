package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/store"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/validation"
)

// maxBodyBytes caps request bodies; a month of summary rows is far below it.
const maxBodyBytes = 1 << 20

// Handler implements the API handlers
type Handler struct {
	store   store.Store
	apiKey  string
	version string
}

// NewHandler creates a new Handler with store.Store interface
func NewHandler(s store.Store, apiKey, version string) *Handler {
	return &Handler{
		store:   s,
		apiKey:  apiKey,
		version: version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON reads a bounded JSON body into v, writing the problem response
// itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Driver:  h.store.Driver(),
	})
}

// ListEncounters handles GET /api/v1/encounters
func (h *Handler) ListEncounters(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())

	rows, err := h.store.ListEncounters(r.Context(), owner)
	if err != nil {
		slog.Error("list encounters failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.EncountersResponse{Encounters: rows})
}

// CreateEncounter handles POST /api/v1/encounters
func (h *Handler) CreateEncounter(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())

	var e types.Encounter
	if !decodeJSON(w, r, &e) {
		return
	}
	if e.Owner != "" && e.Owner != owner {
		WriteProblem(w, r, http.StatusForbidden, "user_id does not match the authenticated owner")
		return
	}
	e.Owner = owner

	if errs := validation.ValidateEncounter(e); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Encounter contains invalid fields", errs)
		return
	}

	created, err := h.store.InsertEncounter(r.Context(), e)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			slog.Info("duplicate encounter rejected",
				"component", "api",
				"owner", owner,
				"appointment_date", e.AppointmentDate,
			)
			WriteProblem(w, r, http.StatusConflict, fmt.Sprintf(
				"An encounter for patient %q on %s at %s already exists",
				e.PatientIdentifier, e.AppointmentDate, e.Facility))
			return
		}
		slog.Error("insert encounter failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateEncounter handles PATCH /api/v1/encounters/{id}
func (h *Handler) UpdateEncounter(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var e types.Encounter
	if !decodeJSON(w, r, &e) {
		return
	}
	e.Owner = owner

	if errs := validation.ValidateEncounter(e); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Encounter contains invalid fields", errs)
		return
	}

	updated, err := h.store.UpdateEncounter(r.Context(), owner, id, e)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrDuplicate) {
			slog.Error("update encounter failed", "component", "api", "id", id, "error", err)
		}
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteEncounter handles DELETE /api/v1/encounters/{id}
func (h *Handler) DeleteEncounter(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteEncounter(r.Context(), owner, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("delete encounter failed", "component", "api", "id", id, "error", err)
		}
		MapStoreError(w, r, err)
		return
	}

	slog.Info("encounter deleted", "component", "api", "owner", owner, "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile handles GET /api/v1/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())

	p, err := h.store.GetProfile(r.Context(), owner)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PutProfile handles PUT /api/v1/profile
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	owner := MustOwnerFromContext(r.Context())

	var p types.Profile
	if !decodeJSON(w, r, &p) {
		return
	}
	p.ID = owner

	if errs := validation.ValidateProfile(p); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Profile contains invalid fields", errs)
		return
	}

	saved, err := h.store.PutProfile(r.Context(), p)
	if err != nil {
		slog.Error("put profile failed", "component", "api", "owner", owner, "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
