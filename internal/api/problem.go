package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/remote"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/store"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/validation"
)

const problemBaseURI = "https://hospital-stats.dev/errors/"

// Problem represents an RFC 7807 Problem Details response. Code is the
// machine-readable failure class clients branch on.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized:          {problemBaseURI + "unauthorized", "Unauthorized"},
	http.StatusBadRequest:            {problemBaseURI + "bad-request", "Bad Request"},
	http.StatusNotFound:              {problemBaseURI + "not-found", "Not Found"},
	http.StatusInternalServerError:   {problemBaseURI + "internal-error", "Internal Server Error"},
	http.StatusUnprocessableEntity:   {problemBaseURI + "validation-error", "Validation Error"},
	http.StatusServiceUnavailable:    {problemBaseURI + "service-unavailable", "Service Unavailable"},
	http.StatusConflict:              {problemBaseURI + "conflict", "Conflict"},
	http.StatusForbidden:             {problemBaseURI + "forbidden", "Forbidden"},
	http.StatusRequestEntityTooLarge: {problemBaseURI + "too-large", "Request Entity Too Large"},
}

func newProblem(r *http.Request, status int, detail string) Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt.typeURI = problemBaseURI + "unknown"
		pt.title = http.StatusText(status)
	}
	return Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Code:     remote.CodeForStatus(status),
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemBody(w, status, newProblem(r, status, detail))
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	p := ProblemWithErrors{
		Problem: newProblem(r, http.StatusUnprocessableEntity, detail),
		Errors:  errs,
	}
	writeProblemBody(w, http.StatusUnprocessableEntity, p)
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapStoreError converts domain errors to Problem Details responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrDuplicate):
		WriteProblem(w, r, http.StatusConflict, "A record with the same key already exists")
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
