package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/services"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

// ownerHeader carries the caller's identity. Authentication itself is
// handled upstream; the API trusts this header.
const ownerHeader = "X-Owner-ID"

var errMissingOwner = errors.New("missing owner identity")

func ownerID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(ownerHeader))
	if id == "" {
		return "", errMissingOwner
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses. Validation errors
// are 400, missing or foreign records are 404, lost balance races that
// exhausted their retries are 409, anything else is a 500 with the
// detail kept out of the response body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, storage.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conflicting concurrent update, retry"})
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		errMissingOwner,
		core.ErrInvalidAmount,
		core.ErrInvalidKind,
		core.ErrInvalidAccountType,
		core.ErrInvalidCategory,
		core.ErrEmptyDescription,
		core.ErrDescriptionTooLong,
		core.ErrEmptyName,
		core.ErrMissingAccount,
		core.ErrMissingOwner,
		core.ErrZeroDate,
		core.ErrTransferTarget,
		services.ErrCategoryCycle,
		services.ErrSystemCategory,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (time.Time, error) {
	return time.Parse("2006-01-02", dateStr)
}

// parseYearMonth extracts year and month from query parameters.
// Returns current year/month as defaults if not provided or invalid.
func parseYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}

	return year, month
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
