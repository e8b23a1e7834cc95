package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
)

func invalidParam(key, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, key+" "+message).WithDetails(map[string]any{"field": key})
}

// ParseUUIDParam reads a required chi path parameter as a UUID.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, invalidParam(key, "is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidParam(key, "must be a uuid")
	}
	return id, nil
}

// ParseQueryInt reads an optional integer within [min, max], returning def
// when the parameter is absent.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, invalidParam(key, "must be an integer")
	case n < min || n > max:
		return 0, invalidParam(key, "is out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return n, nil
}

// ParseQueryDate reads an optional YYYY-MM-DD parameter.
func ParseQueryDate(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, invalidParam(key, "must be a date (YYYY-MM-DD)")
	}
	return &day, nil
}

// ParseQueryBool reads an optional boolean, returning false when absent.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidParam(key, "must be true or false")
	}
	return v, nil
}
