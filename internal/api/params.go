package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/form4-tracker/internal/aggregate"
	"github.com/trogers1052/form4-tracker/internal/database"
	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/service"
	"github.com/trogers1052/form4-tracker/internal/syncer"
)

func first(q url.Values, name string) string {
	return strings.TrimSpace(q.Get(name))
}

// queryInt returns 0 when the parameter is absent
func queryInt(q url.Values, name string) (int, error) {
	raw := first(q, name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", aggregate.ErrInvalidFilter, name)
	}
	return v, nil
}

func queryBool(q url.Values, name string) (bool, error) {
	raw := first(q, name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", aggregate.ErrInvalidFilter, name)
	}
	return v, nil
}

func queryAmount(q url.Values, name string) (*decimal.Decimal, error) {
	raw := first(q, name)
	if raw == "" {
		return nil, nil
	}
	v, err := aggregate.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &v, nil
}

// queryDateRange reads start_date and end_date as YYYY-MM-DD. A missing end
// means today; an end without a start is rejected.
func queryDateRange(q url.Values, now time.Time) (*aggregate.DateRange, error) {
	start, end := first(q, "start_date"), first(q, "end_date")
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" {
		return nil, fmt.Errorf("%w: end_date requires start_date", aggregate.ErrInvalidFilter)
	}

	r := aggregate.DateRange{End: models.DateOf(now)}
	var err error
	if r.Start, err = models.ParseDate(start); err != nil {
		return nil, fmt.Errorf("%w: start_date: %v", aggregate.ErrInvalidFilter, err)
	}
	if end != "" {
		if r.End, err = models.ParseDate(end); err != nil {
			return nil, fmt.Errorf("%w: end_date: %v", aggregate.ErrInvalidFilter, err)
		}
	}
	if r.End.Before(r.Start) {
		return nil, fmt.Errorf("%w: end_date is before start_date", aggregate.ErrInvalidFilter)
	}
	return &r, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid request body", service.ErrInvalidInput)
	}
	return nil
}

// respondError maps domain errors onto HTTP statuses with a {"detail"} body
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, edgar.ErrUnknownTicker), errors.Is(err, database.ErrNotFound):
		respondDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, aggregate.ErrInvalidFilter), errors.Is(err, service.ErrInvalidInput):
		respondDetail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, database.ErrDuplicate):
		respondDetail(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidAPIKey):
		respondDetail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrNoHistory):
		respondDetail(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, syncer.ErrSyncFailed):
		log.Printf("Sync failed: %v", err)
		respondDetail(w, http.StatusInternalServerError, err.Error())
	default:
		log.Printf("Internal error: %v", err)
		respondDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
