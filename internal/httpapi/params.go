package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

// PathID parses a positive integer URL parameter
func PathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, Invalid(fmt.Sprintf("invalid %s %q", name, raw))
	}
	return id, nil
}

// QueryID parses a required positive integer query parameter
func QueryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, Invalid(name + " is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, Invalid(fmt.Sprintf("invalid %s %q", name, raw))
	}
	return id, nil
}

// TimeBounds reads the start and end query parameters.
//
// Both accept RFC3339 or YYYY-MM-DD. A bare date starts at midnight in loc; for
// end it covers the whole day. ok is false when neither parameter is present, in
// which case the caller picks a default window.
func TimeBounds(r *http.Request, loc *time.Location) (start, end time.Time, ok bool, err error) {
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start"), q.Get("end")
	if rawStart == "" && rawEnd == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, false, Invalid("start and end must be given together")
	}

	start, err = parseBound(rawStart, loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	end, err = parseBound(rawEnd, loc, true)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false, Invalid("end must not be before start")
	}
	return start, end, true, nil
}

func parseBound(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, Invalid(fmt.Sprintf("invalid time %q: expected RFC3339 or YYYY-MM-DD", raw))
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}
