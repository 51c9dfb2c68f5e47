package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/matthewbaird/advisorlens/internal/activity"
	"github.com/matthewbaird/advisorlens/internal/apiclient"
	"github.com/matthewbaird/advisorlens/internal/pagination"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// flatten keeps the first value of every query key.
func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// parseCount reads a positive integer query parameter. Absent yields 0.
func parseCount(values url.Values, key string, max int) (int, bool) {
	raw := values.Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

// sourceStatus maps a feed source error to an HTTP status and error code.
// A bad cursor is the caller's fault; an expired session must reach the
// client as 401 so it re-authenticates; everything else is an upstream
// failure the client may retry.
func sourceStatus(err error) (int, string) {
	var se *apiclient.StatusError
	switch {
	case errors.Is(err, activity.ErrInvalidCursor):
		return http.StatusBadRequest, "INVALID_CURSOR"
	case apiclient.IsAuth(err):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.As(err, &se) && se.StatusCode == http.StatusBadRequest:
		if se.Code != "" {
			return http.StatusBadRequest, se.Code
		}
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	case errors.Is(err, pagination.ErrStalledCursor):
		return http.StatusBadGateway, "STALLED_CURSOR"
	}
	return http.StatusBadGateway, "TRANSPORT_ERROR"
}
