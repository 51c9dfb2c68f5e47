package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/advisorlens/internal/activity"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// FeedHandler serves raw feed pages from a Store. It is the upstream
// contract the explorer paginates over: no display filtering, only the
// server-side parameters of activity.ParsePageOptions.
type FeedHandler struct {
	store activity.Store
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(store activity.Store) *FeedHandler {
	return &FeedHandler{store: store}
}

// HandleListEntries returns one page of a feed, newest first.
// GET /v1/feeds/{feed_id}/entries
func (h *FeedHandler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feed_id")
	if feedID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "feed_id is required")
		return
	}

	opts, err := activity.ParsePageOptions(flatten(r.URL.Query()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error())
		return
	}

	entries, next, err := h.store.Page(r.Context(), feedID, opts)
	if errors.Is(err, activity.ErrInvalidCursor) {
		writeError(w, http.StatusBadRequest, "INVALID_CURSOR", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.NewFeedPage(entries, next))
}

// HandleGetAvailability returns the first and last day a feed has entries
// for. Both bounds are omitted for an empty feed.
// GET /v1/feeds/{feed_id}/availability
func (h *FeedHandler) HandleGetAvailability(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feed_id")
	a, err := h.store.Availability(r.Context(), feedID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}
