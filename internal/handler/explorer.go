package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/advisorlens/internal/apiclient"
	"github.com/matthewbaird/advisorlens/internal/catalog"
	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/pagination"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// Query keys the explorer reads itself. They are never treated as filters.
const (
	paramCount  = "n"
	paramCursor = "cursor"
	paramMonth  = "month"
)

// maxCount caps the n parameter of accumulate requests.
const maxCount = 500

// ExplorerHandler serves filtered views over cursor-paginated feeds. Each
// request resolves the view's date range, then pages through the feed until
// the view has enough matches or the requested entry is found.
type ExplorerHandler struct {
	src      apiclient.Source
	catalog  *catalog.Catalog
	resolver daterange.Resolver
}

// NewExplorerHandler creates a new ExplorerHandler.
func NewExplorerHandler(src apiclient.Source, cat *catalog.Catalog, resolver daterange.Resolver) *ExplorerHandler {
	return &ExplorerHandler{src: src, catalog: cat, resolver: resolver}
}

// viewRequest is the part every explorer route parses.
type viewRequest struct {
	business string
	view     catalog.View
	filters  daterange.Filters
	rng      daterange.Range
}

func (req viewRequest) feedID() string { return req.view.FeedID(req.business) }

// parseViewRequest resolves the path and filter query of r. A valid month
// parameter (YYYY-MM) selects that calendar month as an explicit range.
func (h *ExplorerHandler) parseViewRequest(w http.ResponseWriter, r *http.Request) (viewRequest, bool) {
	req := viewRequest{business: chi.URLParam(r, "business_id")}
	name := chi.URLParam(r, "view")
	view, ok := h.catalog.View(name)
	if !ok {
		writeError(w, http.StatusNotFound, "UNKNOWN_VIEW", "unknown view: "+name)
		return req, false
	}
	req.view = view

	query := flatten(r.URL.Query())
	month := query[paramMonth]
	delete(query, paramCount)
	delete(query, paramCursor)
	delete(query, paramMonth)

	req.filters = daterange.ParseFilters(query)
	if month != "" {
		bounds, ok := daterange.MonthBounds(month)
		if !ok {
			writeError(w, http.StatusBadRequest, "INVALID_MONTH", "month must be YYYY-MM: "+month)
			return req, false
		}
		req.filters.Start, req.filters.End = bounds.Start, bounds.End
		req.filters.Window = daterange.WindowCustom
	}
	req.rng = h.resolver.Resolve(req.filters)
	return req, true
}

// HandleListViews lists the configured views.
// GET /v1/views
func (h *ExplorerHandler) HandleListViews(w http.ResponseWriter, r *http.Request) {
	views := make([]catalog.View, 0)
	for _, name := range h.catalog.Names() {
		v, _ := h.catalog.View(name)
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"views": views})
}

type rangeResponse struct {
	View         string                 `json:"view"`
	Range        daterange.Range        `json:"range"`
	Filters      map[string]string      `json:"filters"`
	Clamped      map[string]string      `json:"clamped"`
	Query        string                 `json:"query"`
	Availability daterange.Availability `json:"availability"`
	TrendMonths  int                    `json:"trend_months"`
}

// HandleGetRange resolves the filter query against the feed's availability.
// clamped is null when the filters need no adjustment; otherwise it holds
// the filters to navigate to, and query is their encoding.
// GET /v1/businesses/{business_id}/views/{view}/range
func (h *ExplorerHandler) HandleGetRange(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseViewRequest(w, r)
	if !ok {
		return
	}

	avail, err := h.src.Availability(r.Context(), req.feedID())
	if err != nil {
		status, code := sourceStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	resp := rangeResponse{
		View:         req.view.Name,
		Filters:      req.filters.Values(),
		Availability: avail,
	}
	effective := req.filters
	if clamped, changed := h.resolver.Clamp(req.filters, avail); changed {
		effective = clamped
		resp.Clamped = clamped.Values()
	}
	resp.Range = h.resolver.Resolve(effective)
	resp.Query = effective.Encode()
	resp.TrendMonths = daterange.MonthsBetween(resp.Range.Start, resp.Range.End)
	writeJSON(w, http.StatusOK, resp)
}

type entriesResponse struct {
	View       string             `json:"view"`
	Range      daterange.Range    `json:"range"`
	Items      []types.AuditEntry `json:"items"`
	NextCursor *string            `json:"next_cursor"`
	Exhausted  bool               `json:"exhausted"`
	Pages      int                `json:"pages"`
	Error      string             `json:"error,omitempty"`
	Code       string             `json:"code,omitempty"`
}

func newEntriesResponse(req viewRequest, res pagination.Result[types.AuditEntry]) entriesResponse {
	page := types.NewFeedPage(res.Items, res.NextCursor)
	return entriesResponse{
		View:       req.view.Name,
		Range:      req.rng,
		Items:      page.Items,
		NextCursor: page.NextCursor,
		Exhausted:  res.Exhausted,
		Pages:      res.Pages,
	}
}

// HandleListEntries gathers up to n entries that pass the view's filters,
// starting at cursor. When a page fetch fails the entries gathered so far
// are returned alongside the error code.
// GET /v1/businesses/{business_id}/views/{view}/entries
func (h *ExplorerHandler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseViewRequest(w, r)
	if !ok {
		return
	}
	n, ok := parseCount(r.URL.Query(), paramCount, maxCount)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMS", "n must be a positive integer")
		return
	}

	agg := req.view.Aggregator(h.src, req.business, req.rng)
	res, err := agg.Accumulate(r.Context(), req.view.AccumulateRequest(req.filters, req.rng, n, r.URL.Query().Get(paramCursor)))

	resp := newEntriesResponse(req, res)
	if err != nil {
		if abandoned(r, err) {
			return
		}
		status, code := sourceStatus(err)
		resp.Error, resp.Code = err.Error(), code
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type locateResponse struct {
	entriesResponse
	EntryID  string            `json:"entry_id"`
	Match    string            `json:"match"`
	Found    bool              `json:"found"`
	Entry    *types.AuditEntry `json:"entry,omitempty"`
	Position *int              `json:"position,omitempty"`
	Page     int               `json:"page,omitempty"`
	Attempts int               `json:"attempts"`
}

// HandleLocateEntry pages through the view looking for one entry, within
// the view's attempt budget. Not finding it is a normal outcome (found is
// false). position is -1 when the entry exists but the filters hide it.
// GET /v1/businesses/{business_id}/views/{view}/entries/{entry_id}/locate
func (h *ExplorerHandler) HandleLocateEntry(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseViewRequest(w, r)
	if !ok {
		return
	}
	entryID := chi.URLParam(r, "entry_id")

	agg := req.view.Aggregator(h.src, req.business, req.rng)
	locate := req.view.LocateRequest(req.filters, req.rng, entryID, r.URL.Query().Get(paramCursor))
	res, err := agg.Locate(r.Context(), locate)

	resp := locateResponse{
		entriesResponse: newEntriesResponse(req, res.Result),
		EntryID:         entryID,
		Match:           locate.Match.String(),
		Attempts:        res.Attempts,
	}
	if res.Found != nil {
		resp.Found = true
		resp.Entry = &res.Found.Item
		resp.Position = &res.Found.Position
		resp.Page = res.Found.Page
	}
	if err != nil {
		if abandoned(r, err) {
			return
		}
		status, code := sourceStatus(err)
		resp.Error, resp.Code = err.Error(), code
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// abandoned reports whether err stems from the client going away, in which
// case nothing is written.
func abandoned(r *http.Request, err error) bool {
	if r.Context().Err() == nil || !pagination.IsCanceled(err) {
		return false
	}
	log.Printf("explorer: %s %s abandoned by client", r.Method, r.URL.Path)
	return true
}
