// Package stream serves the explorer's views over WebSocket. A client sends
// accumulate and locate requests; each one supersedes the previous request
// of the connection, so only the newest request ever produces a response.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/advisorlens/internal/activity"
	"github.com/matthewbaird/advisorlens/internal/apiclient"
	"github.com/matthewbaird/advisorlens/internal/catalog"
	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/pagination"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// writeTimeout bounds a single message write so a stalled client cannot
// hold the session's guard.
const writeTimeout = 10 * time.Second

// Handler manages WebSocket connections for view streams.
type Handler struct {
	sessions *Manager
	catalog  *catalog.Catalog
	src      apiclient.Source
	resolver daterange.Resolver
}

// NewHandler creates a WebSocket handler with all dependencies.
func NewHandler(sessions *Manager, cat *catalog.Catalog, src apiclient.Source, resolver daterange.Resolver) *Handler {
	return &Handler{
		sessions: sessions,
		catalog:  cat,
		src:      src,
		resolver: resolver,
	}
}

// ServeHTTP upgrades to WebSocket and runs the message loop.
// GET /v1/businesses/{business_id}/views/{view}/stream
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	business := chi.URLParam(r, "business_id")
	view, ok := h.catalog.View(chi.URLParam(r, "view"))
	if !ok {
		http.Error(w, "unknown view", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("stream: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	sess := h.sessions.Create(view.Name, business)
	defer h.sessions.Remove(sess.ID)
	ctx := r.Context()

	h.send(ctx, conn, ServerMessage{
		Type: "session",
		Data: SessionData{
			SessionID: sess.ID,
			View:      view.Name,
			Business:  business,
		},
	})

	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("stream: session %s closed: %v", sess.ID, websocket.CloseStatus(err))
			}
			return
		}

		switch msg.Type {
		case "accumulate":
			h.handleAccumulate(ctx, conn, sess, view, msg)
		case "locate":
			h.handleLocate(ctx, conn, sess, view, msg)
		case "cancel":
			if id, ok := sess.cancel(); ok {
				h.send(ctx, conn, ServerMessage{Type: "canceled", RequestID: id})
			}
		case "ping":
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.sendError(ctx, conn, msg.ID, ErrorData{Code: "unknown_type", Message: fmt.Sprintf("unknown message type: %s", msg.Type)})
		}
	}
}

func (h *Handler) handleAccumulate(ctx context.Context, conn *websocket.Conn, sess *Session, view catalog.View, msg ClientMessage) {
	var data AccumulateData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(ctx, conn, msg.ID, ErrorData{Code: "invalid_data", Message: "invalid accumulate data"})
			return
		}
	}
	if data.N < 0 {
		h.sendError(ctx, conn, msg.ID, ErrorData{Code: "invalid_data", Message: "n must not be negative"})
		return
	}

	filters := daterange.ParseFilters(data.Filters)
	rng := h.resolver.Resolve(filters)
	agg := view.Aggregator(h.src, sess.Business, rng)
	req := view.AccumulateRequest(filters, rng, data.N, data.Cursor)

	h.run(ctx, conn, sess, msg.ID, func(runCtx context.Context) ServerMessage {
		res, err := agg.Accumulate(runCtx, req)
		result := newResultData(rng, res)
		if err != nil {
			return failure(msg.ID, err, &result)
		}
		return ServerMessage{Type: "result", RequestID: msg.ID, Data: result}
	})
}

func (h *Handler) handleLocate(ctx context.Context, conn *websocket.Conn, sess *Session, view catalog.View, msg ClientMessage) {
	var data LocateData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, ErrorData{Code: "invalid_data", Message: "invalid locate data"})
		return
	}
	if data.EntryID == "" {
		h.sendError(ctx, conn, msg.ID, ErrorData{Code: "invalid_data", Message: "entry_id is required"})
		return
	}

	filters := daterange.ParseFilters(data.Filters)
	rng := h.resolver.Resolve(filters)
	agg := view.Aggregator(h.src, sess.Business, rng)
	req := view.LocateRequest(filters, rng, data.EntryID, data.Cursor)
	req.OnFound = func(f pagination.Found[types.AuditEntry]) {
		log.Printf("stream: session %s located %s on page %d at position %d", sess.ID, f.Item.ID, f.Page, f.Position)
	}

	h.run(ctx, conn, sess, msg.ID, func(runCtx context.Context) ServerMessage {
		res, err := agg.Locate(runCtx, req)
		out := LocateResultData{
			ResultData: newResultData(rng, res.Result),
			EntryID:    data.EntryID,
			Attempts:   res.Attempts,
		}
		if err != nil {
			return failure(msg.ID, err, &out.ResultData)
		}
		if res.Found == nil {
			return ServerMessage{Type: "not_found", RequestID: msg.ID, Data: out}
		}
		out.Entry = &res.Found.Item
		out.Position = &res.Found.Position
		out.Page = res.Found.Page
		return ServerMessage{Type: "found", RequestID: msg.ID, Data: out}
	})
}

// run executes fn in the background as the session's live run. Its message
// is sent only if no later request or cancel superseded the run in the
// meantime.
func (h *Handler) run(ctx context.Context, conn *websocket.Conn, sess *Session, requestID string, fn func(context.Context) ServerMessage) {
	runCtx, ticket := sess.begin(ctx, requestID)
	go func() {
		out := fn(runCtx)
		if !sess.guard.Apply(ticket, func() { h.send(ctx, conn, out) }) {
			log.Printf("stream: session %s dropped superseded %s (generation %d)", sess.ID, requestID, ticket.Generation())
		}
	}()
}

func newResultData(rng daterange.Range, res pagination.Result[types.AuditEntry]) ResultData {
	page := types.NewFeedPage(res.Items, res.NextCursor)
	return ResultData{
		Range:      rng,
		Items:      page.Items,
		NextCursor: page.NextCursor,
		Exhausted:  res.Exhausted,
		Pages:      res.Pages,
	}
}

// failure builds the error message of a failed run. Runs canceled through
// the session never get here with a live ticket, so Apply drops them.
func failure(requestID string, err error, partial *ResultData) ServerMessage {
	return ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    errorCode(err),
			Message: err.Error(),
			Partial: partial,
		},
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, activity.ErrInvalidCursor):
		return "invalid_cursor"
	case apiclient.IsAuth(err):
		return "unauthorized"
	case errors.Is(err, pagination.ErrStalledCursor):
		return "stalled_cursor"
	}
	return "transport_error"
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		log.Printf("stream: write error: %v", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID string, data ErrorData) {
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data:      data,
	})
}
