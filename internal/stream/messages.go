package stream

import (
	"encoding/json"

	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "accumulate", "locate", "cancel", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// AccumulateData is the payload for "accumulate" messages. Filters uses the
// same keys as the explorer's query string.
type AccumulateData struct {
	Filters map[string]string `json:"filters,omitempty"`
	N       int               `json:"n,omitempty"`
	Cursor  string            `json:"cursor,omitempty"`
}

// LocateData is the payload for "locate" messages.
type LocateData struct {
	EntryID string            `json:"entry_id"`
	Filters map[string]string `json:"filters,omitempty"`
	Cursor  string            `json:"cursor,omitempty"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "result", "found", "not_found", "canceled", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData is sent once after the connection opens.
type SessionData struct {
	SessionID string `json:"session_id"`
	View      string `json:"view"`
	Business  string `json:"business"`
}

// ResultData carries the entries a run collected.
type ResultData struct {
	Range      daterange.Range    `json:"range"`
	Items      []types.AuditEntry `json:"items"`
	NextCursor *string            `json:"next_cursor"`
	Exhausted  bool               `json:"exhausted"`
	Pages      int                `json:"pages"`
}

// LocateResultData answers a "locate" message. Entry and Position are set
// for "found"; Position is -1 when the filters hide the entry.
type LocateResultData struct {
	ResultData
	EntryID  string            `json:"entry_id"`
	Entry    *types.AuditEntry `json:"entry,omitempty"`
	Position *int              `json:"position,omitempty"`
	Page     int               `json:"page,omitempty"`
	Attempts int               `json:"attempts"`
}

// ErrorData carries an error message and whatever the run collected
// before it failed.
type ErrorData struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Partial *ResultData `json:"partial,omitempty"`
}
