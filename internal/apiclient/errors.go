package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is matched by errors for 401 responses. The session
	// is invalid; callers should force re-authentication, not retry.
	ErrUnauthorized = errors.New("apiclient: unauthorized")

	// ErrTransport is matched by network failures and every non-2xx status
	// other than 401. Callers may retry.
	ErrTransport = errors.New("apiclient: transport error")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Code       string // "code" field of the JSON error body, if any
	Message    string // "error" field of the JSON error body, or the status text
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return ErrTransport
}

// IsAuth reports whether err means the session is no longer valid.
func IsAuth(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsRetryable reports whether err is a transport failure a caller may retry.
func IsRetryable(err error) bool { return errors.Is(err, ErrTransport) }
