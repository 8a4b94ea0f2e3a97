package pipedrive

import (
	"fmt"
	"net/http"
)

// APIError is returned for non-2xx responses and for envelopes reporting
// success=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("pipedrive: status %d: %s", e.StatusCode, msg)
}
