package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/and161185/imagefeed/internal/errs"
)

// TransportError reports that no response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	if msg := serverMessage(e.Body); msg != "" {
		return fmt.Sprintf("http status %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("http status %d", e.Code)
}

// Is maps well-known status codes onto package errs sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case errs.ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case errs.ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	case errs.ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// DecodingError reports a 2xx body that did not match the expected schema.
type DecodingError struct {
	Err  error
	Body []byte
}

func (e *DecodingError) Error() string { return "decode response: " + e.Err.Error() }

func (e *DecodingError) Unwrap() error { return e.Err }

// errorBody covers both the OAuth2 error shape and the API's error list.
type errorBody struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description"`
	Errors           []string `json:"errors"`
}

// serverMessage extracts a human-readable message from an error body, or "".
func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	switch {
	case eb.ErrorDescription != "":
		return eb.ErrorDescription
	case len(eb.Errors) > 0:
		return strings.Join(eb.Errors, "; ")
	default:
		return eb.Error
	}
}
