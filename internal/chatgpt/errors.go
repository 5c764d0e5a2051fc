package chatgpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrEmptyHistory is returned when a request is built without messages.
	ErrEmptyHistory = errors.New("chatgpt: history must contain at least one message")
	// ErrStreamClosed is returned by Recv after the consumer closed the stream.
	ErrStreamClosed = errors.New("chatgpt: stream closed")
)

// ConfigurationError reports an endpoint address that is not a usable URL.
// It is raised before any network activity.
type ConfigurationError struct {
	Address string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chatgpt: invalid endpoint %q: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("chatgpt: invalid endpoint %q", e.Address)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// HTTPStatusError is returned for a non-2xx response, before any body or
// stream reaches the decoders.
type HTTPStatusError struct {
	StatusCode int
	// Body holds at most maxErrorBodyBytes of the response.
	Body []byte
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (e *HTTPStatusError) Error() string {
	msg := http.StatusText(e.StatusCode)
	var er errorResponse
	if err := json.Unmarshal(e.Body, &er); err == nil && strings.TrimSpace(er.Error.Message) != "" {
		msg = strings.TrimSpace(er.Error.Message)
	} else if body := strings.TrimSpace(string(e.Body)); body != "" {
		msg = body
	}
	return fmt.Sprintf("chatgpt: http %d: %s", e.StatusCode, msg)
}

// DecodingError reports JSON that does not match the expected shape, either
// for a buffered body or for a single stream line.
type DecodingError struct {
	// Diagnostic is the parser message.
	Diagnostic string
	// Raw is the offending text.
	Raw string
	Err error
}

func (e *DecodingError) Error() string {
	raw := e.Raw
	if len(raw) > 256 {
		raw = raw[:256] + "..."
	}
	return fmt.Sprintf("chatgpt: decode: %s (raw=%q)", e.Diagnostic, raw)
}

func (e *DecodingError) Unwrap() error { return e.Err }

func newDecodingError(raw string, err error) *DecodingError {
	return &DecodingError{Diagnostic: err.Error(), Raw: raw, Err: err}
}

// TransportError wraps a network-level failure from the transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chatgpt: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}
