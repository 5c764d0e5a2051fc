package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
)

var (
	ErrMissingAPIKey   = errors.New("missing API key")
	ErrMalformedBody   = errors.New("malformed request body")
	ErrUpstreamStatus  = errors.New("upstream returned non-2xx response")
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	_ = json.NewEncoder(w).Encode(body)
}

// UpstreamStatus maps an error from the chat-completion client to the status
// code and message returned to the relay's caller.
func UpstreamStatus(err error) (int, string) {
	var (
		statusErr *chatgpt.HTTPStatusError
		transErr  *chatgpt.TransportError
		decErr    *chatgpt.DecodingError
		cfgErr    *chatgpt.ConfigurationError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &transErr) && transErr.Timeout():
		return http.StatusGatewayTimeout, ErrUpstreamTimeout.Error()
	case errors.As(err, &statusErr):
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return statusErr.StatusCode, statusErr.Error()
		}
		return http.StatusBadGateway, ErrUpstreamStatus.Error() + ": " + statusErr.Error()
	case errors.As(err, &decErr):
		return http.StatusBadGateway, "upstream returned malformed response: " + decErr.Diagnostic
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, "relay misconfigured: " + cfgErr.Error()
	case errors.Is(err, chatgpt.ErrEmptyHistory):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusBadGateway, "upstream error: " + err.Error()
}

// WriteUpstreamError writes err as a JSON error using UpstreamStatus.
func WriteUpstreamError(w http.ResponseWriter, err error) {
	code, msg := UpstreamStatus(err)
	WriteJSONError(w, code, msg)
}
