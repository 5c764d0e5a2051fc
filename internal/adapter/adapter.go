package adapter

import (
	"iter"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
)

// Request is a caller's chat request translated into chat-completion terms.
type Request struct {
	History []chatgpt.Message
	Options chatgpt.Options
	Stream  bool
}

// Adapter translates between a caller's API format and the chat-completion service.
type Adapter interface {
	// Name identifies the caller's dialect in logs.
	Name() string

	// ParseRequest decodes the incoming request body.
	ParseRequest(r *http.Request) (*Request, error)

	// WriteBlockingResponse encodes a buffered result into the caller's format.
	WriteBlockingResponse(w http.ResponseWriter, req *Request, result *chatgpt.Result) error

	// WriteStreamingResponse consumes chunks and encodes each one into the
	// caller's streaming format, flushing after each write. It returns the
	// first error yielded by chunks.
	WriteStreamingResponse(w http.ResponseWriter, req *Request, chunks iter.Seq2[string, error]) error
}

// NewID returns a unique response identifier with the given prefix.
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ResponseModel names the model a response reports: the one the service
// echoed, else the one requested.
func ResponseModel(req *Request, result *chatgpt.Result) string {
	if result != nil && result.Model != nil && *result.Model != "" {
		return *result.Model
	}
	return req.Options.Model.String()
}
