package gemini

import (
	"time"

	"github.com/zhengjr9/chatgpt-agent/internal/adapter"
	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
)

// NewHandler constructs the handler for the generateContent routes. Mount
// ServeHTTP on :generateContent and Streaming() on :streamGenerateContent.
func NewHandler(client *chatgpt.Client, defaultUser string, timeout time.Duration) *adapter.Handler {
	return adapter.NewHandler(Adapter{}, client, defaultUser, timeout)
}
