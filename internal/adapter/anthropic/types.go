package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessagesRequest mirrors the Anthropic Messages API request body.
type MessagesRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	Messages      []Message `json:"messages"`
	System        Text      `json:"system,omitempty"`
	Stream        bool      `json:"stream"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Metadata      *Metadata `json:"metadata,omitempty"`
}

// Metadata carries the caller's end-user identifier.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Message is a single Anthropic chat message.
type Message struct {
	Role    string `json:"role"`
	Content Text   `json:"content"`
}

// Text is message or system text, sent either as a string or as an array of
// content blocks. Non-text blocks are dropped.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var blocks []Content
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content must be a string or an array of content blocks")
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	*t = Text(sb.String())
	return nil
}

// MessagesResponse is the blocking Anthropic response format.
type MessagesResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Role         string    `json:"role"`
	Content      []Content `json:"content"`
	Model        string    `json:"model"`
	StopReason   string    `json:"stop_reason"`
	StopSequence *string   `json:"stop_sequence"`
	Usage        Usage     `json:"usage"`
}

// Content is a content block in a response.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Usage carries token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamEvent represents one Anthropic SSE event.
type StreamEvent struct {
	Type         string            `json:"type"`
	Index        *int              `json:"index,omitempty"`
	Message      *MessagesResponse `json:"message,omitempty"`
	ContentBlock *Content          `json:"content_block,omitempty"`
	Delta        *Delta            `json:"delta,omitempty"`
	Error        *ErrorBody        `json:"error,omitempty"`
}

// Delta carries incremental content or the final stop reason.
type Delta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// ErrorBody describes a failure reported mid-stream.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
