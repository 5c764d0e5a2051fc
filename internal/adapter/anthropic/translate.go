package anthropic

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/zhengjr9/chatgpt-agent/internal/adapter"
	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
	"github.com/zhengjr9/chatgpt-agent/internal/httputil"
)

// Adapter speaks the Anthropic Messages dialect.
type Adapter struct{}

func (Adapter) Name() string { return "anthropic" }

// ParseRequest converts an Anthropic Messages request. The system prompt
// becomes a leading system message.
func (Adapter) ParseRequest(r *http.Request) (*adapter.Request, error) {
	var req MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages must not be empty")
	}

	history := make([]chatgpt.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		history = append(history, chatgpt.System(string(req.System)))
	}
	for i, m := range req.Messages {
		switch m.Role {
		case "user":
			history = append(history, chatgpt.User(string(m.Content)))
		case "assistant":
			history = append(history, chatgpt.Assistant(string(m.Content)))
		default:
			return nil, fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)
		}
	}

	opts := chatgpt.Options{
		Model:       chatgpt.CustomModel(req.Model),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
	}
	if req.MaxTokens > 0 {
		opts.MaxTokens = chatgpt.Int(req.MaxTokens)
	}
	if req.Metadata != nil && req.Metadata.UserID != "" {
		opts.User = chatgpt.String(req.Metadata.UserID)
	}

	return &adapter.Request{History: history, Options: opts, Stream: req.Stream}, nil
}

// WriteBlockingResponse encodes a result as an Anthropic MessagesResponse.
func (Adapter) WriteBlockingResponse(w http.ResponseWriter, req *adapter.Request, result *chatgpt.Result) error {
	out := MessagesResponse{
		ID:         adapter.NewID("msg_"),
		Type:       "message",
		Role:       "assistant",
		Content:    []Content{{Type: "text", Text: result.Text()}},
		Model:      adapter.ResponseModel(req, result),
		StopReason: "end_turn",
		Usage: Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

// WriteStreamingResponse encodes chunks as Anthropic SSE events. An upstream
// error is reported as an error event and ends the response.
func (Adapter) WriteStreamingResponse(w http.ResponseWriter, req *adapter.Request, chunks iter.Seq2[string, error]) error {
	sw := httputil.NewSSEWriter(w)
	index := 0

	start := StreamEvent{
		Type: "message_start",
		Message: &MessagesResponse{
			ID:      adapter.NewID("msg_"),
			Type:    "message",
			Role:    "assistant",
			Content: []Content{},
			Model:   req.Options.Model.String(),
		},
	}
	if err := sw.Event(start.Type, start); err != nil {
		return err
	}
	blockStart := StreamEvent{Type: "content_block_start", Index: &index, ContentBlock: &Content{Type: "text"}}
	if err := sw.Event(blockStart.Type, blockStart); err != nil {
		return err
	}

	for text, err := range chunks {
		if err != nil {
			failure := StreamEvent{Type: "error", Error: &ErrorBody{Type: "api_error", Message: err.Error()}}
			_ = sw.Event(failure.Type, failure)
			return err
		}
		delta := StreamEvent{
			Type:  "content_block_delta",
			Index: &index,
			Delta: &Delta{Type: "text_delta", Text: text},
		}
		if err := sw.Event(delta.Type, delta); err != nil {
			return err
		}
	}

	for _, ev := range []StreamEvent{
		{Type: "content_block_stop", Index: &index},
		{Type: "message_delta", Delta: &Delta{StopReason: "end_turn"}},
		{Type: "message_stop"},
	} {
		if err := sw.Event(ev.Type, ev); err != nil {
			return err
		}
	}
	return nil
}
