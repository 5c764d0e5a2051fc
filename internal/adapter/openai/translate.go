package openai

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/zhengjr9/chatgpt-agent/internal/adapter"
	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
	"github.com/zhengjr9/chatgpt-agent/internal/httputil"
)

// Adapter speaks the OpenAI chat completions dialect.
type Adapter struct{}

func (Adapter) Name() string { return "openai" }

// ParseRequest converts an OpenAI chat completions request. History and
// sampling options pass through unchanged.
func (Adapter) ParseRequest(r *http.Request) (*adapter.Request, error) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages must not be empty")
	}

	history := make([]chatgpt.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		role, err := toRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		history = append(history, chatgpt.Message{Role: role, Content: string(m.Content)})
	}

	opts := chatgpt.Options{
		Model:            chatgpt.CustomModel(req.Model),
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		MaxTokens:        req.MaxTokens,
		Choices:          req.N,
	}
	if req.User != "" {
		opts.User = chatgpt.String(req.User)
	}

	return &adapter.Request{History: history, Options: opts, Stream: req.Stream}, nil
}

func toRole(role string) (chatgpt.Role, error) {
	switch role {
	case "system", "developer":
		return chatgpt.RoleSystem, nil
	case "user":
		return chatgpt.RoleUser, nil
	case "assistant":
		return chatgpt.RoleAssistant, nil
	}
	return "", fmt.Errorf("unsupported role %q", role)
}

// WriteBlockingResponse encodes a result as an OpenAI ChatCompletionResponse.
func (Adapter) WriteBlockingResponse(w http.ResponseWriter, req *adapter.Request, result *chatgpt.Result) error {
	out := ChatCompletionResponse{
		ID:      adapter.NewID("chatcmpl-"),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   adapter.ResponseModel(req, result),
		Choices: make([]Choice, 0, len(result.Choices)),
		Usage: Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}
	for i, c := range result.Choices {
		out.Choices = append(out.Choices, Choice{
			Index:        i,
			Message:      Message{Role: string(c.Message.Role), Content: Content(c.Message.Content)},
			FinishReason: "stop",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

// WriteStreamingResponse encodes chunks as OpenAI SSE chunks terminated by
// [DONE]. An upstream error ends the response without the sentinel.
func (Adapter) WriteStreamingResponse(w http.ResponseWriter, req *adapter.Request, chunks iter.Seq2[string, error]) error {
	sw := httputil.NewSSEWriter(w)
	id := adapter.NewID("chatcmpl-")
	created := time.Now().Unix()
	model := req.Options.Model.String()

	chunk := func(d Delta, finish *string) StreamChunk {
		return StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []StreamChoice{{Index: 0, Delta: d, FinishReason: finish}},
		}
	}

	if err := sw.Data(chunk(Delta{Role: "assistant"}, nil)); err != nil {
		return err
	}
	for text, err := range chunks {
		if err != nil {
			return err
		}
		if err := sw.Data(chunk(Delta{Content: &text}, nil)); err != nil {
			return err
		}
	}
	stop := "stop"
	if err := sw.Data(chunk(Delta{}, &stop)); err != nil {
		return err
	}
	return sw.Done()
}
