package gemini

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zhengjr9/chatgpt-agent/internal/adapter"
	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
	"github.com/zhengjr9/chatgpt-agent/internal/httputil"
)

// Adapter speaks the Gemini generateContent dialect. The model is taken from
// the {model} route variable.
type Adapter struct{}

func (Adapter) Name() string { return "gemini" }

// ParseRequest converts a Gemini generateContent request. Whether to stream is
// decided by the route, not the body.
func (Adapter) ParseRequest(r *http.Request) (*adapter.Request, error) {
	var req GenerateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if len(req.Contents) == 0 {
		return nil, fmt.Errorf("contents must not be empty")
	}

	history := make([]chatgpt.Message, 0, len(req.Contents)+1)
	sys := req.SystemInstruction
	if sys == nil {
		sys = req.SystemInstructionSnake
	}
	if sys != nil {
		if text := joinParts(sys.Parts); text != "" {
			history = append(history, chatgpt.System(text))
		}
	}
	for i, c := range req.Contents {
		switch c.Role {
		case "", "user":
			history = append(history, chatgpt.User(joinParts(c.Parts)))
		case "model":
			history = append(history, chatgpt.Assistant(joinParts(c.Parts)))
		default:
			return nil, fmt.Errorf("contents[%d]: unsupported role %q", i, c.Role)
		}
	}

	opts := chatgpt.Options{Model: chatgpt.CustomModel(mux.Vars(r)["model"])}
	if gc := req.GenerationConfig; gc != nil {
		opts.Temperature = gc.Temperature
		opts.TopP = gc.TopP
		opts.MaxTokens = gc.MaxOutputTokens
		opts.Choices = gc.CandidateCount
		opts.Stop = gc.StopSequences
		opts.PresencePenalty = gc.PresencePenalty
		opts.FrequencyPenalty = gc.FrequencyPenalty
	}

	return &adapter.Request{History: history, Options: opts}, nil
}

func joinParts(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "")
}

// WriteBlockingResponse encodes a result as a Gemini GenerateContentResponse.
func (Adapter) WriteBlockingResponse(w http.ResponseWriter, req *adapter.Request, result *chatgpt.Result) error {
	out := GenerateContentResponse{
		Candidates: make([]Candidate, 0, len(result.Choices)),
		UsageMetadata: &UsageMetadata{
			PromptTokenCount:     result.Usage.PromptTokens,
			CandidatesTokenCount: result.Usage.CompletionTokens,
			TotalTokenCount:      result.Usage.TotalTokens,
		},
		ModelVersion: adapter.ResponseModel(req, result),
		ResponseID:   adapter.NewID(""),
	}
	for i, c := range result.Choices {
		out.Candidates = append(out.Candidates, Candidate{
			Content:      Content{Role: "model", Parts: []Part{{Text: c.Message.Content}}},
			FinishReason: "STOP",
			Index:        i,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

// WriteStreamingResponse encodes chunks as Gemini SSE payloads; the last one
// carries finishReason STOP.
func (Adapter) WriteStreamingResponse(w http.ResponseWriter, req *adapter.Request, chunks iter.Seq2[string, error]) error {
	sw := httputil.NewSSEWriter(w)
	id := adapter.NewID("")
	model := req.Options.Model.String()

	payload := func(text, finish string) GenerateContentResponse {
		return GenerateContentResponse{
			Candidates: []Candidate{{
				Content:      Content{Role: "model", Parts: []Part{{Text: text}}},
				FinishReason: finish,
			}},
			ModelVersion: model,
			ResponseID:   id,
		}
	}

	for text, err := range chunks {
		if err != nil {
			return err
		}
		if err := sw.Data(payload(text, "")); err != nil {
			return err
		}
	}
	return sw.Data(payload("", "STOP"))
}
