package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockUpstream is an httptest.Server that simulates an OpenAI-style
// /v1/chat/completions endpoint.
type MockUpstream struct {
	Server *httptest.Server

	// Answer is returned by buffered calls and split into words for streams.
	Answer string
	Model  string

	// StatusCode, when non-zero and not 200, is returned with ErrorBody.
	StatusCode int
	ErrorBody  string

	// StreamLines, when set, replaces the generated stream body verbatim.
	// Each entry is written followed by "\n".
	StreamLines []string

	mu          sync.Mutex
	lastRequest map[string]any
	lastHeader  http.Header
}

// NewMockUpstream creates and starts a mock server.
func NewMockUpstream(answer, model string) *MockUpstream {
	m := &MockUpstream{Answer: answer, Model: model}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockUpstream) URL() string {
	return m.Server.URL
}

// LastRequest returns the most recent request body.
func (m *MockUpstream) LastRequest() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// LastHeader returns the headers of the most recent request.
func (m *MockUpstream) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.lastRequest = body
	m.lastHeader = r.Header.Clone()
	m.mu.Unlock()

	if m.StatusCode != 0 && m.StatusCode != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.StatusCode)
		fmt.Fprint(w, m.ErrorBody)
		return
	}

	if stream, _ := body["stream"].(bool); stream {
		m.writeStreaming(w)
		return
	}
	m.writeBlocking(w)
}

func (m *MockUpstream) writeBlocking(w http.ResponseWriter) {
	resp := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  m.Model,
		"usage": map[string]any{
			"prompt_tokens":     3,
			"completion_tokens": len(SplitWords(m.Answer)),
			"total_tokens":      3 + len(SplitWords(m.Answer)),
		},
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": m.Answer},
				"finish_reason": "stop",
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *MockUpstream) writeStreaming(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, hasFlusher := w.(http.Flusher)

	lines := m.StreamLines
	if lines == nil {
		lines = StreamLinesFor(m.Model, m.Answer)
	}
	for _, line := range lines {
		fmt.Fprintf(w, "%s\n", line)
		if hasFlusher {
			flusher.Flush()
		}
	}
}

// StreamLinesFor renders answer as a realistic chunk sequence: a role
// marker, one chunk per word, a terminal delta and the [DONE] sentinel,
// separated by blank lines.
func StreamLinesFor(model, answer string) []string {
	chunk := func(delta map[string]any, finish any) string {
		data, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"model":   model,
			"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": finish}},
		})
		return "data: " + string(data)
	}

	lines := []string{chunk(map[string]any{"role": "assistant"}, nil), ""}
	for i, word := range SplitWords(answer) {
		if i > 0 {
			word = " " + word
		}
		lines = append(lines, chunk(map[string]any{"content": word}, nil), "")
	}
	lines = append(lines, chunk(map[string]any{}, "stop"), "", "data: [DONE]", "")
	return lines
}

// SplitWords splits s on spaces, returning s itself when it has no words.
func SplitWords(s string) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		words = []string{s}
	}
	return words
}
