package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SetSSEHeaders sets the standard headers for a Server-Sent Events response.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SSEWriter writes Server-Sent Events and flushes after each one. Flushing is
// a no-op when the writer chain does not support it.
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	return &SSEWriter{w: w, rc: http.NewResponseController(w)}
}

// Data writes payload as an unnamed event.
func (s *SSEWriter) Data(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return s.write("data: %s\n\n", data)
}

// Event writes payload as a named event.
func (s *SSEWriter) Event(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event, err)
	}
	return s.write("event: %s\ndata: %s\n\n", event, data)
}

// Done writes the [DONE] sentinel.
func (s *SSEWriter) Done() error {
	return s.write("data: [DONE]\n\n")
}

func (s *SSEWriter) write(format string, args ...any) error {
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return err
	}
	_ = s.rc.Flush()
	return nil
}

// Credentials holds the upstream API key and user extracted from a request.
type Credentials struct {
	APIKey string
	User   string
}

// ExtractCredentials reads upstream credentials from the request using the following priority:
//
//  1. X-Upstream-Api-Key header → apiKey
//  2. Authorization: Bearer     → apiKey
//  3. x-api-key header          → apiKey (Anthropic clients)
//  4. ?key= query parameter     → apiKey (Gemini clients)
//  5. fallbackKey               → apiKey (server-side key)
//  6. X-Upstream-User header    → user   (overrides defaultUser when present)
//
// Returns an empty APIKey when no key is found; callers must validate.
func ExtractCredentials(r *http.Request, fallbackKey, defaultUser string) Credentials {
	apiKey := strings.TrimSpace(r.Header.Get("X-Upstream-Api-Key"))
	if apiKey == "" {
		auth := r.Header.Get("Authorization")
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			apiKey = strings.TrimSpace(rest)
		}
	}
	if apiKey == "" {
		apiKey = strings.TrimSpace(r.Header.Get("X-Api-Key"))
	}
	if apiKey == "" {
		apiKey = strings.TrimSpace(r.URL.Query().Get("key"))
	}
	if apiKey == "" {
		apiKey = fallbackKey
	}

	user := strings.TrimSpace(r.Header.Get("X-Upstream-User"))
	if user == "" {
		user = defaultUser
	}

	return Credentials{APIKey: apiKey, User: user}
}
