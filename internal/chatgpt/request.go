package chatgpt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultPath    = "/v1/chat/completions"

	contentTypeJSON = "application/json"
	acceptSSE       = "text/event-stream"
)

// Endpoint is the read-only connection configuration used to build requests.
type Endpoint struct {
	BaseURL string
	Path    string
	APIKey  string
	// Headers are sent with every request and override the defaults.
	Headers map[string]string
}

// Address returns BaseURL joined with Path.
func (ep Endpoint) Address() string {
	path := ep.Path
	if path == "" {
		path = DefaultPath
	}
	base := strings.TrimRight(ep.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// RequestDescriptor is everything a transport needs to perform a call.
type RequestDescriptor struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	Stream bool
}

// conversation is the request body. Optional fields use omitempty on
// pointers so that an absent option never reaches the wire.
type conversation struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Stream           bool      `json:"stream"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	Stop             []string  `json:"stop,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	Choices          *int      `json:"n,omitempty"`
	User             *string   `json:"user,omitempty"`
}

func newConversation(history []Message, opts Options, stream bool) conversation {
	model := opts.Model
	if model == "" {
		model = ModelGPT35Turbo
	}
	return conversation{
		Model:            model.String(),
		Messages:         history,
		Stream:           stream,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		Stop:             opts.Stop,
		MaxTokens:        opts.MaxTokens,
		Choices:          opts.Choices,
		User:             opts.User,
	}
}

// BuildRequest maps a history and options onto a POST request descriptor.
// It fails with *ConfigurationError when the endpoint is not a valid absolute
// URL and with ErrEmptyHistory when history is empty.
func BuildRequest(ep Endpoint, history []Message, opts Options, stream bool) (*RequestDescriptor, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	address := ep.Address()
	if err := validateAddress(address); err != nil {
		return nil, err
	}

	body, err := json.Marshal(newConversation(history, opts, stream))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	h := make(http.Header)
	h.Set("Content-Type", contentTypeJSON)
	if stream {
		h.Set("Accept", acceptSSE)
	}
	if ep.APIKey != "" {
		h.Set("Authorization", "Bearer "+ep.APIKey)
	}
	for k, v := range ep.Headers {
		h.Set(k, v)
	}

	return &RequestDescriptor{
		Method: http.MethodPost,
		URL:    address,
		Header: h,
		Body:   body,
		Stream: stream,
	}, nil
}

func validateAddress(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return &ConfigurationError{Address: address, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{Address: address, Err: errors.New("missing scheme or host")}
	}
	return nil
}
