package chatgpt

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// UnmarshalJSON rejects roles outside the closed set.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Role(s) {
	case RoleSystem, RoleUser, RoleAssistant:
		*r = Role(s)
		return nil
	}
	return fmt.Errorf("unknown role %q", s)
}

// Message is one conversation turn. Order within a history is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Model is the model identifier sent to the service. Any string not listed
// below is passed through as a custom model name.
type Model string

const (
	ModelGPT35Turbo Model = "gpt-3.5-turbo"
	ModelGPT4       Model = "gpt-4"
)

// CustomModel names a model outside the predefined set.
func CustomModel(name string) Model { return Model(name) }

func (m Model) String() string { return string(m) }

// Options carries generation parameters. A nil field means "use the service
// default" and is omitted from the request body.
type Options struct {
	Model Model

	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
	MaxTokens        *int
	// Choices is the number of completions to generate (wire field "n").
	Choices *int
	User    *string
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func String(v string) *string  { return &v }

// Usage holds token counters reported by the service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a buffered (non-streaming) completion. Choices is never empty
// when returned without error; index 0 is the primary completion.
type Result struct {
	Model   *string  `json:"model,omitempty"`
	Usage   Usage    `json:"usage"`
	Object  string   `json:"object"`
	Choices []Choice `json:"choices"`
}

// Choice is one completion of a buffered result.
type Choice struct {
	Message Message `json:"message"`
}

// Text returns the content of the primary completion.
func (r *Result) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ResultDelta is one streamed chunk.
type ResultDelta struct {
	Model   *string       `json:"model,omitempty"`
	Object  string        `json:"object"`
	Choices []ChoiceDelta `json:"choices"`
}

// ChoiceDelta is the per-choice part of a streamed chunk.
type ChoiceDelta struct {
	Delta MessageDelta `json:"delta"`
}

// MessageDelta is a partial message. Use Kind to interpret it.
type MessageDelta struct {
	Role    *Role   `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// DeltaKind classifies a MessageDelta.
type DeltaKind int

const (
	// DeltaRole opens a choice: a role is present and carries no text.
	DeltaRole DeltaKind = iota
	// DeltaContent carries a text fragment, possibly empty.
	DeltaContent
	// DeltaEnd has neither role nor content and terminates the choice.
	DeltaEnd
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaRole:
		return "role"
	case DeltaContent:
		return "content"
	case DeltaEnd:
		return "end"
	}
	return fmt.Sprintf("DeltaKind(%d)", int(k))
}

// Kind reports which variant d is. A role takes precedence over content.
func (d MessageDelta) Kind() DeltaKind {
	switch {
	case d.Role != nil:
		return DeltaRole
	case d.Content != nil:
		return DeltaContent
	default:
		return DeltaEnd
	}
}

// Text returns the content fragment of the primary choice, or "".
func (d ResultDelta) Text() string {
	if len(d.Choices) == 0 || d.Choices[0].Delta.Content == nil {
		return ""
	}
	return *d.Choices[0].Delta.Content
}
