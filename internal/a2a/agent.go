package a2a

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
)

// apiKeyContextKey is the context key used to propagate the caller's API key
// from the HTTP layer into the agent's Run function.
type apiKeyContextKey struct{}

// ContextWithAPIKey returns a new context carrying the given upstream API key.
// Call this in an HTTP middleware before the request reaches the A2A handler.
func ContextWithAPIKey(ctx context.Context, apiKey string) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, apiKey)
}

// apiKeyFromContext retrieves the API key injected by the HTTP middleware.
// Returns ("", false) when no key was injected.
func apiKeyFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(apiKeyContextKey{}).(string)
	return v, ok && v != ""
}

// AgentConfig holds the configuration for the chat-completion backed A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Client is the pre-constructed chat-completion client.
	Client *chatgpt.Client
	// APIKey is the optional server-side upstream API key.
	// The per-request key extracted from the caller's Authorization header
	// takes precedence when present.
	APIKey string
	// SystemPrompt, when set, opens every conversation.
	SystemPrompt string
	// Options are the sampling options sent with every request.
	Options chatgpt.Options
	// User is the end-user identifier sent when Options.User is unset.
	// Empty omits the field.
	User string
}

// New returns an agent.Agent whose Run logic streams a chat completion and
// converts each content fragment into a session.Event that the ADK runner
// understands.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2a agent: Name must not be empty")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("a2a agent: Client must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

// runFunc returns the Run closure that drives one agent invocation.
func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			apiKey := resolveAPIKey(ctx, cfg.APIKey)
			if apiKey == "" {
				yield(nil, fmt.Errorf("no upstream API key: set --upstream-api-key or pass Authorization: Bearer <key>"))
				return
			}

			query := extractQuery(ctx.UserContent())
			if query == "" {
				ev := session.NewEvent(ctx.InvocationID())
				ev.Author = cfg.Name
				ev.LLMResponse = model.LLMResponse{
					Content: textContent("(empty input)"),
				}
				yield(ev, nil)
				return
			}

			chunks, err := cfg.Client.WithAPIKey(apiKey).StreamText(ctx, buildHistory(cfg.SystemPrompt, query), requestOptions(cfg))
			if err != nil {
				yield(nil, fmt.Errorf("chat completion request failed: %w", err))
				return
			}

			var fullText strings.Builder
			for text, err := range chunks {
				if err != nil {
					yield(nil, fmt.Errorf("chat completion stream error: %w", err))
					return
				}
				fullText.WriteString(text)

				// Emit a partial event so streaming A2A clients see tokens as they arrive.
				partialEv := session.NewEvent(ctx.InvocationID())
				partialEv.Author = cfg.Name
				partialEv.Branch = ctx.Branch()
				partialEv.LLMResponse = model.LLMResponse{
					Content: textContent(text),
					Partial: true,
				}
				if !yield(partialEv, nil) {
					return
				}
			}

			// Emit the final (non-partial) event with the complete answer so that
			// IsFinalResponse() returns true and the runner closes the invocation.
			finalEv := session.NewEvent(ctx.InvocationID())
			finalEv.Author = cfg.Name
			finalEv.Branch = ctx.Branch()
			finalEv.LLMResponse = model.LLMResponse{
				Content: textContent(fullText.String()),
				Partial: false,
			}
			yield(finalEv, nil)
		}
	}
}

// resolveAPIKey prefers the per-request key injected by the HTTP middleware
// and falls back to the server-side key.
func resolveAPIKey(ctx context.Context, fallback string) string {
	if key, ok := apiKeyFromContext(ctx); ok {
		return key
	}
	return fallback
}

// requestOptions returns the options for one call, filling the user only
// when one is configured.
func requestOptions(cfg AgentConfig) chatgpt.Options {
	opts := cfg.Options
	if opts.User == nil && cfg.User != "" {
		opts.User = chatgpt.String(cfg.User)
	}
	return opts
}

// buildHistory opens the conversation with the system prompt, if any.
func buildHistory(systemPrompt, query string) []chatgpt.Message {
	history := make([]chatgpt.Message, 0, 2)
	if systemPrompt != "" {
		history = append(history, chatgpt.System(systemPrompt))
	}
	return append(history, chatgpt.User(query))
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// textContent is a small helper that wraps a string into a *genai.Content.
func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
