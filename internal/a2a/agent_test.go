package a2a

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(AgentConfig{Client: chatgpt.NewClient(chatgpt.Config{})})
	assert.ErrorContains(t, err, "Name")

	_, err = New(AgentConfig{Name: "agent"})
	assert.ErrorContains(t, err, "Client")

	a, err := New(AgentConfig{Name: "agent", Description: "d", Client: chatgpt.NewClient(chatgpt.Config{})})
	require.NoError(t, err)
	assert.Equal(t, "agent", a.Name())
	assert.Equal(t, "d", a.Description())
}

func TestResolveAPIKey(t *testing.T) {
	assert.Equal(t, "server", resolveAPIKey(context.Background(), "server"))
	assert.Equal(t, "caller", resolveAPIKey(ContextWithAPIKey(context.Background(), "caller"), "server"))
	assert.Equal(t, "server", resolveAPIKey(ContextWithAPIKey(context.Background(), ""), "server"))
	assert.Empty(t, resolveAPIKey(context.Background(), ""))
}

func TestBuildHistory(t *testing.T) {
	assert.Equal(t, []chatgpt.Message{chatgpt.User("hi")}, buildHistory("", "hi"))
	assert.Equal(t, []chatgpt.Message{chatgpt.System("be brief"), chatgpt.User("hi")}, buildHistory("be brief", "hi"))
}

func TestRequestOptions_User(t *testing.T) {
	assert.Nil(t, requestOptions(AgentConfig{}).User)

	opts := requestOptions(AgentConfig{User: "agent-user"})
	require.NotNil(t, opts.User)
	assert.Equal(t, "agent-user", *opts.User)

	opts = requestOptions(AgentConfig{User: "agent-user", Options: chatgpt.Options{User: chatgpt.String("explicit")}})
	assert.Equal(t, "explicit", *opts.User)
}

func TestRequestOptions_EmptyUserOmitted(t *testing.T) {
	endpoint := chatgpt.Endpoint{BaseURL: chatgpt.DefaultBaseURL, Path: chatgpt.DefaultPath, APIKey: "sk-test"}
	req, err := chatgpt.BuildRequest(endpoint, buildHistory("", "hi"), requestOptions(AgentConfig{}), true)
	require.NoError(t, err)
	assert.NotContains(t, string(req.Body), `"user":`)
}

func TestExtractQuery(t *testing.T) {
	assert.Empty(t, extractQuery(nil))
	content := &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: " What is "}, {Text: "Go? "}},
	}
	assert.Equal(t, "What is Go?", extractQuery(content))
}
