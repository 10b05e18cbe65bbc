package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk/tabletalk/internal/errs"
)

func TestOpenAICompleterSendsProfile(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"SELECT 1;"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: " secret "})
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), "hello", DefaultProfile(ProfileQuery, "gpt-test"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", text)
	assert.Equal(t, "gpt-test", payload["model"])
	assert.InDelta(t, 0.7, payload["temperature"], 0.0001)
	assert.InDelta(t, 1024, payload["max_tokens"], 0.0001)
	messages := payload["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].(map[string]any)["content"])
}

func TestOpenAICompleterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"slow down"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hello", DefaultProfile(ProfileQuery, "m"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Equal(t, errs.ProviderQuota, Classify(err))
}

func TestOpenAICompleterNoChoicesIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), "hello", DefaultProfile(ProfileQuery, "m"))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestNewOpenAICompleterRequiresSettings(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAIConfig{BaseURL: "", APIKey: "k"})
	assert.True(t, errs.KindIs(errs.Config, err))

	_, err = NewOpenAICompleter(OpenAIConfig{BaseURL: "https://api.example.com", APIKey: "  "})
	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.True(t, errs.KindIs(errs.Config, err))
}
