package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGeminiTestServer(t *testing.T, status int, body string, seen *map[string]any, header *http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header != nil {
			*header = r.Header.Clone()
		}
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiGenerateReturnsFirstCandidateText(t *testing.T) {
	var payload map[string]any
	var header http.Header
	srv := newGeminiTestServer(t, http.StatusOK, `{
		"candidates": [
			{"content": {"role": "model", "parts": [{"text": "thinking", "thought": true}, {"text": "Start a SIP "}, {"text": "of 25k."}]}},
			{"content": {"role": "model", "parts": [{"text": "second candidate"}]}}
		]
	}`, &payload, &header)

	m, err := NewGeminiChatModel(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("be helpful"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
		schema.UserMessage("I want to save 50 lakh for a house"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Start a SIP of 25k.", msg.Content)
	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, "test-key", header.Get("x-goog-api-key"))

	contents, ok := payload["contents"].([]any)
	require.True(t, ok, "contents missing from request: %v", payload)
	assert.Len(t, contents, 3)
	assert.Contains(t, payload, "systemInstruction")
}

func TestGeminiGenerateErrorsOnServerFailure(t *testing.T) {
	srv := newGeminiTestServer(t, http.StatusInternalServerError, `{"error": {"code": 500, "message": "boom", "status": "INTERNAL"}}`, nil, nil)

	m, err := NewGeminiChatModel(context.Background(), GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
}

func TestGeminiGenerateErrorsOnEmptyCandidates(t *testing.T) {
	srv := newGeminiTestServer(t, http.StatusOK, `{"candidates": []}`, nil, nil)

	m, err := NewGeminiChatModel(context.Background(), GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.ErrorIs(t, err, ErrEmptyCandidate)
}

func TestNewGeminiChatModelRequiresKey(t *testing.T) {
	_, err := NewGeminiChatModel(context.Background(), GeminiConfig{})
	require.Error(t, err)
}

func TestToGeminiContentsJoinsSystemMessages(t *testing.T) {
	system, contents := toGeminiContents([]*schema.Message{
		schema.SystemMessage("one"),
		nil,
		schema.SystemMessage("two"),
		schema.UserMessage("q"),
	})
	assert.Equal(t, "one\n\ntwo", system)
	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
	assert.True(t, strings.Contains(contents[0].Parts[0].Text, "q"))
}
