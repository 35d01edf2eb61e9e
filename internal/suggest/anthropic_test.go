package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

func TestAnthropicGeneratorParsesReply(t *testing.T) {
	var gotKey, gotPath string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "test-model",
			"content": [{"type": "text", "text": "Here you go: [\"home workout\", \"hiit\"]"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 12, "output_tokens": 8}
		}`))
	}))
	t.Cleanup(srv.Close)

	gen, err := NewAnthropicGenerator(AnthropicConfig{APIKey: "sk-test", Model: "test-model", BaseURL: srv.URL, MaxTokens: 128})
	require.NoError(t, err)

	got, err := gen.Generate(context.Background(), "fitness", scraping.PlatformTikTok)
	require.NoError(t, err)
	assert.Equal(t, []string{"home workout", "hiit"}, got)
	assert.Equal(t, "sk-test", gotKey)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "test-model", body["model"])
	assert.EqualValues(t, 128, body["max_tokens"])
}

func TestAnthropicGeneratorSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	t.Cleanup(srv.Close)

	gen, err := NewAnthropicGenerator(AnthropicConfig{APIKey: "sk-test", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "fitness", "")
	require.Error(t, err)
}

func TestNewAnthropicGeneratorValidates(t *testing.T) {
	_, err := NewAnthropicGenerator(AnthropicConfig{Model: "m"})
	require.Error(t, err)
	_, err = NewAnthropicGenerator(AnthropicConfig{APIKey: "k"})
	require.Error(t, err)
}

func TestParseKeywordsFallsBackToLines(t *testing.T) {
	got := parseKeywords("1. yoga\n- pilates\n\n* stretching")
	assert.Equal(t, []string{"yoga", "pilates", "stretching"}, got)
}
