package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

func chatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func TestExtract(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, chatBody(`{"title":"Widget","price":9.99}`))
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"})
	out, err := client.Extract(context.Background(), "Widget costs $9.99", "extract the product",
		map[string]any{"type": "object"})
	require.NoError(t, err)

	decoded, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Widget", decoded["title"])
	assert.Equal(t, 9.99, decoded["price"])

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Contains(t, gotReq.Messages[0].Content, "extract the product")
	assert.Contains(t, gotReq.Messages[0].Content, `"type":"object"`)
	assert.Equal(t, "Widget costs $9.99", gotReq.Messages[1].Content)
	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
}

func TestExtractUnconfigured(t *testing.T) {
	client := NewClient(config.LLMConfig{BaseURL: "https://api.openai.com/v1"})
	assert.False(t, client.Configured())

	_, err := client.Extract(context.Background(), "content", "", nil)
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeLLM, se.Code)
}

func TestExtractErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusUnauthorized, models.ErrCodeUnauthorized},
		{http.StatusForbidden, models.ErrCodeUnauthorized},
		{http.StatusTooManyRequests, models.ErrCodeRateLimited},
		{http.StatusInternalServerError, models.ErrCodeLLM},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			}))
			defer srv.Close()

			client := NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
			_, err := client.Extract(context.Background(), "content", "", nil)
			var se *models.ScrapeError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, "nope", se.Message)
		})
	}
}

func TestExtractInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatBody("not json at all"))
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
	_, err := client.Extract(context.Background(), "content", "", nil)
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeLLM, se.Code)
}
