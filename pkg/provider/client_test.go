package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/models"
)

const okBody = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" Фотосинтез — это процесс. "}}]}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.ProviderConfig{BaseURL: srv.URL + "/"})
}

func TestComplete(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-1", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okBody)
	})

	text, err := c.Complete(context.Background(), "gsk-1", CompletionRequest{
		Model: "llama-3.1-8b-instant",
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "be brief"},
			{Role: models.RoleUser, Content: "Что такое фотосинтез?"},
		},
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   1024,
	})
	require.NoError(t, err)
	assert.Equal(t, "Фотосинтез — это процесс.", text)

	assert.Equal(t, "llama-3.1-8b-instant", got["model"])
	assert.InDelta(t, 0.7, got["temperature"], 1e-9)
	assert.InDelta(t, 0.9, got["top_p"], 1e-9)
	assert.InDelta(t, 1024, got["max_tokens"], 1e-9)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestCompleteRateLimited(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`)
	})

	_, err := c.Complete(context.Background(), "gsk-1", CompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, 1, calls, "SDK retries must be disabled")

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.Status)
	assert.Equal(t, "complete", perr.Op)
}

func TestCompleteServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":{"message":"upstream down"}}`)
	})

	_, err := c.Complete(context.Background(), "gsk-1", CompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCompleteEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	})

	_, err := c.Complete(context.Background(), "gsk-1", CompletionRequest{Model: "m"})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestDescribe(t *testing.T) {
	var raw string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		raw = string(body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okBody)
	})

	_, err := c.Describe(context.Background(), "gsk-2", ImageRequest{
		Model:     "vision",
		Prompt:    "read this",
		Image:     []byte("fake-jpeg"),
		MaxTokens: 150,
	})
	require.NoError(t, err)
	assert.Contains(t, raw, "data:image/jpeg;base64,ZmFrZS1qcGVn")
	assert.Contains(t, raw, `"read this"`)
	assert.Contains(t, raw, `"image_url"`)
}

func TestClientReusedPerKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okBody)
	})
	for _, key := range []string{"a", "b", "a"} {
		_, err := c.Complete(context.Background(), key, CompletionRequest{Model: "m"})
		require.NoError(t, err)
	}
	assert.Len(t, c.clients, 2)
}

func TestDiagnose(t *testing.T) {
	raw := errors.New("secret upstream detail sk-123")
	tests := []struct {
		err  error
		want string
	}{
		{&Error{Op: "describe", Err: errors.Join(ErrRateLimited, raw)}, "сервис перегружен"},
		{context.DeadlineExceeded, "превышено время ожидания"},
		{&Error{Op: "describe", Err: ErrEmptyResponse}, "текст не найден"},
		{raw, "внутренняя ошибка"},
	}
	for _, tt := range tests {
		got := Diagnose(tt.err)
		assert.Equal(t, tt.want, got)
		assert.False(t, strings.Contains(got, "sk-123"))
	}
}
