package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"studiodesk/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	logger := zerolog.New(io.Discard)
	return NewClient(config.OracleConfig{
		BaseURL:   url + "/",
		APIKey:    "secret",
		Model:     "test-model",
		Timeout:   time.Second,
		MaxTokens: 64,
	}, &logger)
}

func TestClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Book 13:00 instead. "}}]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(t, srv.URL).Complete(context.Background(), "conflict details")
	require.NoError(t, err)
	assert.Equal(t, "Book 13:00 instead.", text)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 64, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "conflict details", got.Messages[0].Content)
}

func TestClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(t, srv.URL).Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestClient_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv.URL).Complete(ctx, "prompt")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_RedisCache(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"cached answer"}}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.UseRedisCache(rdb, time.Minute)

	for i := 0; i < 3; i++ {
		text, err := client.Complete(context.Background(), "same prompt")
		require.NoError(t, err)
		assert.Equal(t, "cached answer", text)
	}
	assert.Equal(t, int32(1), calls.Load())

	s.FastForward(2 * time.Minute)
	_, err := client.Complete(context.Background(), "same prompt")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
