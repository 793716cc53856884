package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSE(w http.ResponseWriter, deltas []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for i, d := range deltas {
		chunk := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"delta":         map[string]any{"role": "assistant", "content": d},
				"finish_reason": nil,
			}},
		}
		if i == len(deltas)-1 {
			chunk["choices"].([]map[string]any)[0]["finish_reason"] = "stop"
		}
		b, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestClient_GenerateStream(t *testing.T) {
	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeSSE(w, []string{"Hel", "lo", " world"})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL+"/", "",
		WithModel("qwen3"),
		WithReasoningEffort("low"),
		WithKeepAlive(300_000_000_000),
	)

	var got []string
	err := client.GenerateStream(context.Background(), "prompt", func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo", " world"}, got)
	assert.Equal(t, "Bearer ollama", auth)
	assert.Equal(t, "qwen3", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, 0.2, body["temperature"])
	assert.Equal(t, "low", body["reasoning_effort"])
	assert.Equal(t, float64(300), body["keep_alive"])
}

func TestClient_GenerateStreamStopsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, []string{"a", "b", "c"})
	}))
	t.Cleanup(srv.Close)

	stop := errors.New("stop")
	var got []string
	err := NewClient(srv.URL, "").GenerateStream(context.Background(), "p", func(s string) error {
		got = append(got, s)
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a"}, got)
}

func TestClient_PingSendsSingleTokenRequest(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "p"},
				"finish_reason": "length",
			}},
		})
	}))
	t.Cleanup(srv.Close)

	require.NoError(t, NewClient(srv.URL, "secret").Ping(context.Background()))
	assert.Equal(t, float64(1), body["max_tokens"])
}

func TestClient_PingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	assert.Error(t, NewClient(srv.URL, "").Ping(context.Background()))
}
