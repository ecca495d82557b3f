package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
}

func TestStreamDeliversChunks(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", 5*time.Second)

	var content string
	var finish string
	err := c.Stream(context.Background(), &ChatCompletionRequest{
		Model:    "test-model",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	}, func(chunk *StreamChunk) error {
		for _, choice := range chunk.Choices {
			content += choice.Delta.Content
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
	assert.Equal(t, FinishReasonStop, finish)
}

func TestStreamFragmentedToolCall(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"demo_create_issue","arguments":""}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"title\":"}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Fix bug\"}"}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)

	var deltas []ToolCallDelta
	err := c.Stream(context.Background(), &ChatCompletionRequest{Model: "test-model"}, func(chunk *StreamChunk) error {
		for _, choice := range chunk.Choices {
			deltas = append(deltas, choice.Delta.ToolCalls...)
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, deltas, 3)
	assert.Equal(t, "call_1", deltas[0].ID)
	assert.Equal(t, "demo_create_issue", deltas[0].Function.Name)
	assert.Equal(t, 0, deltas[1].Index)
	args := deltas[0].Function.Arguments + deltas[1].Function.Arguments + deltas[2].Function.Arguments
	assert.JSONEq(t, `{"title":"Fix bug"}`, args)
}

func TestStreamSkipsMalformedChunks(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {not json`,
		`: comment line`,
		`data: {"choices":[{"index":0,"delta":{"content":"ok"}}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)

	var content string
	err := c.Stream(context.Background(), &ChatCompletionRequest{Model: "test-model"}, func(chunk *StreamChunk) error {
		for _, choice := range chunk.Choices {
			content += choice.Delta.Content
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
}

func TestStreamCallbackErrorReturnedAsIs(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"index":0,"delta":{"content":"first"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"second"}}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)

	stop := errors.New("stop consuming")
	calls := 0
	err := c.Stream(context.Background(), &ChatCompletionRequest{Model: "test-model"}, func(chunk *StreamChunk) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	var transport *TransportError
	assert.False(t, errors.As(err, &transport), "a callback error is not a transport failure")
	assert.Equal(t, 1, calls)
}

func TestStreamHTTPErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)

	err := c.Stream(context.Background(), &ChatCompletionRequest{Model: "test-model"}, func(chunk *StreamChunk) error {
		t.Fatal("no chunks expected on an error response")
		return nil
	})
	require.Error(t, err)

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Contains(t, transport.Error(), "rate limited")
}

func TestStreamConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, "", time.Second)

	err := c.Stream(context.Background(), &ChatCompletionRequest{Model: "test-model"}, func(chunk *StreamChunk) error {
		return nil
	})
	var transport *TransportError
	assert.ErrorAs(t, err, &transport)
}

func TestStreamSendsAuthHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", 5*time.Second)
	err := c.Stream(context.Background(), &ChatCompletionRequest{Model: "test-model"}, func(chunk *StreamChunk) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", auth)
}
