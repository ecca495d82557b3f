// Package llm provides an OpenAI-compatible chat completion client used as
// the completion transport for streaming turns.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Finish reasons reported by the completion API.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new completion client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ChatCompletionRequest represents the chat completion request.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []Tool        `json:"tools,omitempty"`
	ToolChoice  interface{}   `json:"tool_choice,omitempty"`
}

// ChatMessage represents a chat message.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool represents a tool definition offered to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction represents a function definition.
type ToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters,omitempty"`
}

// ToolCall represents a complete tool call on an assistant message.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction represents the function in a tool call.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// StreamChunk represents a single SSE chunk from the stream.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice is one choice within a stream chunk.
type StreamChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Delta carries the incremental payload of a stream chunk.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is one fragment of a tool call. Index is assigned by the
// stream and identifies which call the fragment belongs to; the id, name and
// argument text arrive incrementally and may be split across fragments.
type ToolCallDelta struct {
	Index    int                   `json:"index"`
	ID       string                `json:"id,omitempty"`
	Type     string                `json:"type,omitempty"`
	Function ToolCallFunctionDelta `json:"function,omitempty"`
}

// ToolCallFunctionDelta carries a partial function name or argument chunk.
type ToolCallFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError represents the error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// TransportError reports a failure of the underlying completion stream. It is
// fatal to the current turn only, never to the conversation.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("completion transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamCallback is called for each chunk in a streaming response.
type StreamCallback func(chunk *StreamChunk) error

// Stream sends a streaming chat completion request and invokes the callback
// per chunk. Transport-level failures are returned as *TransportError;
// callback errors are returned as-is.
func (c *Client) Stream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) error {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return &TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return &TransportError{Err: fmt.Errorf("LLM API error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)}
		}
		return &TransportError{Err: fmt.Errorf("LLM API error [%d]: %s", resp.StatusCode, string(respBody))}
	}

	// Parse SSE stream
	reader := bufio.NewReader(resp.Body)

	for {
		select {
		case <-ctx.Done():
			return &TransportError{Err: ctx.Err()}
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &TransportError{Err: fmt.Errorf("failed to read stream: %w", err)}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks
			continue
		}

		if err := callback(&chunk); err != nil {
			return err
		}
	}
}

// setHeaders sets common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
