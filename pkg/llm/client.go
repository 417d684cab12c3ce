package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ServerError is returned when the provider answers with a non-2xx status.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("inference API returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey     string
	apiURL     string
	userAgent  string
	httpClient *http.Client
}

// NewClient builds a client for one provider endpoint. apiURL must end with
// a trailing slash, e.g. "https://api.openai.com/v1/".
func NewClient(apiKey, apiURL, userAgent string) *Client {
	return &Client{
		apiKey:    apiKey,
		apiURL:    apiURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			// Completions can run for minutes. Streaming responses return
			// before the body is consumed, so this bounds the whole
			// non-streaming exchange and only the headers of a stream.
			Timeout: 10 * time.Minute,
		},
	}
}

// CreateChatCompletion performs a non-streaming completion.
func (c *Client) CreateChatCompletion(ctx context.Context, req CompletionRequest) (Completion, error) {
	req.Stream = false

	resp, err := c.post(ctx, "chat/completions", req)
	if err != nil {
		return Completion{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("reading completion response: %w", err)
	}

	var completion Completion
	if err := json.Unmarshal(body, &completion); err != nil {
		return Completion{}, fmt.Errorf("decoding completion response: %w", err)
	}
	return completion, nil
}

// CreateChatCompletionStream performs a streaming completion and returns the
// raw response body. The caller owns the body and must close it; chunks are
// read and reassembled by the streaming engine.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req CompletionRequest) (io.ReadCloser, error) {
	req.Stream = true

	resp, err := c.post(ctx, "chat/completions", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	slog.Debug("Inference API request", "endpoint", endpoint, "bytes", len(payload))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}
	return resp, nil
}
