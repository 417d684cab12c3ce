package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webdriverClient speaks the W3C WebDriver protocol over HTTP. Only the
// handful of commands the virtual browser needs are implemented.
type webdriverClient struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
}

type wdResponse struct {
	Value json.RawMessage `json:"value"`
}

type wdError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// newSession creates a WebDriver session with the given capabilities.
func newSession(ctx context.Context, baseURL string, capabilities map[string]any) (*webdriverClient, error) {
	c := &webdriverClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	var value struct {
		SessionID string `json:"sessionId"`
	}
	err := c.do(ctx, http.MethodPost, "/session", map[string]any{
		"capabilities": map[string]any{"alwaysMatch": capabilities},
	}, &value)
	if err != nil {
		return nil, fmt.Errorf("creating webdriver session: %w", err)
	}
	if value.SessionID == "" {
		return nil, fmt.Errorf("webdriver returned no session id")
	}
	c.sessionID = value.SessionID
	return c, nil
}

func (c *webdriverClient) deleteSession(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/session/"+c.sessionID, nil, nil)
}

func (c *webdriverClient) navigate(ctx context.Context, url string) error {
	return c.session(ctx, http.MethodPost, "/url", map[string]any{"url": url}, nil)
}

func (c *webdriverClient) currentURL(ctx context.Context) (string, error) {
	var url string
	if err := c.session(ctx, http.MethodGet, "/url", nil, &url); err != nil {
		return "", err
	}
	return url, nil
}

// execute runs a script synchronously in the page and decodes its return
// value into out.
func (c *webdriverClient) execute(ctx context.Context, script string, args []any, out any) error {
	if args == nil {
		args = []any{}
	}
	return c.session(ctx, http.MethodPost, "/execute/sync", map[string]any{
		"script": script,
		"args":   args,
	}, out)
}

func (c *webdriverClient) setWindowRect(ctx context.Context, width, height int) error {
	return c.session(ctx, http.MethodPost, "/window/rect", map[string]any{
		"width":  width,
		"height": height,
	}, nil)
}

func (c *webdriverClient) findElement(ctx context.Context, cssSelector string) (string, error) {
	var value map[string]string
	err := c.session(ctx, http.MethodPost, "/element", map[string]any{
		"using": "css selector",
		"value": cssSelector,
	}, &value)
	if err != nil {
		return "", err
	}
	// The element id is the sole value of the W3C element envelope.
	for _, id := range value {
		return id, nil
	}
	return "", fmt.Errorf("webdriver returned no element for %q", cssSelector)
}

func (c *webdriverClient) sendKeys(ctx context.Context, elementID, text string) error {
	return c.session(ctx, http.MethodPost, "/element/"+elementID+"/value", map[string]any{
		"text": text,
	}, nil)
}

func (c *webdriverClient) screenshot(ctx context.Context) (string, error) {
	var base64Data string
	if err := c.session(ctx, http.MethodGet, "/screenshot", nil, &base64Data); err != nil {
		return "", err
	}
	return base64Data, nil
}

func (c *webdriverClient) session(ctx context.Context, method, path string, body any, out any) error {
	return c.do(ctx, method, "/session/"+c.sessionID+path, body, out)
}

func (c *webdriverClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding webdriver request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building webdriver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending webdriver request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading webdriver response: %w", err)
	}

	var envelope wdResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding webdriver response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var wdErr wdError
		if json.Unmarshal(envelope.Value, &wdErr) == nil && wdErr.Error != "" {
			return fmt.Errorf("webdriver command failed: %s: %s", wdErr.Error, wdErr.Message)
		}
		return fmt.Errorf("webdriver command failed with status %d", resp.StatusCode)
	}

	if out != nil && len(envelope.Value) > 0 {
		if err := json.Unmarshal(envelope.Value, out); err != nil {
			return fmt.Errorf("decoding webdriver value: %w", err)
		}
	}
	return nil
}
