package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/ranger/internal/extract"
	"github.com/ppiankov/ranger/internal/util"
)

// maxErrorBody caps how much of a failed response ends up in an error message
const maxErrorBody = 512

// apiClient speaks JSON to one provider endpoint
type apiClient struct {
	baseURL string
	headers map[string]string
	http    *http.Client

	// errorText pulls the provider's message out of a failed response body
	errorText func(body []byte) string
}

func newAPIClient(config Config, baseURL string, fallbackTimeout time.Duration) *apiClient {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	return &apiClient{
		baseURL: strings.TrimSuffix(firstNonEmpty(config.BaseURL, baseURL), "/"),
		headers: map[string]string{},
		http: util.NewHTTPClient(util.ClientOptions{
			Timeout:    timeout,
			HTTPProxy:  config.HTTPProxy,
			HTTPSProxy: config.HTTPSProxy,
			NoProxy:    config.NoProxy,
		}),
	}
}

// post sends in as JSON to path and decodes a 200 response into out
func (c *apiClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// get fetches path and discards the body; only the status matters
func (c *apiClient) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, nil)
}

func (c *apiClient) do(req *http.Request, out any) error {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := ""
		if c.errorText != nil {
			msg = c.errorText(body)
		}
		if msg == "" {
			msg = extract.Truncate(strings.TrimSpace(string(body)), maxErrorBody)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
