package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxAdapterResponseBytes = 4 << 20

// restClient is the shared HTTP plumbing for the vendor adapters: JSON in,
// JSON out, status codes classified onto the adapter error taxonomy and
// transient failures retried with backoff.
type restClient struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	sleep      sleepFunc
}

func (c *restClient) doJSON(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	return withRetry(ctx, c.sleep, op, func() error {
		return c.once(ctx, method, path, query, body, out)
	})
}

func (c *restClient) once(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAdapterResponseBytes))
	if err != nil {
		return classifyTransportError(err)
	}

	if err := classifyHTTPStatus(resp.StatusCode, truncate(string(raw), 512)); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
