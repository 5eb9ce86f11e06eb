package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/galynx/galynx/pkg/logging"
)

const (
	// rateLimitBaseDelay is doubled per 429 retry: 200ms, then 400ms.
	rateLimitBaseDelay  = 200 * time.Millisecond
	maxRateLimitRetries = 2
)

// Send dispatches one API request and returns the raw JSON response body.
// The retry policy has exactly two independent branches:
//
//   - 401 on an authenticated request triggers one token refresh followed by
//     one retry. A second 401 is returned as-is.
//   - 429 triggers up to two retries with exponential delay. The budget is
//     separate from the refresh budget; a request may consume both.
//
// A 204 or empty body yields a nil RawMessage. Every other non-2xx status is
// mapped through the structured error body.
func (c *Client) Send(ctx context.Context, method, path string, body any, authRequired bool) (json.RawMessage, error) {
	started := time.Now()
	raw, err := c.send(ctx, method, path, body, authRequired)
	metricRequestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metricRequests.WithLabelValues(method, "error").Inc()
		return nil, err
	}
	metricRequests.WithLabelValues(method, "success").Inc()
	return raw, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, authRequired bool) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, invalidResponseError("could not encode request body", err)
		}
		payload = encoded
	}

	refreshed := false
	rateRetries := 0

	for {
		// The base URL is re-read per attempt so a concurrent SetAPIBase
		// takes effect on retries.
		req, err := c.buildRequest(ctx, method, path, payload, authRequired)
		if err != nil {
			return nil, err
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, networkError(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, networkError(err)
		}

		if resp.StatusCode == http.StatusUnauthorized && authRequired && !refreshed {
			drain(resp)
			refreshed = true
			c.log.Info(logging.CategoryNetwork, "auth_retry",
				"access token rejected, refreshing", map[string]any{"method": method, "path": path})
			if err := c.RefreshTokens(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests && rateRetries < maxRateLimitRetries {
			drain(resp)
			delay := rateLimitBaseDelay << rateRetries
			rateRetries++
			metricRateLimitRetries.Inc()
			c.log.Warn(logging.CategoryNetwork, "rate_limited",
				"request rate limited, backing off", map[string]any{"path": path, "delay_ms": delay.Milliseconds()})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, networkError(ctx.Err())
			}
			continue
		}

		if resp.StatusCode == http.StatusNoContent {
			drain(resp)
			return nil, nil
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, networkError(err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, parseErrorBody(resp.StatusCode, respBody, "unknown_error", "Request failed")
		}

		if len(bytes.TrimSpace(respBody)) == 0 {
			return nil, nil
		}
		if !json.Valid(respBody) {
			return nil, invalidResponseError("response body is not valid JSON", nil)
		}
		return json.RawMessage(respBody), nil
	}
}

func (c *Client) buildRequest(ctx context.Context, method, path string, payload []byte, authRequired bool) (*http.Request, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, networkError(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authRequired {
		tokens, err := c.RequireTokens()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	}
	return req, nil
}

// parseErrorBody maps a non-2xx body into an HTTP error. A JSON object body
// contributes its "error" and "message" fields; anything else falls back to
// the status plus the raw text.
func parseErrorBody(status int, body []byte, defaultCode, defaultMessage string) *APIError {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err == nil {
		code := defaultCode
		message := defaultMessage
		if v, ok := decoded["error"].(string); ok && v != "" {
			code = v
		}
		if v, ok := decoded["message"].(string); ok && v != "" {
			message = v
		}
		return httpError(status, code, message)
	}
	return httpError(status, "http_error", string(body))
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
