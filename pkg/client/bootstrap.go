package client

import (
	"context"

	"github.com/galynx/galynx/pkg/logging"
)

// ValidateStoredSession probes /me with the stored token bundle, if any. A
// probe failure of any kind clears the session so the frontend starts signed
// out rather than half-authenticated. Intended to run in the background at
// startup; it never blocks the caller and reports nothing on success.
func (c *Client) ValidateStoredSession(ctx context.Context) {
	tokens, err := c.Tokens()
	if err != nil {
		c.log.Warn(logging.CategorySession, "session_load_failed",
			"could not load stored session", map[string]any{"error": err.Error()})
		return
	}
	if tokens == nil {
		return
	}

	if _, err := c.Me(ctx); err != nil {
		c.log.Warn(logging.CategorySession, "session_invalid",
			"stored session invalid, clearing tokens", map[string]any{"error": err.Error()})
		if clearErr := c.ClearTokens(); clearErr != nil {
			c.log.Error(logging.CategorySession, "clear_tokens_failed",
				"could not clear invalid session", map[string]any{"error": clearErr.Error()})
		}
	}
}
