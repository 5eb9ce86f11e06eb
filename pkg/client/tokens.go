package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/galynx/galynx/pkg/logging"
)

// TokenBundle is the access/refresh credential pair with epoch-second
// expirations. A bundle is persisted all-or-nothing and replaced wholesale on
// refresh, never edited field-by-field.
type TokenBundle struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

// Tokens returns the cached bundle, loading it from the secure store on
// first use. Absence is a valid nil result; only a corrupt or undecodable
// stored value is an error.
func (c *Client) Tokens() (*TokenBundle, error) {
	c.tokensMu.RLock()
	cached := c.tokens
	c.tokensMu.RUnlock()
	if cached != nil {
		copied := *cached
		return &copied, nil
	}

	loaded, err := c.loadTokensFromStore()
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		return nil, nil
	}

	c.tokensMu.Lock()
	c.tokens = loaded
	c.tokensMu.Unlock()

	copied := *loaded
	return &copied, nil
}

// RequireTokens is Tokens with absence converted into an unauthenticated
// failure. All authenticated call sites use this.
func (c *Client) RequireTokens() (TokenBundle, error) {
	bundle, err := c.Tokens()
	if err != nil {
		return TokenBundle{}, err
	}
	if bundle == nil {
		return TokenBundle{}, unauthenticatedError()
	}
	return *bundle, nil
}

func (c *Client) loadTokensFromStore() (*TokenBundle, error) {
	if c.store == nil {
		return nil, nil
	}
	raw, ok := c.store.Get(tokenStoreKey)
	if !ok {
		return nil, nil
	}

	var bundle TokenBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, storageError("could not deserialize stored tokens", err)
	}
	return &bundle, nil
}

// PersistTokens overwrites the stored bundle and the in-memory cache. On
// failure both remain unchanged.
func (c *Client) PersistTokens(bundle TokenBundle) error {
	encoded, err := json.Marshal(bundle)
	if err != nil {
		return storageError("could not serialize tokens", err)
	}
	if err := c.persistValue(tokenStoreKey, encoded); err != nil {
		return err
	}

	c.tokensMu.Lock()
	copied := bundle
	c.tokens = &copied
	c.tokensMu.Unlock()
	return nil
}

// ClearTokens deletes persisted token state and resets the in-memory cache.
// Idempotent.
func (c *Client) ClearTokens() error {
	if c.store != nil {
		c.store.Delete(tokenStoreKey)
		if err := c.store.Save(); err != nil {
			return storageError("could not save secure store", err)
		}
	}

	c.tokensMu.Lock()
	c.tokens = nil
	c.tokensMu.Unlock()
	return nil
}

// RefreshTokens exchanges the current refresh token for a new bundle. The
// refresh guard serializes concurrent callers; each runs its own round-trip
// once the guard is acquired. The caller decides whether to retry the
// original operation; refresh itself never retries.
func (c *Client) RefreshTokens(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current, err := c.RequireTokens()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
	if err != nil {
		return invalidResponseError("could not encode refresh request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/auth/refresh"), bytes.NewReader(payload))
	if err != nil {
		return networkError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return networkError(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metricTokenRefresh.WithLabelValues("error").Inc()
		return networkError(err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		metricTokenRefresh.WithLabelValues("error").Inc()
		return networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metricTokenRefresh.WithLabelValues("rejected").Inc()
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			// A rejected refresh is an unauthenticated outcome: the bundle
			// is conclusively dead, so destroy it.
			if clearErr := c.ClearTokens(); clearErr != nil {
				c.log.Warn(logging.CategorySession, "clear_tokens_failed",
					"could not clear tokens after rejected refresh", map[string]any{"error": clearErr.Error()})
			}
			return unauthenticatedError()
		}
		return parseErrorBody(resp.StatusCode, body, "refresh_failed", "refresh failed")
	}

	var refreshed TokenBundle
	if err := json.Unmarshal(body, &refreshed); err != nil {
		metricTokenRefresh.WithLabelValues("error").Inc()
		return invalidResponseError("refresh response invalid", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" {
		metricTokenRefresh.WithLabelValues("error").Inc()
		return invalidResponseError("refresh response missing tokens", nil)
	}

	if err := c.PersistTokens(refreshed); err != nil {
		metricTokenRefresh.WithLabelValues("error").Inc()
		return err
	}

	metricTokenRefresh.WithLabelValues("success").Inc()
	c.log.Info(logging.CategorySession, "tokens_refreshed", "access token refreshed", nil)
	return nil
}
