package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/galynx/galynx/pkg/logging"
)

// Login authenticates with email and password, persists the returned token
// bundle, and fetches the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthSession, error) {
	raw, err := c.Send(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, false)
	if err != nil {
		return nil, err
	}

	var bundle TokenBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, invalidResponseError("login response invalid", err)
	}
	if err := c.PersistTokens(bundle); err != nil {
		return nil, err
	}

	user, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Info(logging.CategorySession, "login", "signed in", map[string]any{"user_id": user.ID})
	return &AuthSession{TokenBundle: bundle, User: *user}, nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	raw, err := c.Send(ctx, http.MethodGet, "/me", nil, true)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, invalidResponseError("user profile invalid", err)
	}
	return &user, nil
}

// Logout revokes the refresh token server-side on a best-effort basis, then
// clears local token state unconditionally.
func (c *Client) Logout(ctx context.Context) error {
	if tokens, err := c.RequireTokens(); err == nil {
		if _, err := c.Send(ctx, http.MethodPost, "/auth/logout",
			map[string]string{"refresh_token": tokens.RefreshToken}, false); err != nil {
			c.log.Warn(logging.CategorySession, "logout_revoke_failed",
				"server-side logout failed, clearing local state anyway", map[string]any{"error": err.Error()})
		}
	}
	if err := c.ClearTokens(); err != nil {
		return err
	}
	c.log.Info(logging.CategorySession, "logout", "signed out", nil)
	return nil
}
