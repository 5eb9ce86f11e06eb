package client

import (
	"context"

	"github.com/galynx/galynx/pkg/realtime"
)

// ConnectRealtime starts the realtime loop if one is not already running.
// Calling it while a live loop exists is a no-op; a loop that has since
// exited on its own is replaced.
func (c *Client) ConnectRealtime() error {
	c.realtimeMu.Lock()
	defer c.realtimeMu.Unlock()

	if c.realtimeLoop != nil {
		select {
		case <-c.realtimeLoop.Done():
			// fell over on its own, start fresh
		default:
			return nil
		}
	}

	c.realtimeLoop = realtime.Start(realtime.Options{
		BaseURL: c.APIBase,
		AccessToken: func(ctx context.Context) (string, error) {
			tokens, err := c.RequireTokens()
			if err != nil {
				return "", err
			}
			return tokens.AccessToken, nil
		},
		Bus:    c.bus,
		Logger: c.log,
	})
	return nil
}

// DisconnectRealtime stops the realtime loop if one is running. Idempotent.
func (c *Client) DisconnectRealtime() error {
	c.realtimeMu.Lock()
	defer c.realtimeMu.Unlock()

	if c.realtimeLoop != nil {
		c.realtimeLoop.Stop()
		c.realtimeLoop = nil
	}
	return nil
}
