package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// ListChannels returns the channels visible to the authenticated user.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	raw, err := c.Send(ctx, http.MethodGet, "/channels", nil, true)
	if err != nil {
		return nil, err
	}
	var channels []Channel
	if err := json.Unmarshal(raw, &channels); err != nil {
		return nil, invalidResponseError("channel list invalid", err)
	}
	return channels, nil
}

// CreateChannel creates a channel in the current workspace.
func (c *Client) CreateChannel(ctx context.Context, name string, isPrivate bool) (*Channel, error) {
	raw, err := c.Send(ctx, http.MethodPost, "/channels", map[string]any{
		"name":       name,
		"is_private": isPrivate,
	}, true)
	if err != nil {
		return nil, err
	}
	var channel Channel
	if err := json.Unmarshal(raw, &channel); err != nil {
		return nil, invalidResponseError("channel invalid", err)
	}
	return &channel, nil
}

// DeleteChannel deletes a channel by ID.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.Send(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID), nil, true)
	return err
}
