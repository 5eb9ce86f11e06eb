package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

func paginatedPath(prefix string, limit int, cursor string) string {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	path := fmt.Sprintf("%s?limit=%d", prefix, limit)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}
	return path
}

// ListMessages returns one page of a channel's messages, newest first. A
// limit outside [1, 100] is clamped; zero means the default of 50.
func (c *Client) ListMessages(ctx context.Context, channelID string, limit int, cursor string) (*MessageList, error) {
	path := paginatedPath("/channels/"+url.PathEscape(channelID)+"/messages", limit, cursor)
	raw, err := c.Send(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	var list MessageList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, invalidResponseError("message list invalid", err)
	}
	return &list, nil
}

// SendMessage posts a markdown message to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, bodyMD string) (*Message, error) {
	raw, err := c.Send(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/messages",
		map[string]string{"body_md": bodyMD}, true)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, invalidResponseError("message invalid", err)
	}
	return &msg, nil
}

// EditMessage replaces a message's body.
func (c *Client) EditMessage(ctx context.Context, messageID, bodyMD string) (*Message, error) {
	raw, err := c.Send(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID),
		map[string]string{"body_md": bodyMD}, true)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, invalidResponseError("message invalid", err)
	}
	return &msg, nil
}

// DeleteMessage soft-deletes a message by ID.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.Send(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, true)
	return err
}
