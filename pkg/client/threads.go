package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// GetThread returns the summary of the thread rooted at a message.
func (c *Client) GetThread(ctx context.Context, rootID string) (*ThreadSummary, error) {
	raw, err := c.Send(ctx, http.MethodGet, "/threads/"+url.PathEscape(rootID), nil, true)
	if err != nil {
		return nil, err
	}
	var summary ThreadSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, invalidResponseError("thread summary invalid", err)
	}
	return &summary, nil
}

// ListThreadReplies returns one page of a thread's replies. Pagination rules
// match ListMessages.
func (c *Client) ListThreadReplies(ctx context.Context, rootID string, limit int, cursor string) (*MessageList, error) {
	path := paginatedPath("/threads/"+url.PathEscape(rootID)+"/replies", limit, cursor)
	raw, err := c.Send(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	var list MessageList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, invalidResponseError("reply list invalid", err)
	}
	return &list, nil
}

// SendThreadReply posts a reply into the thread rooted at rootID.
func (c *Client) SendThreadReply(ctx context.Context, rootID, bodyMD string) (*Message, error) {
	raw, err := c.Send(ctx, http.MethodPost, "/threads/"+url.PathEscape(rootID)+"/replies",
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
