package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// AttachmentUpload describes a file to attach to an existing message.
type AttachmentUpload struct {
	ChannelID   string
	MessageID   string
	Filename    string
	ContentType string
	Bytes       []byte
}

type presignResponse struct {
	UploadID  string  `json:"upload_id"`
	UploadURL string  `json:"upload_url"`
	Key       *string `json:"key"`
}

// UploadAttachment runs the presign / upload / commit sequence. The binary
// PUT goes straight to the presigned URL with no bearer token and no retry
// policy; a non-2xx there fails the whole operation.
func (c *Client) UploadAttachment(ctx context.Context, upload AttachmentUpload) (*Attachment, error) {
	presignRaw, err := c.Send(ctx, http.MethodPost, "/attachments/presign", map[string]any{
		"channel_id":   upload.ChannelID,
		"filename":     upload.Filename,
		"content_type": upload.ContentType,
		"size_bytes":   len(upload.Bytes),
	}, true)
	if err != nil {
		return nil, err
	}

	var presign presignResponse
	if err := json.Unmarshal(presignRaw, &presign); err != nil {
		return nil, invalidResponseError("presign response invalid", err)
	}
	if presign.UploadURL == "" {
		return nil, invalidResponseError("presign response missing upload_url", nil)
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, presign.UploadURL, bytes.NewReader(upload.Bytes))
	if err != nil {
		return nil, networkError(err)
	}
	putReq.Header.Set("Content-Type", upload.ContentType)

	putResp, err := c.http.Do(putReq)
	if err != nil {
		return nil, networkError(err)
	}
	io.Copy(io.Discard, putResp.Body)
	putResp.Body.Close()
	if putResp.StatusCode < 200 || putResp.StatusCode >= 300 {
		return nil, httpError(putResp.StatusCode, "upload_failed", "binary upload failed")
	}

	commitRaw, err := c.Send(ctx, http.MethodPost, "/attachments/commit", map[string]string{
		"upload_id":  presign.UploadID,
		"message_id": upload.MessageID,
	}, true)
	if err != nil {
		return nil, err
	}

	attachment := mapCommitResponse(commitRaw, upload.Filename, int64(len(upload.Bytes)), upload.ContentType, presign.Key)
	return &attachment, nil
}

// mapCommitResponse builds an Attachment from the commit body, tolerating
// servers that use alternate field names. Missing fields fall back to the
// values the caller supplied at presign time.
func mapCommitResponse(raw json.RawMessage, fallbackName string, fallbackSize int64, fallbackType string, fallbackKey *string) Attachment {
	var fields map[string]any
	json.Unmarshal(raw, &fields)

	att := Attachment{
		ID:          stringField(fields, "attachment", "id"),
		Name:        stringField(fields, fallbackName, "filename", "name"),
		SizeBytes:   intField(fields, fallbackSize, "size_bytes", "size"),
		ContentType: &fallbackType,
		StorageKey:  fallbackKey,
	}
	if v, ok := fields["content_type"].(string); ok {
		att.ContentType = &v
	}
	for _, key := range []string{"storage_key", "key"} {
		if v, ok := fields[key].(string); ok {
			att.StorageKey = &v
			break
		}
	}
	if v, ok := fields["download_url"].(string); ok {
		att.DownloadURL = &v
	}
	return att
}

func stringField(fields map[string]any, fallback string, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}

func intField(fields map[string]any, fallback int64, keys ...string) int64 {
	for _, key := range keys {
		if v, ok := fields[key].(float64); ok {
			return int64(v)
		}
	}
	return fallback
}
