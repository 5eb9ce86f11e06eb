package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCommitResponsePrefersServerFields(t *testing.T) {
	fallbackKey := "fallback-key"
	raw := json.RawMessage(`{
		"id": "att-1",
		"filename": "server-name.png",
		"size_bytes": 2048,
		"content_type": "image/png",
		"storage_key": "server-key",
		"download_url": "https://cdn.example.com/att-1"
	}`)

	att := mapCommitResponse(raw, "local-name.png", 1024, "application/octet-stream", &fallbackKey)

	assert.Equal(t, "att-1", att.ID)
	assert.Equal(t, "server-name.png", att.Name)
	assert.EqualValues(t, 2048, att.SizeBytes)
	require.NotNil(t, att.ContentType)
	assert.Equal(t, "image/png", *att.ContentType)
	require.NotNil(t, att.StorageKey)
	assert.Equal(t, "server-key", *att.StorageKey)
	require.NotNil(t, att.DownloadURL)
	assert.Equal(t, "https://cdn.example.com/att-1", *att.DownloadURL)
}

func TestMapCommitResponseAlternateNamesAndFallbacks(t *testing.T) {
	raw := json.RawMessage(`{"name": "alt.png", "size": 99, "key": "alt-key"}`)
	att := mapCommitResponse(raw, "local.png", 1, "image/png", nil)
	assert.Equal(t, "attachment", att.ID)
	assert.Equal(t, "alt.png", att.Name)
	assert.EqualValues(t, 99, att.SizeBytes)
	require.NotNil(t, att.StorageKey)
	assert.Equal(t, "alt-key", *att.StorageKey)

	fallbackKey := "presign-key"
	att = mapCommitResponse(json.RawMessage(`{}`), "local.png", 7, "image/png", &fallbackKey)
	assert.Equal(t, "local.png", att.Name)
	assert.EqualValues(t, 7, att.SizeBytes)
	require.NotNil(t, att.ContentType)
	assert.Equal(t, "image/png", *att.ContentType)
	require.NotNil(t, att.StorageKey)
	assert.Equal(t, "presign-key", *att.StorageKey)
	assert.Nil(t, att.DownloadURL)
}

func TestUploadAttachmentFlow(t *testing.T) {
	payload := []byte("png-bytes")
	var uploadedBody []byte

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/attachments/presign", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "shot.png", body["filename"])
		assert.EqualValues(t, len(payload), body["size_bytes"])
		writeTestJSON(w, http.StatusOK, map[string]any{
			"upload_id":  "up-1",
			"upload_url": "http://" + r.Host + "/blob/up-1",
			"key":        "objects/up-1",
		})
	})
	mux.HandleFunc("PUT /blob/up-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"), "binary upload carries no bearer token")
		uploadedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/v1/attachments/commit", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "up-1", body["upload_id"])
		assert.Equal(t, "msg-1", body["message_id"])
		writeTestJSON(w, http.StatusOK, map[string]any{"id": "att-1", "size_bytes": len(payload)})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	seedTokens(t, c, "access-1")

	att, err := c.UploadAttachment(context.Background(), AttachmentUpload{
		ChannelID:   "ch-1",
		MessageID:   "msg-1",
		Filename:    "shot.png",
		ContentType: "image/png",
		Bytes:       payload,
	})
	require.NoError(t, err)
	assert.Equal(t, "att-1", att.ID)
	assert.Equal(t, "shot.png", att.Name)
	assert.Equal(t, payload, uploadedBody)
}

func TestUploadAttachmentFailedPut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/attachments/presign", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{
			"upload_id":  "up-1",
			"upload_url": "http://" + r.Host + "/blob/up-1",
		})
	})
	mux.HandleFunc("PUT /blob/up-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("POST /api/v1/attachments/commit", func(w http.ResponseWriter, r *http.Request) {
		t.Error("commit must not run after a failed upload")
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	seedTokens(t, c, "access-1")

	_, err := c.UploadAttachment(context.Background(), AttachmentUpload{
		ChannelID: "ch-1", MessageID: "msg-1", Filename: "x", ContentType: "image/png", Bytes: []byte("x"),
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "upload_failed", apiErr.Code)
}
