package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/galynx/galynx/pkg/bus"
	"github.com/galynx/galynx/pkg/client"
	"github.com/galynx/galynx/pkg/securestore"
)

// newTestServer wires a full Server around an in-memory bus and a session
// client pointed at the given upstream API handler.
func newTestServer(t *testing.T, upstream http.Handler) (*Server, *bus.MemoryBus) {
	t.Helper()

	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)

	store, err := securestore.Open(filepath.Join(t.TempDir(), "secure.db"), "test-seed")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	memory := bus.NewMemoryBus()
	t.Cleanup(func() { memory.Close() })

	session := client.New(client.Options{
		Store:           store,
		Bus:             memory,
		APIBaseOverride: api.URL,
	})
	return NewServer(Config{BindAddress: "127.0.0.1:0", Version: "test"}, session, memory), memory
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestErrorsUseFlatEnvelope(t *testing.T) {
	// Signed out, so /api/me fails before reaching the upstream.
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be reached")
	}))

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var dto client.ErrorDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, client.ErrorDTO{
		Status:  http.StatusUnauthorized,
		Error:   "unauthorized",
		Message: "You must sign in again.",
	}, dto)
}

func TestLoginRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":       "access-1",
			"refresh_token":      "refresh-1",
			"access_expires_at":  time.Now().Add(time.Hour).Unix(),
			"refresh_expires_at": time.Now().Add(24 * time.Hour).Unix(),
		})
	})
	mux.HandleFunc("GET /api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.User{ID: "u1", Name: "Ada"})
	})

	srv, _ := newTestServer(t, mux)
	router := srv.routes()

	body := bytes.NewBufferString(`{"email":"a@b.c","password":"hunter2"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var session client.AuthSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "access-1", session.AccessToken)
	assert.Equal(t, "Ada", session.User.Name)

	// The session is now usable for authenticated routes.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBadRequestBody(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{nope")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var dto client.ErrorDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "bad_request", dto.Error)
}

func TestSettingsAPIBase(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	router := srv.routes()

	body := bytes.NewBufferString(`{"api_base":"https://chat.example.com"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/settings/api-base", body))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings/api-base", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "https://chat.example.com/api/v1", got["api_base"])
}

func TestEventsStreamsBusTraffic(t *testing.T) {
	srv, memory := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	// Wait for the listener, then dial the bound ephemeral port.
	var conn *websocket.Conn
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		var err error
		dialCtx, dialCancel := context.WithTimeout(ctx, time.Second)
		conn, _, err = websocket.Dial(dialCtx, "ws://"+addr+"/events", nil)
		dialCancel()
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NotNil(t, conn, "could not dial events socket")
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, memory.Publish(ctx, "realtime:status", []byte(`{"status":"online"}`)))

	readCtx, readCancel := context.WithTimeout(ctx, 3*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "realtime:status", event.Subject)
	assert.JSONEq(t, `{"status":"online"}`, string(event.Payload))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub()
	c := &hubClient{send: make(chan Event, 1)}
	hub.clients[c] = struct{}{}

	require.True(t, c.enqueue(Event{Subject: "a"}))
	require.False(t, c.enqueue(Event{Subject: "b"}), "full buffer means the client is dropped")

	hub.Broadcast(Event{Subject: "c"})
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, hub.ClientCount())
}
