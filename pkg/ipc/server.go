// Package ipc hosts the daemon's local HTTP + WebSocket API. The frontend
// talks to this surface only; it never reaches the remote Galynx server
// directly.
package ipc

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/galynx/galynx/pkg/bus"
	"github.com/galynx/galynx/pkg/client"
)

// Config controls the IPC server behavior.
type Config struct {
	BindAddress    string
	AllowedOrigins []string
	Version        string
}

// Server hosts the JSON/HTTP + WebSocket API for the frontend.
type Server struct {
	cfg        Config
	session    *client.Client
	bus        bus.Bus
	hub        *Hub
	httpServer *http.Server
	logger     *log.Logger

	mu         sync.Mutex
	listenAddr string
}

// Addr reports the bound listen address once Start has opened the listener;
// empty before that. Useful when binding to an ephemeral port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// NewServer constructs a server around the process session.
func NewServer(cfg Config, session *client.Client, eventBus bus.Bus) *Server {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1:4777"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}
	}
	return &Server{
		cfg:     cfg,
		session: session,
		bus:     eventBus,
		hub:     NewHub(),
		logger:  log.New(os.Stdout, "[ipc] ", log.LstdFlags),
	}
}

func (s *Server) routes() *chi.Mux {
	router := chi.NewRouter()
	router.Use(s.corsMiddleware)
	router.Use(s.metricsMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Get("/events", s.handleEvents)

	router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/me", s.handleMe)

		r.Get("/channels", s.handleListChannels)
		r.Post("/channels", s.handleCreateChannel)
		r.Delete("/channels/{channelID}", s.handleDeleteChannel)
		r.Get("/channels/{channelID}/messages", s.handleListMessages)
		r.Post("/channels/{channelID}/messages", s.handleSendMessage)

		r.Patch("/messages/{messageID}", s.handleEditMessage)
		r.Delete("/messages/{messageID}", s.handleDeleteMessage)

		r.Get("/threads/{rootID}", s.handleGetThread)
		r.Get("/threads/{rootID}/replies", s.handleListThreadReplies)
		r.Post("/threads/{rootID}/replies", s.handleSendThreadReply)

		r.Post("/attachments", s.handleUploadAttachment)

		r.Get("/settings/api-base", s.handleGetAPIBase)
		r.Put("/settings/api-base", s.handleSetAPIBase)

		r.Post("/realtime/connect", s.handleRealtimeConnect)
		r.Post("/realtime/disconnect", s.handleRealtimeDisconnect)
	})

	return router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	router := s.routes()

	// Every bus event reaches connected frontend sockets through the hub.
	sub, err := s.bus.Subscribe(ctx, "*", func(evt *bus.Event) {
		s.hub.Broadcast(Event{
			Subject:   evt.Subject,
			Payload:   evt.Data,
			Timestamp: evt.Timestamp,
		})
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	listener, err := net.Listen("tcp", s.cfg.BindAddress)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listenAddr = listener.Addr().String()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Printf("serving IPC on %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.CloseAll()
	return s.httpServer.Shutdown(shutdownCtx)
}
