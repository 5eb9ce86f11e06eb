// Package realtime maintains the daemon's WebSocket subscription to the
// Galynx server. One Loop owns one connection lifecycle: it dials, reads
// frames onto the event bus, and reconnects with exponential backoff until
// stopped or until the session is conclusively unusable.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/galynx/galynx/pkg/bus"
	"github.com/galynx/galynx/pkg/logging"
)

const (
	// SubjectStatus carries {"status": "reconnecting"|"online"|"offline"}.
	SubjectStatus = "realtime:status"
	// SubjectEvent carries every raw server frame.
	SubjectEvent = "realtime:event"
	// SubjectPrefix prefixes the per-type re-emission of typed frames.
	SubjectPrefix = "realtime:"

	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultDialTimeout    = 15 * time.Second
)

// Options configures a Loop. BaseURL and AccessToken are functions so every
// attempt observes the current API base and the freshest token.
type Options struct {
	BaseURL     func() string
	AccessToken func(ctx context.Context) (string, error)
	Bus         bus.Bus
	Logger      *logging.Logger

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DialTimeout    time.Duration
}

// Loop is a running realtime connection task. Stop is safe to call more than
// once and from any goroutine; Done closes when the task has fully exited.
type Loop struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	stop   sync.Once
	done   chan struct{}
}

// Start launches the reconnect loop in its own goroutine.
func Start(opts Options) *Loop {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Stop requests shutdown. It returns immediately; wait on Done for the final
// offline transition.
func (l *Loop) Stop() {
	l.stop.Do(l.cancel)
}

// Done closes once the loop has exited, whether by Stop or terminally.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// EndpointURL derives the ws endpoint from an API base by rewriting the
// scheme and appending /ws. An input without a recognized scheme gets ws://.
func EndpointURL(apiBase string) string {
	base := strings.TrimRight(apiBase, "/")
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		return "wss://" + rest + "/ws"
	}
	if rest, ok := strings.CutPrefix(base, "http://"); ok {
		return "ws://" + rest + "/ws"
	}
	return "ws://" + base + "/ws"
}

// validateEndpoint rejects URLs no WebSocket handshake could be built from.
// url.Parse alone accepts nearly anything, so the scheme and host are
// checked explicitly.
func validateEndpoint(wsURL string) error {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func (l *Loop) run() {
	defer close(l.done)

	backoff := l.opts.InitialBackoff

	for {
		l.emitStatus("reconnecting")

		token, err := l.opts.AccessToken(l.ctx)
		if err != nil {
			// No usable session. Reconnecting cannot help, so the loop
			// ends here rather than spinning against a dead bundle.
			l.opts.Logger.Warn(logging.CategoryRealtime, "no_session",
				"realtime loop ending, no usable token", map[string]any{"error": err.Error()})
			l.emitStatus("offline")
			return
		}

		wsURL := EndpointURL(l.opts.BaseURL())
		if err := validateEndpoint(wsURL); err != nil {
			// A handshake that can never be constructed is not a
			// transient failure; reconnecting cannot fix it.
			l.opts.Logger.Warn(logging.CategoryRealtime, "bad_endpoint",
				"realtime loop ending, endpoint URL invalid", map[string]any{"url": wsURL, "error": err.Error()})
			l.emitStatus("offline")
			return
		}

		if connected := l.connectOnce(wsURL, token); connected {
			backoff = l.opts.InitialBackoff
		}

		select {
		case <-l.ctx.Done():
			l.emitStatus("offline")
			return
		case <-time.After(backoff):
			backoff *= 2
			if backoff > l.opts.MaxBackoff {
				backoff = l.opts.MaxBackoff
			}
		}
	}
}

// connectOnce dials and, on success, reads frames until the connection drops
// or the loop is stopped. It reports whether a connection was established so
// the caller can reset backoff.
func (l *Loop) connectOnce(wsURL, token string) bool {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(l.ctx, l.opts.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	cancel()
	if err != nil {
		if l.ctx.Err() == nil {
			metricConnects.WithLabelValues("error").Inc()
			l.opts.Logger.Warn(logging.CategoryRealtime, "connect_failed",
				"websocket connect failed", map[string]any{"url": wsURL, "error": err.Error()})
		}
		return false
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	metricConnects.WithLabelValues("success").Inc()
	metricConnected.Set(1)
	defer metricConnected.Set(0)
	l.emitStatus("online")
	l.opts.Logger.Info(logging.CategoryRealtime, "connected", "websocket connected", map[string]any{"url": wsURL})

	for {
		msgType, data, err := conn.Read(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				l.opts.Logger.Warn(logging.CategoryRealtime, "read_failed",
					"websocket read failed", map[string]any{"error": err.Error()})
			}
			return true
		}
		if msgType != websocket.MessageText {
			continue
		}
		l.dispatchFrame(data)
	}
}

func (l *Loop) dispatchFrame(data []byte) {
	if !json.Valid(data) {
		return
	}
	metricEvents.Inc()
	l.publish(SubjectEvent, data)

	var typed struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &typed); err == nil && typed.EventType != "" {
		l.publish(SubjectPrefix+typed.EventType, data)
	}
}

func (l *Loop) emitStatus(status string) {
	payload, _ := json.Marshal(map[string]string{"status": status})
	l.publish(SubjectStatus, payload)
}

func (l *Loop) publish(subject string, data []byte) {
	if l.opts.Bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.opts.Bus.Publish(ctx, subject, data); err != nil {
		l.opts.Logger.Warn(logging.CategoryRealtime, "publish_failed",
			"could not publish realtime event", map[string]any{"subject": subject, "error": err.Error()})
	}
}
