package bus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus implements Bus using NATS. NATS subjects are dot-delimited, so the
// colon-namespaced local subjects ("realtime:status") are published as single
// tokens under the configured prefix; trailing-"*" patterns subscribe to the
// whole prefix and filter locally.
type NATSBus struct {
	conn   *nats.Conn
	config Config
	closed atomic.Bool
}

// NewNATSBus creates a new NATS-backed bus.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSBus{
		conn:   conn,
		config: cfg,
	}, nil
}

// NewNATSBusFromConn creates a NATSBus from an existing connection.
// Useful for testing with an embedded NATS server.
func NewNATSBusFromConn(conn *nats.Conn) *NATSBus {
	return &NATSBus{
		conn:   conn,
		config: DefaultConfig(),
	}
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.conn.Publish(natsSubject(b.config.Name, subject), data)
}

func (b *NATSBus) Subscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	natsPattern, filtered := natsSubscribePattern(b.config.Name, pattern)

	sub, err := b.conn.Subscribe(natsPattern, func(msg *nats.Msg) {
		subject := localSubject(b.config.Name, msg.Subject)
		if filtered && !matchPattern(pattern, subject) {
			return
		}
		handler(&Event{
			Subject:   subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	return &natsSubscription{sub: sub, pattern: pattern}, nil
}

func (b *NATSBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.conn.Close()
	return nil
}

type natsSubscription struct {
	sub     *nats.Subscription
	pattern string
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Pattern() string {
	return s.pattern
}

// natsSubscribePattern maps a local pattern to a NATS subscription subject.
// Local subjects are single NATS tokens, so a trailing-"*" prefix pattern
// cannot be expressed as a NATS wildcard; those subscriptions take the whole
// prefix stream (">") and report filtered=true so the caller re-applies
// matchPattern per message.
func natsSubscribePattern(prefix, pattern string) (subject string, filtered bool) {
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		return natsSubject(prefix, "") + ">", true
	}
	return natsSubject(prefix, pattern), false
}

func natsSubject(prefix, subject string) string {
	if prefix == "" {
		prefix = "galynxd"
	}
	return prefix + "." + subject
}

func localSubject(prefix, subject string) string {
	if prefix == "" {
		prefix = "galynxd"
	}
	return strings.TrimPrefix(subject, prefix+".")
}
