// Package bus provides the local event fan-out between the session core and
// frontend subscribers. The default implementation is in-memory; a NATS
// implementation exists for external subscribers.
package bus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// Bus is the core publish/subscribe interface.
// Implementations must be safe for concurrent use.
type Bus interface {
	// Publish sends an event to all subscribers of the given subject.
	// Returns immediately; does not wait for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for events on the given subject pattern.
	// The handler is called in a separate goroutine for each event.
	// A pattern is an exact subject, or a trailing "*" prefix match:
	// "realtime:*" matches "realtime:status" and "realtime:message_created";
	// "*" alone matches everything.
	Subscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Handler processes incoming events.
type Handler func(evt *Event)

// Event represents an event delivered by the bus.
type Event struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops receiving events and cleans up resources.
	Unsubscribe() error

	// Pattern returns the subject pattern this subscription is for.
	Pattern() string
}

// Config holds configuration for creating a NATS-backed Bus.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is a client identifier for debugging/monitoring.
	Name string

	// Timeout is the default timeout for connect operations.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "galynxd",
		Timeout: 30 * time.Second,
	}
}

// matchPattern reports whether a subject matches a subscription pattern.
func matchPattern(pattern, subject string) bool {
	if pattern == "*" {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(subject) >= len(prefix) && subject[:len(prefix)] == prefix
	}
	return pattern == subject
}
