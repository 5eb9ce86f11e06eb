package bus

import "context"

// Tee publishes to a primary bus and mirrors every publish to secondaries.
// Subscriptions are served by the primary only; the daemon uses this to
// bridge local events out to NATS without moving the IPC hub off the
// in-memory bus.
type Tee struct {
	primary     Bus
	secondaries []Bus
}

// NewTee creates a Tee over the given buses.
func NewTee(primary Bus, secondaries ...Bus) *Tee {
	return &Tee{primary: primary, secondaries: secondaries}
}

func (t *Tee) Publish(ctx context.Context, subject string, data []byte) error {
	if err := t.primary.Publish(ctx, subject, data); err != nil {
		return err
	}
	// Mirror failures do not fail the local publish.
	for _, b := range t.secondaries {
		_ = b.Publish(ctx, subject, data)
	}
	return nil
}

func (t *Tee) Subscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error) {
	return t.primary.Subscribe(ctx, pattern, handler)
}

func (t *Tee) Close() error {
	err := t.primary.Close()
	for _, b := range t.secondaries {
		if cerr := b.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
