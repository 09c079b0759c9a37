// Package bus publishes ledger domain events to the outbound message-bus
// transport. Deciding what downstream systems do with an event (send a
// notification, trigger a report refresh) is out of scope for the engine;
// the engine only guarantees it published one (SPEC_FULL.md §1).
package bus

import "context"

// Publisher is the external collaborator boundary every engine component
// that emits events depends on.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Noop discards every event. Used where a caller wires no real transport,
// in local development and in tests that don't assert on event delivery.
type Noop struct{}

func (Noop) Publish(ctx context.Context, topic string, payload any) error { return nil }

var _ Publisher = Noop{}
