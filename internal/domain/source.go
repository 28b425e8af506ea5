package domain

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"
)

// RelayAck is the per-relay outcome of a publish.
type RelayAck struct {
	URL    string
	OK     bool
	Reason string
	Err    error
}

// PublishResult aggregates publish outcomes. Acked is true as soon as one
// relay accepted the event; the remaining entries may report failure and the
// publish still counts as successful.
type PublishResult struct {
	Acked  bool
	Relays []RelayAck
}

// Subscription is a live, cancelable query. Cancel is idempotent and
// guarantees no callback invocation after it returns.
type Subscription interface {
	Cancel()
	Done() <-chan struct{}
}

// EventSource abstracts the relay pool for the derived-state, social,
// content and search layers, so they can be unit-tested against a fake.
type EventSource interface {
	// Publish sends a signed event to every configured relay and resolves
	// on the first acknowledgment.
	Publish(ctx context.Context, evt *nostr.Event) (PublishResult, error)

	// Query opens transient subscriptions, collects until every relay
	// reports end-of-stored-events or the context/timeout fires, and
	// returns the id-deduplicated merge sorted newest first. Partial
	// results are valid results.
	Query(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error)

	// Subscribe opens a streaming subscription with one fixed callback.
	Subscribe(ctx context.Context, filters nostr.Filters, onEvent func(*nostr.Event)) (Subscription, error)
}
