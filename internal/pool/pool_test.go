package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestalt-social/gestalt/internal/config"
	"github.com/gestalt-social/gestalt/internal/constants"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
)

func testClientConfig() config.ClientConfig {
	return config.ClientConfig{
		QueryTimeout:       2 * time.Second,
		PublishTimeout:     2 * time.Second,
		DialTimeout:        time.Second,
		PingInterval:       0, // no keepalive needed in-process
		SubscriptionBuffer: 64,
		SeenCacheSize:      1000,
		MaxDialsPerMinute:  600,
	}
}

func newTestPool(t *testing.T, urls ...string) *Pool {
	t.Helper()
	p := New(testClientConfig(), urls)
	t.Cleanup(p.Close)
	return p
}

func signedNote(t *testing.T, content string, createdAt nostr.Timestamp) *nostr.Event {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	evt := &nostr.Event{
		Kind:      constants.KindTextNote,
		CreatedAt: createdAt,
		Content:   content,
		Tags:      nostr.Tags{},
	}
	require.NoError(t, evt.Sign(sk))
	return evt
}

func TestPublishAckedByFirstRelay(t *testing.T) {
	r1 := newFakeRelay(t)
	r2 := newFakeRelay(t)
	p := newTestPool(t, r1.url(), r2.url())

	evt := signedNote(t, "hello", nostr.Now())
	res, err := p.Publish(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, res.Acked)
	require.NotEmpty(t, res.Relays)
	assert.True(t, res.Relays[len(res.Relays)-1].OK)
}

func TestPublishAllRejected(t *testing.T) {
	r1 := newFakeRelay(t)
	r1.rejectPublish = true
	p := newTestPool(t, r1.url())

	res, err := p.Publish(context.Background(), signedNote(t, "nope", nostr.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, clienterrors.ErrPublishNotAcknowledged))
	assert.False(t, res.Acked)
	require.Len(t, res.Relays, 1)
	assert.False(t, res.Relays[0].OK)
	assert.Contains(t, res.Relays[0].Reason, "blocked")
}

func TestPublishNoRelaysConfigured(t *testing.T) {
	p := newTestPool(t)
	_, err := p.Publish(context.Background(), signedNote(t, "void", nostr.Now()))
	assert.True(t, errors.Is(err, clienterrors.ErrNoRelays))
}

func TestPublishAllUnreachable(t *testing.T) {
	p := newTestPool(t, "ws://127.0.0.1:1")
	res, err := p.Publish(context.Background(), signedNote(t, "down", nostr.Now()))
	require.Error(t, err)
	assert.False(t, res.Acked)
	require.Len(t, res.Relays, 1)
	assert.Error(t, res.Relays[0].Err)
}

func TestQueryMergesAndDedupes(t *testing.T) {
	r1 := newFakeRelay(t)
	r2 := newFakeRelay(t)

	shared := signedNote(t, "on both relays", nostr.Now()-10)
	only1 := signedNote(t, "only on r1", nostr.Now()-5)
	only2 := signedNote(t, "only on r2", nostr.Now())
	r1.seed(shared, only1)
	r2.seed(shared, only2)

	p := newTestPool(t, r1.url(), r2.url())
	got, err := p.Query(context.Background(), nostr.Filter{Kinds: []int{constants.KindTextNote}})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first.
	assert.Equal(t, only2.ID, got[0].ID)
	assert.Equal(t, only1.ID, got[1].ID)
	assert.Equal(t, shared.ID, got[2].ID)
}

func TestQueryFilterApplied(t *testing.T) {
	r := newFakeRelay(t)
	note := signedNote(t, "a note", nostr.Now())
	r.seed(note)

	p := newTestPool(t, r.url())
	got, err := p.Query(context.Background(), nostr.Filter{Kinds: []int{constants.KindReaction}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryAllRelaysUnreachable(t *testing.T) {
	p := newTestPool(t, "ws://127.0.0.1:1", "ws://127.0.0.1:2")
	got, err := p.Query(context.Background(), nostr.Filter{Kinds: []int{constants.KindTextNote}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryPartialResultsWhenOneRelayDown(t *testing.T) {
	r := newFakeRelay(t)
	note := signedNote(t, "still here", nostr.Now())
	r.seed(note)

	p := newTestPool(t, r.url(), "ws://127.0.0.1:1")
	got, err := p.Query(context.Background(), nostr.Filter{Kinds: []int{constants.KindTextNote}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, note.ID, got[0].ID)
}

func TestQueryDropsInvalidSignature(t *testing.T) {
	r := newFakeRelay(t)
	evt := signedNote(t, "authentic", nostr.Now())
	tampered := *evt
	tampered.Content = "forged"
	r.seed(&tampered)

	p := newTestPool(t, r.url())
	got, err := p.Query(context.Background(), nostr.Filter{Kinds: []int{constants.KindTextNote}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubscribeDispatchesOncePerEvent(t *testing.T) {
	r1 := newFakeRelay(t)
	r2 := newFakeRelay(t)
	p := newTestPool(t, r1.url(), r2.url())

	var count atomic.Int64
	received := make(chan string, 16)
	sub, err := p.Subscribe(context.Background(),
		nostr.Filters{{Kinds: []int{constants.KindTextNote}}},
		func(evt *nostr.Event) {
			count.Add(1)
			received <- evt.ID
		})
	require.NoError(t, err)
	defer sub.Cancel()

	evt := signedNote(t, "live", nostr.Now())
	r1.broadcast(evt)
	r2.broadcast(evt)

	select {
	case id := <-received:
		assert.Equal(t, evt.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("event never dispatched")
	}

	// The second relay's copy must be suppressed.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load())
}

func TestSubscribeCancelStopsCallbacks(t *testing.T) {
	r := newFakeRelay(t)
	p := newTestPool(t, r.url())

	var count atomic.Int64
	sub, err := p.Subscribe(context.Background(),
		nostr.Filters{{Kinds: []int{constants.KindTextNote}}},
		func(*nostr.Event) { count.Add(1) })
	require.NoError(t, err)

	sub.Cancel()
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed after Cancel")
	}

	r.broadcast(signedNote(t, "after cancel", nostr.Now()))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(0), count.Load())

	// Idempotent.
	sub.Cancel()
}

func TestSubscribeAllRelaysUnreachable(t *testing.T) {
	p := newTestPool(t, "ws://127.0.0.1:1")
	_, err := p.Subscribe(context.Background(),
		nostr.Filters{{Kinds: []int{constants.KindTextNote}}},
		func(*nostr.Event) {})
	assert.True(t, errors.Is(err, clienterrors.ErrAllRelaysFailed))
}

func TestAddRemoveRelay(t *testing.T) {
	p := newTestPool(t, "wss://relay.example.com")

	require.Error(t, p.AddRelay("https://not-a-relay.example.com"))
	require.NoError(t, p.AddRelay("wss://second.example.com/"))
	require.NoError(t, p.AddRelay("wss://second.example.com")) // duplicate is a no-op
	assert.Equal(t, []string{"wss://relay.example.com", "wss://second.example.com"}, p.Relays())

	p.RemoveRelay("wss://relay.example.com")
	assert.Equal(t, []string{"wss://second.example.com"}, p.Relays())

	status := p.Status()
	require.Len(t, status, 1)
	assert.False(t, status[0].Connected)
}

func TestStatusReflectsConnection(t *testing.T) {
	r := newFakeRelay(t)
	p := newTestPool(t, r.url())

	_, err := p.Query(context.Background(), nostr.Filter{Kinds: []int{constants.KindTextNote}})
	require.NoError(t, err)

	status := p.Status()
	require.Len(t, status, 1)
	assert.True(t, status[0].Connected)
	assert.False(t, status[0].LastActivity.IsZero())
}

func TestSortNewestFirstTieBreak(t *testing.T) {
	ts := nostr.Now()
	a := &nostr.Event{ID: "bbb", CreatedAt: ts}
	b := &nostr.Event{ID: "aaa", CreatedAt: ts}
	c := &nostr.Event{ID: "zzz", CreatedAt: ts - 100}
	events := []*nostr.Event{a, c, b}
	sortNewestFirst(events)
	assert.Equal(t, []*nostr.Event{b, a, c}, events)
}

func TestSeenCacheEviction(t *testing.T) {
	c := newSeenCache(2)
	assert.False(t, c.seen("one"))
	assert.True(t, c.seen("one"))
	assert.False(t, c.seen("two"))
	assert.False(t, c.seen("three")) // evicts "one" from the exact window
	assert.True(t, c.seen("two"))
	assert.True(t, c.seen("three"))
}
