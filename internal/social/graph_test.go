package social

import (
	"context"
	"errors"
	"sync"
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestalt-social/gestalt/internal/config"
	"github.com/gestalt-social/gestalt/internal/constants"
	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	"github.com/gestalt-social/gestalt/internal/keys"
	"github.com/gestalt-social/gestalt/internal/state"
	"github.com/gestalt-social/gestalt/internal/storage"
)

// fakeSource stores accepted events and serves them back through Query,
// honoring replaceable-event reads via filter matching.
type fakeSource struct {
	mu         sync.Mutex
	events     []*nostr.Event
	publishErr error
	queryErr   error
	published  int
}

func (s *fakeSource) Publish(ctx context.Context, evt *nostr.Event) (domain.PublishResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return domain.PublishResult{}, s.publishErr
	}
	// Relays keep only the newest replaceable event per author and kind.
	if constants.IsReplaceable(evt.Kind) {
		kept := s.events[:0]
		for _, e := range s.events {
			if e.Kind == evt.Kind && e.PubKey == evt.PubKey {
				continue
			}
			kept = append(kept, e)
		}
		s.events = kept
	}
	s.events = append(s.events, evt)
	s.published++
	return domain.PublishResult{Acked: true, Relays: []domain.RelayAck{{URL: "wss://fake.test", OK: true}}}, nil
}

func (s *fakeSource) Query(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []*nostr.Event
	for _, evt := range s.events {
		for i := range filters {
			if filters[i].Matches(evt) {
				out = append(out, evt)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeSource) Subscribe(ctx context.Context, filters nostr.Filters, onEvent func(*nostr.Event)) (domain.Subscription, error) {
	return nil, errors.New("not implemented")
}

func newTestGraph(t *testing.T) (*Graph, *fakeSource, *keys.LocalSigner) {
	t.Helper()
	signer, err := keys.Generate()
	require.NoError(t, err)
	src := &fakeSource{}
	store, err := storage.Open(config.StorageConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	factory := events.NewFactory(signer)
	return NewGraph(factory, src, state.NewFollows(src), store), src, signer
}

func TestFollowThenReadBack(t *testing.T) {
	g, src, _ := newTestGraph(t)
	target, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)

	require.NoError(t, g.Follow(context.Background(), target))
	assert.Equal(t, 1, src.published)

	got, err := g.Following(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{target}, got)
}

func TestFollowIsIdempotent(t *testing.T) {
	g, src, _ := newTestGraph(t)
	target, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)

	require.NoError(t, g.Follow(context.Background(), target))
	require.NoError(t, g.Follow(context.Background(), target))
	assert.Equal(t, 1, src.published, "second follow must not republish")
}

func TestUnfollowRoundTrip(t *testing.T) {
	g, _, _ := newTestGraph(t)
	a, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	b, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())

	require.NoError(t, g.Follow(context.Background(), a))
	require.NoError(t, g.Follow(context.Background(), b))
	require.NoError(t, g.Unfollow(context.Background(), a))

	got, err := g.Following(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{b}, got)
}

func TestUnfollowAbsentIsNoOp(t *testing.T) {
	g, src, _ := newTestGraph(t)
	target, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, g.Unfollow(context.Background(), target))
	assert.Equal(t, 0, src.published)
}

func TestFollowPreservesPetnamesAndForeignTags(t *testing.T) {
	g, src, signer := newTestGraph(t)
	existing, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	target, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())

	// A contact list published by another client, with a relay hint and
	// petname on the existing contact.
	prior := &nostr.Event{
		PubKey:    signer.PublicKey(),
		Kind:      constants.KindContactList,
		CreatedAt: nostr.Now() - 100,
		Content:   `{"wss://relay.example.com":{"read":true,"write":true}}`,
		Tags:      nostr.Tags{{"p", existing, "wss://relay.example.com", "bestie"}},
	}
	require.NoError(t, prior.Sign(signer.SecretHex()))
	src.events = append(src.events, prior)

	require.NoError(t, g.Follow(context.Background(), target))

	published := src.events[len(src.events)-1]
	assert.Equal(t, prior.Content, published.Content)
	require.Len(t, published.Tags, 2)
	assert.Equal(t, nostr.Tag{"p", existing, "wss://relay.example.com", "bestie"}, published.Tags[0])
	assert.Equal(t, nostr.Tag{"p", target}, published.Tags[1])
}

func TestFollowRejectsSelfAndGarbage(t *testing.T) {
	g, src, signer := newTestGraph(t)
	assert.Error(t, g.Follow(context.Background(), signer.PublicKey()))
	assert.Error(t, g.Follow(context.Background(), "nonsense"))
	assert.Equal(t, 0, src.published)
}

func TestFollowFailedPublishLeavesNoTrace(t *testing.T) {
	g, src, _ := newTestGraph(t)
	target, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())

	src.publishErr = errors.New("relays down")
	require.Error(t, g.Follow(context.Background(), target))

	src.publishErr = nil
	got, err := g.Following(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got, "failed publish must not leak into local state")
}

func TestFollowingFallsBackToCacheWhenOffline(t *testing.T) {
	g, src, _ := newTestGraph(t)
	target, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, g.Follow(context.Background(), target))

	src.queryErr = errors.New("relays down")
	got, err := g.Following(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{target}, got)
}

func TestFollowDoesNotWipeListOnEmptyRelayRead(t *testing.T) {
	g, src, _ := newTestGraph(t)
	a, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	b, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, g.Follow(context.Background(), a))

	// Relays lose history but stay writable; the cached list must seed
	// the next mutation.
	src.mu.Lock()
	src.events = nil
	src.mu.Unlock()

	require.NoError(t, g.Follow(context.Background(), b))
	published := src.events[len(src.events)-1]
	pks := state.ContactPubkeys(published)
	assert.ElementsMatch(t, []string{a, b}, pks)
}
