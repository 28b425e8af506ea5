package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestalt-social/gestalt/internal/config"
	"github.com/gestalt-social/gestalt/internal/constants"
	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	"github.com/gestalt-social/gestalt/internal/storage"
)

// fakeSource serves canned events through the EventSource contract.
type fakeSource struct {
	mu         sync.Mutex
	events     []*nostr.Event
	queryCount atomic.Int64
	queryDelay time.Duration
	queryErr   error
}

func (s *fakeSource) add(evts ...*nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evts...)
}

func (s *fakeSource) Publish(ctx context.Context, evt *nostr.Event) (domain.PublishResult, error) {
	s.add(evt)
	return domain.PublishResult{
		Acked:  true,
		Relays: []domain.RelayAck{{URL: "wss://fake.test", OK: true}},
	}, nil
}

func (s *fakeSource) Query(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	s.queryCount.Add(1)
	if s.queryDelay > 0 {
		time.Sleep(s.queryDelay)
	}
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
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
	done := make(chan struct{})
	close(done)
	return fakeSub{done: done}, nil
}

type fakeSub struct{ done chan struct{} }

func (s fakeSub) Cancel() {}
func (s fakeSub) Done() <-chan struct{} { return s.done }

func testPubkey(t *testing.T) string {
	t.Helper()
	pk, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	return pk
}

func profileEvent(pubkey, content string, at nostr.Timestamp) *nostr.Event {
	return &nostr.Event{
		ID:        fmt.Sprintf("%s-profile-%d", pubkey[:16], at),
		PubKey:    pubkey,
		Kind:      constants.KindProfileMetadata,
		CreatedAt: at,
		Content:   content,
		Tags:      nostr.Tags{},
	}
}

func contactsEvent(author string, at nostr.Timestamp, follows ...string) *nostr.Event {
	tags := nostr.Tags{}
	for _, pk := range follows {
		tags = append(tags, nostr.Tag{"p", pk})
	}
	return &nostr.Event{
		ID:        author[:24] + "contacts",
		PubKey:    author,
		Kind:      constants.KindContactList,
		CreatedAt: at,
		Tags:      tags,
	}
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(config.StorageConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProfileCacheFetchThenHit(t *testing.T) {
	pk := testPubkey(t)
	src := &fakeSource{}
	src.add(profileEvent(pk, `{"name":"alice"}`, nostr.Now()))

	cache := NewProfileCache(src, time.Minute)
	p, err := cache.Get(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)

	_, err = cache.Get(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.queryCount.Load(), "second Get must hit the cache")
}

func TestProfileCacheTTLExpiry(t *testing.T) {
	pk := testPubkey(t)
	src := &fakeSource{}
	src.add(profileEvent(pk, `{"name":"alice"}`, nostr.Now()))

	cache := NewProfileCache(src, 10*time.Millisecond)
	_, err := cache.Get(context.Background(), pk)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = cache.Get(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.queryCount.Load())
}

func TestProfileCacheLatestWins(t *testing.T) {
	pk := testPubkey(t)
	now := nostr.Now()
	src := &fakeSource{}
	src.add(
		profileEvent(pk, `{"name":"old"}`, now-100),
		profileEvent(pk, `{"name":"new"}`, now),
	)

	cache := NewProfileCache(src, time.Minute)
	p, err := cache.Get(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, "new", p.Name)
}

func TestProfileCacheSingleflight(t *testing.T) {
	pk := testPubkey(t)
	src := &fakeSource{queryDelay: 50 * time.Millisecond}
	src.add(profileEvent(pk, `{"name":"alice"}`, nostr.Now()))

	cache := NewProfileCache(src, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), pk)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), src.queryCount.Load(), "concurrent fetches must collapse")
}

func TestProfileCacheMissingProfileIsCached(t *testing.T) {
	pk := testPubkey(t)
	src := &fakeSource{}

	cache := NewProfileCache(src, time.Minute)
	p, err := cache.Get(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, events.Profile{}, p)

	_, err = cache.Get(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.queryCount.Load(), "absence must be cached too")
}

func TestProfileCacheForceRefresh(t *testing.T) {
	pk := testPubkey(t)
	src := &fakeSource{}
	src.add(profileEvent(pk, `{"name":"alice"}`, nostr.Now()))

	cache := NewProfileCache(src, time.Hour)
	_, err := cache.Get(context.Background(), pk)
	require.NoError(t, err)
	_, err = cache.ForceRefresh(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.queryCount.Load())
}

func TestProfileCacheObserve(t *testing.T) {
	pk := testPubkey(t)
	now := nostr.Now()
	cache := NewProfileCache(&fakeSource{}, time.Hour)

	cache.Observe(profileEvent(pk, `{"name":"first"}`, now))
	cache.Observe(profileEvent(pk, `{"name":"stale"}`, now-50))
	p, err := cache.Get(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name)

	cache.Observe(profileEvent(pk, `{"name":"updated"}`, now+50))
	p, err = cache.Get(context.Background(), pk)
	require.NoError(t, err)
	assert.Equal(t, "updated", p.Name)
}

func TestProfileCacheRejectsInvalidPubkey(t *testing.T) {
	cache := NewProfileCache(&fakeSource{}, time.Minute)
	_, err := cache.Get(context.Background(), "not-a-pubkey")
	assert.Error(t, err)
}

func TestFollowingParsesContactList(t *testing.T) {
	me, a, b := testPubkey(t), testPubkey(t), testPubkey(t)
	src := &fakeSource{}
	evt := contactsEvent(me, nostr.Now(), a, b, a) // duplicate a
	evt.Tags = append(evt.Tags, nostr.Tag{"p", "garbage"}, nostr.Tag{"t", "notapubkey"})
	src.add(evt)

	follows := NewFollows(src)
	got, err := follows.Following(context.Background(), me)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)

	ok, err := follows.IsFollowing(context.Background(), me, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFollowingOnlyLatestListCounts(t *testing.T) {
	me, a, b := testPubkey(t), testPubkey(t), testPubkey(t)
	now := nostr.Now()
	src := &fakeSource{}
	old := contactsEvent(me, now-100, a)
	old.ID = "older-list"
	cur := contactsEvent(me, now, b)
	cur.ID = "newer-list"
	src.add(old, cur)

	got, err := NewFollows(src).Following(context.Background(), me)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, got)
}

func TestFollowingNoContactList(t *testing.T) {
	got, err := NewFollows(&fakeSource{}).Following(context.Background(), testPubkey(t))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFollowersIgnoresStaleLists(t *testing.T) {
	me, fan, former := testPubkey(t), testPubkey(t), testPubkey(t)
	now := nostr.Now()
	src := &fakeSource{}
	src.add(contactsEvent(fan, now, me))
	// former followed once, then published a newer list without me.
	old := contactsEvent(former, now-100, me)
	old.ID = "former-old"
	cur := contactsEvent(former, now)
	cur.ID = "former-new"
	src.add(old, cur)

	got, err := NewFollows(src).Followers(context.Background(), me)
	require.NoError(t, err)
	assert.Equal(t, []string{fan}, got)
}

func TestBookmarksUnionPublishedAndLocal(t *testing.T) {
	me := testPubkey(t)
	src := &fakeSource{}
	src.add(&nostr.Event{
		ID:        "bookmark-list",
		PubKey:    me,
		Kind:      constants.KindBookmarkList,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"d", "bookmarks"}, {"e", "remote1"}, {"e", "remote2"}},
	})

	b := NewBookmarks(src, openTestStore(t))
	require.NoError(t, b.StagePublic("local1"))
	require.NoError(t, b.StagePublic("remote1")) // overlap with published

	got, err := b.Public(context.Background(), me)
	require.NoError(t, err)
	assert.Equal(t, []string{"remote1", "remote2", "local1"}, got)
}

func TestBookmarksIgnoreOtherListsOfSameKind(t *testing.T) {
	me := testPubkey(t)
	src := &fakeSource{}
	src.add(&nostr.Event{
		ID:        "bookmark-list",
		PubKey:    me,
		Kind:      constants.KindBookmarkList,
		CreatedAt: 100,
		Tags:      nostr.Tags{{"d", "bookmarks"}, {"e", "bookmarked-event"}},
	})
	// A newer kind-30001 list with a different "d" value, as another
	// client's mute list would be. It must not shadow the bookmarks.
	src.add(&nostr.Event{
		ID:        "mute-list",
		PubKey:    me,
		Kind:      constants.KindBookmarkList,
		CreatedAt: 200,
		Tags:      nostr.Tags{{"d", "mute"}, {"e", "muted-event"}},
	})

	got, err := NewBookmarks(src, openTestStore(t)).Public(context.Background(), me)
	require.NoError(t, err)
	assert.Equal(t, []string{"bookmarked-event"}, got)
}

func TestPrivateBookmarksStayLocal(t *testing.T) {
	b := NewBookmarks(&fakeSource{}, openTestStore(t))
	require.NoError(t, b.AddPrivate("secret1"))
	require.NoError(t, b.AddPrivate("secret1")) // idempotent
	require.NoError(t, b.AddPrivate("secret2"))

	got, err := b.Private()
	require.NoError(t, err)
	assert.Equal(t, []string{"secret1", "secret2"}, got)

	require.NoError(t, b.RemovePrivate("secret1"))
	got, err = b.Private()
	require.NoError(t, err)
	assert.Equal(t, []string{"secret2"}, got)
}

func TestFeedsSaveListDelete(t *testing.T) {
	feeds := NewFeeds(openTestStore(t))

	require.Error(t, feeds.Save(FeedDefinition{}), "unnamed feed must be rejected")
	require.NoError(t, feeds.Save(FeedDefinition{Name: "go", Hashtags: []string{"golang"}}))
	require.NoError(t, feeds.Save(FeedDefinition{Name: "friends", Authors: []string{testPubkey(t)}}))

	list, err := feeds.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "friends", list[0].Name)

	def, err := feeds.Get("go")
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, def.Hashtags)

	require.NoError(t, feeds.Delete("go"))
	_, err = feeds.Get("go")
	assert.Error(t, err)
}

func TestFeedDefinitionFilters(t *testing.T) {
	author := testPubkey(t)
	def := FeedDefinition{Name: "mixed", Authors: []string{author}, Hashtags: []string{"art"}}
	filters := def.Filters()
	require.Len(t, filters, 2)
	assert.Equal(t, []string{author}, filters[0].Authors)
	assert.Equal(t, []string{"art"}, filters[1].Tags["t"])

	empty := FeedDefinition{Name: "firehose"}
	filters = empty.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, []int{constants.KindTextNote}, filters[0].Kinds)
	assert.Equal(t, 50, filters[0].Limit)
}

func TestLatestTieBreak(t *testing.T) {
	ts := nostr.Now()
	a := &nostr.Event{ID: "bbb", CreatedAt: ts}
	b := &nostr.Event{ID: "aaa", CreatedAt: ts}
	assert.Equal(t, b, Latest([]*nostr.Event{a, b}))
	assert.Nil(t, Latest(nil))
}
