// Package state maintains the derived views a social client renders from:
// profiles, follow relationships, bookmarks and custom feeds. Everything
// here is computed from relay events plus local slots; nothing in this
// package talks to the network directly, it goes through domain.EventSource.
package state

import (
	"context"
	"sync"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/logger"
	"github.com/gestalt-social/gestalt/internal/metrics"
)

const profileCacheName = "profiles"

type profileEntry struct {
	profile   events.Profile
	eventTime nostr.Timestamp
	fetchedAt time.Time
}

// ProfileCache serves kind-0 metadata with a TTL and collapses concurrent
// fetches for the same pubkey into one relay query. A pubkey with no
// published profile caches as an empty profile, so repeated misses do not
// hammer the relays.
type ProfileCache struct {
	source domain.EventSource
	ttl    time.Duration
	log    *zap.Logger

	sf      singleflight.Group
	mu      sync.RWMutex
	entries map[string]profileEntry
}

// NewProfileCache builds a cache. ttl <= 0 disables expiry: entries are
// then refreshed only via ForceRefresh or Observe.
func NewProfileCache(source domain.EventSource, ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		source:  source,
		ttl:     ttl,
		log:     logger.New("state.profiles"),
		entries: make(map[string]profileEntry),
	}
}

// Get returns the profile for pubkey, fetching from relays when the cached
// entry is absent or stale.
func (c *ProfileCache) Get(ctx context.Context, pubkey string) (events.Profile, error) {
	if !nostr.IsValid32ByteHex(pubkey) {
		return events.Profile{}, clienterrors.ValidationError("state.profile", "invalid pubkey")
	}

	c.mu.RLock()
	entry, ok := c.entries[pubkey]
	c.mu.RUnlock()
	if ok && !c.stale(entry) {
		metrics.CacheHits.WithLabelValues(profileCacheName).Inc()
		return entry.profile, nil
	}
	metrics.CacheMisses.WithLabelValues(profileCacheName).Inc()
	return c.fetch(ctx, pubkey)
}

// ForceRefresh bypasses the TTL and refetches from relays.
func (c *ProfileCache) ForceRefresh(ctx context.Context, pubkey string) (events.Profile, error) {
	if !nostr.IsValid32ByteHex(pubkey) {
		return events.Profile{}, clienterrors.ValidationError("state.profile", "invalid pubkey")
	}
	return c.fetch(ctx, pubkey)
}

// Observe feeds a kind-0 event seen on a live subscription into the cache,
// keeping the newest-wins rule.
func (c *ProfileCache) Observe(evt *nostr.Event) {
	if evt == nil || evt.Kind != 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[evt.PubKey]; ok && evt.CreatedAt <= cur.eventTime {
		return
	}
	c.entries[evt.PubKey] = profileEntry{
		profile:   events.ParseProfile(evt),
		eventTime: evt.CreatedAt,
		fetchedAt: time.Now(),
	}
}

// Invalidate drops the cached entry for pubkey.
func (c *ProfileCache) Invalidate(pubkey string) {
	c.mu.Lock()
	delete(c.entries, pubkey)
	c.mu.Unlock()
}

func (c *ProfileCache) stale(entry profileEntry) bool {
	if c.ttl <= 0 {
		return false
	}
	return time.Since(entry.fetchedAt) > c.ttl
}

func (c *ProfileCache) fetch(ctx context.Context, pubkey string) (events.Profile, error) {
	v, err, shared := c.sf.Do(pubkey, func() (any, error) {
		got, err := c.source.Query(ctx, events.ProfileFilter(pubkey))
		if err != nil {
			return nil, err
		}
		latest := Latest(got)

		entry := profileEntry{fetchedAt: time.Now()}
		if latest != nil {
			entry.profile = events.ParseProfile(latest)
			entry.eventTime = latest.CreatedAt
		} else {
			c.log.Debug("No profile published", zap.String("pubkey", logger.Abbrev(pubkey)))
		}
		c.mu.Lock()
		c.entries[pubkey] = entry
		c.mu.Unlock()
		return entry.profile, nil
	})
	if shared {
		metrics.SingleflightShared.Inc()
	}
	if err != nil {
		return events.Profile{}, err
	}
	return v.(events.Profile), nil
}

// Latest picks the winning event under replaceable-event semantics: the
// greatest created_at, ties broken toward the lexically smaller id.
func Latest(evts []*nostr.Event) *nostr.Event {
	var best *nostr.Event
	for _, evt := range evts {
		switch {
		case best == nil:
			best = evt
		case evt.CreatedAt > best.CreatedAt:
			best = evt
		case evt.CreatedAt == best.CreatedAt && evt.ID < best.ID:
			best = evt
		}
	}
	return best
}
