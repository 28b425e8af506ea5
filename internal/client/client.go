// Package client assembles the Gestalt data layer into one façade: relay
// pool, identity, derived state, social graph, content operations and
// search behind a single handle.
package client

import (
	"context"
	"net/http"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/config"
	"github.com/gestalt-social/gestalt/internal/content"
	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	"github.com/gestalt-social/gestalt/internal/pool"
	"github.com/gestalt-social/gestalt/internal/search"
	"github.com/gestalt-social/gestalt/internal/social"
	"github.com/gestalt-social/gestalt/internal/state"
	"github.com/gestalt-social/gestalt/internal/storage"
)

// Client is the top-level handle an application embeds.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	log    *zap.Logger

	signer  domain.Signer
	store   *storage.Store
	pool    *pool.Pool
	factory *events.Factory

	profiles  *state.ProfileCache
	follows   *state.Follows
	bookmarks *state.Bookmarks
	feeds     *state.Feeds

	graph   *social.Graph
	content *content.Service
	search  *search.Service

	metricsSrv *http.Server
}

// New builds a fully wired client from configuration.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	b := NewBuilder(ctx, cfg)
	if err := b.BuildIdentity(); err != nil {
		b.cancel()
		return nil, err
	}
	if err := b.BuildStorage(); err != nil {
		b.cancel()
		return nil, err
	}
	if err := b.BuildPool(); err != nil {
		b.cancel()
		return nil, err
	}
	b.BuildState()
	b.BuildServices()
	b.BuildMetrics()
	return b.Build()
}

// Close releases every resource: subscriptions die with the pool, the
// store flushes, the metrics endpoint stops.
func (c *Client) Close() error {
	c.cancel()
	c.pool.Close()
	if c.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = c.metricsSrv.Shutdown(shutdownCtx)
	}
	err := c.store.Close()
	c.log.Info("Client closed")
	return err
}

// PublicKey returns the local identity's hex pubkey, or "" when read-only.
func (c *Client) PublicKey() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.PublicKey()
}

// --- relay management ---

func (c *Client) Relays() []string { return c.pool.Relays() }
func (c *Client) RelayStatus() []pool.RelayStatus { return c.pool.Status() }

// AddRelay adds a relay at runtime and persists the new list.
func (c *Client) AddRelay(url string) error {
	if err := c.pool.AddRelay(url); err != nil {
		return err
	}
	return c.store.Set(storage.SlotRelays, c.pool.Relays())
}

// RemoveRelay drops a relay at runtime and persists the new list.
func (c *Client) RemoveRelay(url string) error {
	c.pool.RemoveRelay(url)
	return c.store.Set(storage.SlotRelays, c.pool.Relays())
}

// --- raw event access ---

// Query runs an ad-hoc query across the pool.
func (c *Client) Query(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	return c.pool.Query(ctx, filters...)
}

// Subscribe opens a streaming subscription. Profile events flowing
// through it keep the profile cache warm as a side effect.
func (c *Client) Subscribe(ctx context.Context, filters nostr.Filters, onEvent func(*nostr.Event)) (domain.Subscription, error) {
	return c.pool.Subscribe(ctx, filters, func(evt *nostr.Event) {
		c.profiles.Observe(evt)
		onEvent(evt)
	})
}

// --- feeds ---

// Feed fetches recent text notes, optionally scoped to authors.
func (c *Client) Feed(ctx context.Context, opts events.PostOptions) ([]*nostr.Event, error) {
	return c.pool.Query(ctx, events.PostFilter(opts))
}

// FollowingFeed fetches recent notes from the accounts the local identity
// follows.
func (c *Client) FollowingFeed(ctx context.Context, limit int) ([]*nostr.Event, error) {
	following, err := c.graph.Following(ctx)
	if err != nil {
		return nil, err
	}
	if len(following) == 0 {
		return nil, nil
	}
	return c.pool.Query(ctx, events.PostFilter(events.PostOptions{Authors: following, Limit: limit}))
}

// CustomFeed fetches the timeline for a saved feed definition.
func (c *Client) CustomFeed(ctx context.Context, name string) ([]*nostr.Event, error) {
	def, err := c.feeds.Get(name)
	if err != nil {
		return nil, err
	}
	return c.pool.Query(ctx, def.Filters()...)
}

func (c *Client) SaveFeed(def state.FeedDefinition) error { return c.feeds.Save(def) }
func (c *Client) DeleteFeed(name string) error { return c.feeds.Delete(name) }
func (c *Client) ListFeeds() ([]state.FeedDefinition, error) { return c.feeds.List() }

// --- profiles and graph ---

func (c *Client) Profile(ctx context.Context, pubkey string) (events.Profile, error) {
	return c.profiles.Get(ctx, pubkey)
}

func (c *Client) RefreshProfile(ctx context.Context, pubkey string) (events.Profile, error) {
	return c.profiles.ForceRefresh(ctx, pubkey)
}

func (c *Client) Follow(ctx context.Context, pubkey string) error { return c.graph.Follow(ctx, pubkey) }
func (c *Client) Unfollow(ctx context.Context, pubkey string) error { return c.graph.Unfollow(ctx, pubkey) }
func (c *Client) Following(ctx context.Context) ([]string, error) { return c.graph.Following(ctx) }

func (c *Client) FollowersOf(ctx context.Context, pubkey string) ([]string, error) {
	return c.follows.Followers(ctx, pubkey)
}

func (c *Client) FollowingOf(ctx context.Context, pubkey string) ([]string, error) {
	return c.follows.Following(ctx, pubkey)
}

// --- content operations ---

func (c *Client) PublishNote(ctx context.Context, body string) (*nostr.Event, error) {
	return c.content.PublishNote(ctx, body)
}

func (c *Client) Reply(ctx context.Context, parent *nostr.Event, body string) (*nostr.Event, error) {
	return c.content.Reply(ctx, parent, body)
}

func (c *Client) React(ctx context.Context, target *nostr.Event, reaction string) (*nostr.Event, error) {
	return c.content.React(ctx, target, reaction)
}

func (c *Client) Repost(ctx context.Context, target *nostr.Event) (*nostr.Event, error) {
	return c.content.Repost(ctx, target)
}

func (c *Client) RequestDeletion(ctx context.Context, reason string, ids ...string) (*nostr.Event, error) {
	return c.content.RequestDeletion(ctx, reason, ids...)
}

func (c *Client) UpdateProfile(ctx context.Context, profile events.Profile) (*nostr.Event, error) {
	evt, err := c.content.UpdateProfile(ctx, profile)
	if err == nil {
		c.profiles.Invalidate(c.PublicKey())
	}
	return evt, err
}

func (c *Client) SendDirectMessage(ctx context.Context, recipient, body string) (*nostr.Event, error) {
	return c.content.SendDirectMessage(ctx, recipient, body)
}

func (c *Client) DecryptDirectMessage(evt *nostr.Event) (string, error) {
	return c.content.DecryptDirectMessage(evt)
}

// Conversation fetches both directions of a DM thread, newest first.
func (c *Client) Conversation(ctx context.Context, other string) ([]*nostr.Event, error) {
	return c.pool.Query(ctx, events.ConversationFilters(c.PublicKey(), other)...)
}

func (c *Client) CreateListing(ctx context.Context, listing content.Listing) (*nostr.Event, error) {
	return c.content.CreateListing(ctx, listing)
}

func (c *Client) Listings(ctx context.Context, limit int) ([]*nostr.Event, error) {
	return c.pool.Query(ctx, events.MarketplaceFilter(limit))
}

func (c *Client) CreateChannel(ctx context.Context, info content.ChannelInfo) (*nostr.Event, error) {
	return c.content.CreateChannel(ctx, info)
}

func (c *Client) SendChannelMessage(ctx context.Context, channelID, body string) (*nostr.Event, error) {
	return c.content.SendChannelMessage(ctx, channelID, body)
}

func (c *Client) Channels(ctx context.Context, limit int) ([]*nostr.Event, error) {
	return c.pool.Query(ctx, events.ChannelsFilter(limit))
}

// --- bookmarks ---

// Bookmark adds eventID to the public bookmark list. It returns the
// republished list event, or (nil, nil) when the id was already
// bookmarked and nothing was published.
func (c *Client) Bookmark(ctx context.Context, eventID string) (*nostr.Event, error) {
	return c.content.Bookmark(ctx, eventID)
}

// Unbookmark removes eventID from the public bookmark list. It returns
// (nil, nil) when the id was not bookmarked and nothing was published.
func (c *Client) Unbookmark(ctx context.Context, eventID string) (*nostr.Event, error) {
	return c.content.Unbookmark(ctx, eventID)
}

func (c *Client) PublicBookmarks(ctx context.Context) ([]string, error) {
	return c.bookmarks.Public(ctx, c.PublicKey())
}

func (c *Client) PrivateBookmarks() ([]string, error) { return c.bookmarks.Private() }
func (c *Client) AddPrivateBookmark(id string) error { return c.bookmarks.AddPrivate(id) }
func (c *Client) RemovePrivateBookmark(id string) error { return c.bookmarks.RemovePrivate(id) }

// --- search ---

func (c *Client) SearchContent(ctx context.Context, query string, opts search.Options) ([]*nostr.Event, error) {
	return c.search.Content(ctx, query, opts)
}

func (c *Client) SearchProfiles(ctx context.Context, query string, limit int) ([]search.ProfileMatch, error) {
	return c.search.Profiles(ctx, query, limit)
}

func (c *Client) SearchHashtag(ctx context.Context, tag string, limit int) ([]*nostr.Event, error) {
	return c.search.Hashtag(ctx, tag, limit)
}
