// Package social mutates the follow graph. Follow state lives in a single
// replaceable kind-3 event per identity, so every mutation is a
// read-modify-republish of the whole list.
package social

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/constants"
	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/logger"
	"github.com/gestalt-social/gestalt/internal/state"
	"github.com/gestalt-social/gestalt/internal/storage"
)

// Graph publishes follow-list mutations for the local identity.
type Graph struct {
	factory *events.Factory
	source  domain.EventSource
	follows *state.Follows
	store   *storage.Store
	log     *zap.Logger
}

func NewGraph(factory *events.Factory, source domain.EventSource, follows *state.Follows, store *storage.Store) *Graph {
	return &Graph{
		factory: factory,
		source:  source,
		follows: follows,
		store:   store,
		log:     logger.New("social"),
	}
}

// Follow appends target to the local identity's contact list and publishes
// the new list. Following an already-followed pubkey is a no-op. Existing
// tags, petnames and relay hints survive the rewrite; the local cache is
// updated only after a relay acknowledged the new list.
func (g *Graph) Follow(ctx context.Context, target string) error {
	return g.mutate(ctx, target, true)
}

// Unfollow removes target from the contact list. Unfollowing a pubkey not
// in the list is a no-op.
func (g *Graph) Unfollow(ctx context.Context, target string) error {
	return g.mutate(ctx, target, false)
}

// Following returns the local identity's current follow list, falling back
// to the last acknowledged list when relays are unreachable.
func (g *Graph) Following(ctx context.Context) ([]string, error) {
	self := g.factory.PublicKey()
	if self == "" {
		return nil, clienterrors.ErrNoIdentity
	}
	evt, err := g.follows.LatestContacts(ctx, self)
	if err == nil && evt != nil {
		return state.ContactPubkeys(evt), nil
	}

	var cached []string
	if found, cacheErr := g.store.Get(storage.SlotFollowsCache, &cached); cacheErr == nil && found {
		g.log.Debug("Serving follow list from local cache", zap.Int("count", len(cached)))
		return cached, nil
	}
	return nil, err
}

func (g *Graph) mutate(ctx context.Context, target string, add bool) error {
	self := g.factory.PublicKey()
	if self == "" {
		return clienterrors.ErrNoIdentity
	}
	if !nostr.IsValid32ByteHex(target) {
		return clienterrors.ValidationError("social.follow", "invalid target pubkey")
	}
	if target == self && add {
		return clienterrors.ValidationError("social.follow", "cannot follow yourself")
	}

	current, err := g.currentContacts(ctx, self)
	if err != nil {
		return err
	}

	tags, content := nostr.Tags{}, ""
	if current != nil {
		tags = current.Tags
		content = current.Content
	}

	has := hasContact(tags, target)
	if add && has {
		return nil
	}
	if !add && !has {
		return nil
	}

	if add {
		tags = append(tags, nostr.Tag{"p", target})
	} else {
		tags = withoutContact(tags, target)
	}

	evt := g.factory.Build(constants.KindContactList, content, tags)
	if err := g.factory.Finalize(ctx, evt); err != nil {
		return err
	}
	if _, err := g.source.Publish(ctx, evt); err != nil {
		return err
	}

	// The network accepted the list; now the cache may reflect it.
	if err := g.store.Set(storage.SlotFollowsCache, state.ContactPubkeys(evt)); err != nil {
		g.log.Warn("Follow cache update failed", zap.Error(err))
	}
	g.log.Info("Contact list updated",
		zap.String("target", logger.Abbrev(target)),
		zap.Bool("followed", add),
		zap.Int("total", len(state.ContactPubkeys(evt))))
	return nil
}

// currentContacts resolves the list the mutation starts from. When relays
// return nothing but a cached list exists, the cache seeds the rewrite:
// publishing a fresh list over a transient relay gap must not wipe the
// graph.
func (g *Graph) currentContacts(ctx context.Context, self string) (*nostr.Event, error) {
	evt, err := g.follows.LatestContacts(ctx, self)
	if err != nil {
		return nil, err
	}
	if evt != nil {
		return evt, nil
	}

	var cached []string
	found, err := g.store.Get(storage.SlotFollowsCache, &cached)
	if err != nil || !found || len(cached) == 0 {
		return nil, nil
	}
	tags := nostr.Tags{}
	for _, pk := range cached {
		tags = append(tags, nostr.Tag{"p", pk})
	}
	return &nostr.Event{Kind: constants.KindContactList, Tags: tags}, nil
}

func hasContact(tags nostr.Tags, pubkey string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "p" && tag[1] == pubkey {
			return true
		}
	}
	return false
}

func withoutContact(tags nostr.Tags, pubkey string) nostr.Tags {
	out := nostr.Tags{}
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "p" && tag[1] == pubkey {
			continue
		}
		out = append(out, tag)
	}
	return out
}
