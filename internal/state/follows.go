package state

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/logger"
)

// Follows reads the social graph from kind-3 contact lists. Contact lists
// are replaceable: only each author's newest list counts.
type Follows struct {
	source domain.EventSource
	log    *zap.Logger
}

func NewFollows(source domain.EventSource) *Follows {
	return &Follows{source: source, log: logger.New("state.follows")}
}

// LatestContacts fetches the winning contact list event for pubkey, or nil
// when none was ever published.
func (f *Follows) LatestContacts(ctx context.Context, pubkey string) (*nostr.Event, error) {
	if !nostr.IsValid32ByteHex(pubkey) {
		return nil, clienterrors.ValidationError("state.follows", "invalid pubkey")
	}
	got, err := f.source.Query(ctx, events.ContactsFilter(pubkey))
	if err != nil {
		return nil, err
	}
	return Latest(got), nil
}

// Following returns the pubkeys pubkey follows, in list order, deduplicated.
func (f *Follows) Following(ctx context.Context, pubkey string) ([]string, error) {
	evt, err := f.LatestContacts(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if evt == nil {
		return nil, nil
	}
	return ContactPubkeys(evt), nil
}

// IsFollowing reports whether follower's latest contact list references
// target.
func (f *Follows) IsFollowing(ctx context.Context, follower, target string) (bool, error) {
	following, err := f.Following(ctx, follower)
	if err != nil {
		return false, err
	}
	for _, pk := range following {
		if pk == target {
			return true, nil
		}
	}
	return false, nil
}

// Followers returns the pubkeys whose current contact list references
// pubkey. A stale list that once referenced pubkey does not count: only
// each author's newest list is consulted.
func (f *Follows) Followers(ctx context.Context, pubkey string) ([]string, error) {
	if !nostr.IsValid32ByteHex(pubkey) {
		return nil, clienterrors.ValidationError("state.follows", "invalid pubkey")
	}
	got, err := f.source.Query(ctx, events.FollowersFilter(pubkey))
	if err != nil {
		return nil, err
	}

	latestByAuthor := make(map[string]*nostr.Event)
	for _, evt := range got {
		cur := latestByAuthor[evt.PubKey]
		if cur == nil || Latest([]*nostr.Event{cur, evt}) == evt {
			latestByAuthor[evt.PubKey] = evt
		}
	}

	followers := make([]string, 0, len(latestByAuthor))
	for author, evt := range latestByAuthor {
		for _, pk := range ContactPubkeys(evt) {
			if pk == pubkey {
				followers = append(followers, author)
				break
			}
		}
	}
	f.log.Debug("Followers resolved",
		zap.String("pubkey", logger.Abbrev(pubkey)),
		zap.Int("count", len(followers)))
	return followers, nil
}

// ContactPubkeys extracts the followed pubkeys from a contact list's "p"
// tags, preserving order and dropping duplicates and malformed entries.
func ContactPubkeys(evt *nostr.Event) []string {
	if evt == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(evt.Tags))
	out := make([]string, 0, len(evt.Tags))
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "p" || !nostr.IsValid32ByteHex(tag[1]) {
			continue
		}
		if _, dup := seen[tag[1]]; dup {
			continue
		}
		seen[tag[1]] = struct{}{}
		out = append(out, tag[1])
	}
	return out
}
