package events

import (
	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/gestalt-social/gestalt/internal/constants"
)

// Canonical filter constructors. Everything above the pool builds its
// queries through these so the shapes sent to relays stay consistent.

const defaultHistoryLimit = 50

// BookmarkListIdentifier is the "d" value of the bookmark list. Kind 30001
// is replaceable per "d" value, so queries and publishes must agree on it
// or another client's list (a mute list, say) shadows the bookmarks.
const BookmarkListIdentifier = "bookmarks"

// PostOptions narrows a feed query.
type PostOptions struct {
	Authors []string
	Limit   int
	Since   *nostr.Timestamp
}

// ProfileFilter fetches kind-0 metadata for a set of pubkeys.
func ProfileFilter(pubkeys ...string) nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{constants.KindProfileMetadata},
		Authors: pubkeys,
	}
}

// PostFilter fetches text notes, optionally narrowed by author and time.
func PostFilter(opts PostOptions) nostr.Filter {
	f := nostr.Filter{
		Kinds: []int{constants.KindTextNote},
		Limit: opts.Limit,
	}
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if len(opts.Authors) > 0 {
		f.Authors = opts.Authors
	}
	if opts.Since != nil {
		f.Since = opts.Since
	}
	return f
}

// ContactsFilter fetches the latest follow list published by pubkey.
func ContactsFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{constants.KindContactList},
		Authors: []string{pubkey},
	}
}

// FollowersFilter fetches follow lists that reference pubkey, i.e. the
// accounts following it.
func FollowersFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Kinds: []int{constants.KindContactList},
		Tags:  nostr.TagMap{"p": []string{pubkey}},
	}
}

// DirectMessageFilter fetches encrypted DMs. With other set it narrows to
// messages the local identity sent to other; otherwise it fetches every
// DM addressed to pubkey.
func DirectMessageFilter(pubkey, other string) nostr.Filter {
	f := nostr.Filter{
		Kinds: []int{constants.KindEncryptedDM},
	}
	if other != "" {
		f.Authors = []string{pubkey}
		f.Tags = nostr.TagMap{"p": []string{other}}
	} else {
		f.Tags = nostr.TagMap{"p": []string{pubkey}}
	}
	return f
}

// ConversationFilters fetches both directions of a DM thread.
func ConversationFilters(self, other string) nostr.Filters {
	return nostr.Filters{
		DirectMessageFilter(self, other),
		DirectMessageFilter(other, self),
	}
}

// HashtagFilter fetches notes and long-form articles carrying a "t" tag.
func HashtagFilter(tag string, limit int) nostr.Filter {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return nostr.Filter{
		Kinds: []int{constants.KindTextNote, constants.KindLongFormContent},
		Tags:  nostr.TagMap{"t": []string{tag}},
		Limit: limit,
	}
}

// ContentSearchFilter fetches a window of recent events for client-side
// matching. Relays in this protocol have no text search, so the query is
// kind-scoped only and matching happens locally.
func ContentSearchFilter(kinds []int, limit int) nostr.Filter {
	if len(kinds) == 0 {
		kinds = []int{constants.KindTextNote, constants.KindLongFormContent}
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return nostr.Filter{Kinds: kinds, Limit: limit}
}

// MarketplaceFilter fetches product listings.
func MarketplaceFilter(limit int) nostr.Filter {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return nostr.Filter{
		Kinds: []int{constants.KindMarketplaceStall},
		Limit: limit,
	}
}

// ChannelsFilter fetches channel creation events.
func ChannelsFilter(limit int) nostr.Filter {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return nostr.Filter{
		Kinds: []int{constants.KindChannelCreation},
		Limit: limit,
	}
}

// BookmarksFilter fetches the latest bookmark list published by pubkey.
func BookmarksFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{constants.KindBookmarkList},
		Authors: []string{pubkey},
		Tags:    nostr.TagMap{"d": []string{BookmarkListIdentifier}},
	}
}
