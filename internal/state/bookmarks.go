package state

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	"github.com/gestalt-social/gestalt/internal/logger"
	"github.com/gestalt-social/gestalt/internal/storage"
)

// Bookmarks merges the two bookmark sources: the published kind-30001
// list visible to the network, and local slots that never leave the
// device. Private bookmarks live only in the local slot.
type Bookmarks struct {
	source domain.EventSource
	store  *storage.Store
	log    *zap.Logger
}

func NewBookmarks(source domain.EventSource, store *storage.Store) *Bookmarks {
	return &Bookmarks{
		source: source,
		store:  store,
		log:    logger.New("state.bookmarks"),
	}
}

// Public returns the union of pubkey's published bookmark list and the
// locally staged public bookmarks: published order first, then local
// entries not yet on the network.
func (b *Bookmarks) Public(ctx context.Context, pubkey string) ([]string, error) {
	published, err := b.published(ctx, pubkey)
	if err != nil {
		// Network trouble must not hide local bookmarks.
		b.log.Warn("Published bookmarks unavailable, using local slot only", zap.Error(err))
	}

	var local []string
	if _, err := b.store.Get(storage.SlotPublicBookmarks, &local); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(published)+len(local))
	out := make([]string, 0, len(published)+len(local))
	for _, id := range append(published, local...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Private returns the device-local bookmark ids. Nothing here is ever
// published.
func (b *Bookmarks) Private() ([]string, error) {
	var ids []string
	if _, err := b.store.Get(storage.SlotPrivateBookmarks, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// AddPrivate appends an event id to the private slot. Idempotent.
func (b *Bookmarks) AddPrivate(eventID string) error {
	return b.addToSlot(storage.SlotPrivateBookmarks, eventID)
}

// RemovePrivate drops an event id from the private slot.
func (b *Bookmarks) RemovePrivate(eventID string) error {
	return b.removeFromSlot(storage.SlotPrivateBookmarks, eventID)
}

// StagePublic records a public bookmark locally. The content layer calls
// this after the kind-30001 list publish is acknowledged, so local state
// never runs ahead of the network.
func (b *Bookmarks) StagePublic(eventID string) error {
	return b.addToSlot(storage.SlotPublicBookmarks, eventID)
}

// UnstagePublic drops a public bookmark from the local slot.
func (b *Bookmarks) UnstagePublic(eventID string) error {
	return b.removeFromSlot(storage.SlotPublicBookmarks, eventID)
}

func (b *Bookmarks) published(ctx context.Context, pubkey string) ([]string, error) {
	if !nostr.IsValid32ByteHex(pubkey) {
		return nil, nil
	}
	got, err := b.source.Query(ctx, events.BookmarksFilter(pubkey))
	if err != nil {
		return nil, err
	}
	// Not every relay honors #d filters; drop lists with another "d"
	// value before picking the latest, or a newer mute list would
	// shadow the bookmarks.
	candidates := got[:0]
	for _, evt := range got {
		if tag := evt.Tags.GetFirst([]string{"d"}); tag != nil && tag.Value() == events.BookmarkListIdentifier {
			candidates = append(candidates, evt)
		}
	}
	latest := Latest(candidates)
	if latest == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(latest.Tags))
	for _, tag := range latest.Tags {
		if len(tag) >= 2 && tag[0] == "e" && tag[1] != "" {
			ids = append(ids, tag[1])
		}
	}
	return ids, nil
}

func (b *Bookmarks) addToSlot(slot, eventID string) error {
	var ids []string
	if _, err := b.store.Get(slot, &ids); err != nil {
		return err
	}
	for _, id := range ids {
		if id == eventID {
			return nil
		}
	}
	return b.store.Set(slot, append(ids, eventID))
}

func (b *Bookmarks) removeFromSlot(slot, eventID string) error {
	var ids []string
	found, err := b.store.Get(slot, &ids)
	if err != nil || !found {
		return err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != eventID {
			out = append(out, id)
		}
	}
	return b.store.Set(slot, out)
}
