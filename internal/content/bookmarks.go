package content

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/gestalt-social/gestalt/internal/constants"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/events"
)

// Bookmark adds eventID to the public bookmark list: the whole kind-30001
// list is republished with the new entry, and the local slot is updated
// only after a relay acknowledged it. An already-bookmarked id is a no-op
// returning (nil, nil): no event exists because nothing was published.
func (s *Service) Bookmark(ctx context.Context, eventID string) (*nostr.Event, error) {
	if eventID == "" {
		return nil, clienterrors.ValidationError("content.bookmark", "empty event id")
	}
	current, err := s.bookmarks.Public(ctx, s.factory.PublicKey())
	if err != nil {
		return nil, err
	}
	for _, id := range current {
		if id == eventID {
			return nil, nil // already bookmarked
		}
	}

	evt, err := s.publishBookmarkList(ctx, append(current, eventID))
	if err != nil {
		return nil, err
	}
	if err := s.bookmarks.StagePublic(eventID); err != nil {
		return nil, err
	}
	return evt, nil
}

// Unbookmark removes eventID from the public list and republishes it.
// Removing an id that was never bookmarked is a no-op returning (nil, nil).
func (s *Service) Unbookmark(ctx context.Context, eventID string) (*nostr.Event, error) {
	current, err := s.bookmarks.Public(ctx, s.factory.PublicKey())
	if err != nil {
		return nil, err
	}
	remaining := make([]string, 0, len(current))
	for _, id := range current {
		if id != eventID {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == len(current) {
		return nil, nil // was not bookmarked
	}

	evt, err := s.publishBookmarkList(ctx, remaining)
	if err != nil {
		return nil, err
	}
	if err := s.bookmarks.UnstagePublic(eventID); err != nil {
		return nil, err
	}
	return evt, nil
}

func (s *Service) publishBookmarkList(ctx context.Context, ids []string) (*nostr.Event, error) {
	tags := nostr.Tags{{"d", events.BookmarkListIdentifier}}
	for _, id := range ids {
		tags = append(tags, nostr.Tag{"e", id})
	}
	evt := s.factory.Build(constants.KindBookmarkList, "", tags)
	return s.publish(ctx, evt)
}
