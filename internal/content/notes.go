// Package content publishes user-generated events: notes, replies,
// reactions, reposts, deletions, encrypted direct messages, profile
// updates, marketplace listings, channels and bookmark lists. Every
// operation follows the same shape: build, sign, publish, and only then
// touch local state.
package content

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
)

// SecretProvider exposes the raw secret key for NIP-04 key agreement.
// Only local signers can provide it; DM operations fail without one.
type SecretProvider interface {
	SecretHex() string
}

// Service is the write side of the client.
type Service struct {
	factory   *events.Factory
	source    domain.EventSource
	secret    SecretProvider
	bookmarks *state.Bookmarks
	log       *zap.Logger
}

func NewService(factory *events.Factory, source domain.EventSource, secret SecretProvider, bookmarks *state.Bookmarks) *Service {
	return &Service{
		factory:   factory,
		source:    source,
		secret:    secret,
		bookmarks: bookmarks,
		log:       logger.New("content"),
	}
}

// publish finalizes and sends evt, returning it with id and signature set.
func (s *Service) publish(ctx context.Context, evt *nostr.Event) (*nostr.Event, error) {
	if err := s.factory.Finalize(ctx, evt); err != nil {
		return nil, err
	}
	if _, err := s.source.Publish(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// PublishNote posts a kind-1 text note. Hashtags in the content become
// "t" tags so the note lands in tag searches.
func (s *Service) PublishNote(ctx context.Context, content string) (*nostr.Event, error) {
	if content == "" {
		return nil, clienterrors.ValidationError("content.note", "empty note")
	}
	evt := s.factory.Build(constants.KindTextNote, content, events.HashtagTags(content))
	return s.publish(ctx, evt)
}

// Reply posts a kind-1 note referencing parent with a marked "e" tag and
// credits the parent author with a "p" tag.
func (s *Service) Reply(ctx context.Context, parent *nostr.Event, content string) (*nostr.Event, error) {
	if parent == nil || parent.ID == "" {
		return nil, clienterrors.ValidationError("content.reply", "missing parent event")
	}
	if content == "" {
		return nil, clienterrors.ValidationError("content.reply", "empty reply")
	}
	tags := nostr.Tags{
		{"e", parent.ID, "", "reply"},
		{"p", parent.PubKey},
	}
	tags = append(tags, events.HashtagTags(content)...)
	evt := s.factory.Build(constants.KindTextNote, content, tags)
	return s.publish(ctx, evt)
}

// React publishes a kind-7 reaction to target. An empty reaction defaults
// to "+", the conventional like.
func (s *Service) React(ctx context.Context, target *nostr.Event, reaction string) (*nostr.Event, error) {
	if target == nil || target.ID == "" {
		return nil, clienterrors.ValidationError("content.react", "missing target event")
	}
	if reaction == "" {
		reaction = "+"
	}
	evt := s.factory.Build(constants.KindReaction, reaction, nostr.Tags{
		{"e", target.ID},
		{"p", target.PubKey},
	})
	return s.publish(ctx, evt)
}

// Repost publishes a kind-6 repost of target.
func (s *Service) Repost(ctx context.Context, target *nostr.Event) (*nostr.Event, error) {
	if target == nil || target.ID == "" {
		return nil, clienterrors.ValidationError("content.repost", "missing target event")
	}
	evt := s.factory.Build(constants.KindRepost, "", nostr.Tags{
		{"e", target.ID},
		{"p", target.PubKey},
	})
	return s.publish(ctx, evt)
}

// RequestDeletion publishes a kind-5 deletion request for the given event
// ids. Relays and clients may honor it; nothing guarantees removal, which
// is why this is a request.
func (s *Service) RequestDeletion(ctx context.Context, reason string, eventIDs ...string) (*nostr.Event, error) {
	if len(eventIDs) == 0 {
		return nil, clienterrors.ValidationError("content.delete", "no event ids")
	}
	tags := nostr.Tags{}
	for _, id := range eventIDs {
		if id == "" {
			return nil, clienterrors.ValidationError("content.delete", "empty event id")
		}
		tags = append(tags, nostr.Tag{"e", id})
	}
	evt := s.factory.Build(constants.KindDeletionRequest, reason, tags)
	s.log.Info("Deletion requested", zap.Int("events", len(eventIDs)))
	return s.publish(ctx, evt)
}

// UpdateProfile publishes the kind-0 metadata document, replacing whatever
// the network currently has for this identity.
func (s *Service) UpdateProfile(ctx context.Context, profile events.Profile) (*nostr.Event, error) {
	content, err := events.EncodeProfile(profile)
	if err != nil {
		return nil, clienterrors.ValidationError("content.profile", err.Error())
	}
	evt := s.factory.Build(constants.KindProfileMetadata, content, nil)
	return s.publish(ctx, evt)
}
