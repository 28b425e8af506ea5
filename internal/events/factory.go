// Package events builds, validates and finalizes outgoing Nostr events, and
// provides the canonical filter constructors the rest of the client queries
// with.
package events

import (
	"context"
	"regexp"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/domain"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/logger"
)

// maxContentSize bounds outgoing content; most relays reject anything much
// larger than this.
const maxContentSize = 64 * 1024

var hashtagRe = regexp.MustCompile(`#(\w+)`)

// Factory stamps outgoing events with the local identity and signs them.
type Factory struct {
	signer domain.Signer
	log    *zap.Logger
	now    func() nostr.Timestamp
}

func NewFactory(signer domain.Signer) *Factory {
	return &Factory{
		signer: signer,
		log:    logger.New("events"),
		now:    nostr.Now,
	}
}

// PublicKey returns the hex public key of the configured identity.
func (f *Factory) PublicKey() string {
	if f.signer == nil {
		return ""
	}
	return f.signer.PublicKey()
}

// Build assembles an unsigned event: kind, content and tags from the
// caller, pubkey and created_at stamped here. Tags defaults to an empty
// list so the serialized form is canonical.
func (f *Factory) Build(kind int, content string, tags nostr.Tags) *nostr.Event {
	if tags == nil {
		tags = nostr.Tags{}
	}
	return &nostr.Event{
		Kind:      kind,
		CreatedAt: f.now(),
		Content:   content,
		Tags:      tags,
		PubKey:    f.PublicKey(),
	}
}

// Finalize validates and signs evt in place. It fails before any network
// traffic happens: a declined or broken signer aborts the whole operation.
func (f *Factory) Finalize(ctx context.Context, evt *nostr.Event) error {
	if f.signer == nil {
		return clienterrors.ErrNoIdentity
	}
	if err := ValidateOutgoing(evt); err != nil {
		return err
	}
	start := time.Now()
	if err := f.signer.Sign(ctx, evt); err != nil {
		f.log.Warn("Signer rejected event",
			zap.Int("kind", evt.Kind),
			zap.Error(err))
		return clienterrors.SigningError("events.finalize", err).WithKind(evt.Kind)
	}
	f.log.Debug("Event finalized",
		zap.String("event_id", logger.Abbrev(evt.ID)),
		zap.Int("kind", evt.Kind),
		zap.Duration("sign_duration", time.Since(start)))
	return nil
}

// ValidateOutgoing rejects events no relay would accept, before signing.
func ValidateOutgoing(evt *nostr.Event) error {
	if evt == nil {
		return clienterrors.ValidationError("events.validate", "nil event")
	}
	if evt.Kind < 0 || evt.Kind > 65535 {
		return clienterrors.ValidationError("events.validate", "kind out of range").WithKind(evt.Kind)
	}
	if len(evt.Content) > maxContentSize {
		return clienterrors.ValidationError("events.validate", "content exceeds 64 KiB").WithKind(evt.Kind)
	}
	for _, tag := range evt.Tags {
		if len(tag) == 0 || tag[0] == "" {
			return clienterrors.ValidationError("events.validate", "empty tag").WithKind(evt.Kind)
		}
	}
	return nil
}

// ExtractHashtags returns the bare hashtag words found in content, in
// order of first appearance, without duplicates.
func ExtractHashtags(content string) []string {
	matches := hashtagRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := m[1]
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// HashtagTags converts content hashtags into "t" tags for a kind-1 note.
func HashtagTags(content string) nostr.Tags {
	tags := nostr.Tags{}
	for _, tag := range ExtractHashtags(content) {
		tags = append(tags, nostr.Tag{"t", tag})
	}
	return tags
}
