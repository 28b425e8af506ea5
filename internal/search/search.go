// Package search implements client-side search. Plain relays have no text
// index, so searching means pulling a window of recent events and matching
// locally; only hashtag search can lean on relay-side "t" tag filtering.
package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/events"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/logger"
	"github.com/gestalt-social/gestalt/internal/state"
)

const defaultWindow = 200

// Options narrows a content search.
type Options struct {
	Kinds []int
	Limit int
}

// ProfileMatch pairs a matched profile with its owner.
type ProfileMatch struct {
	PubKey  string
	Profile events.Profile
}

type Service struct {
	source domain.EventSource
	window int
	log    *zap.Logger
}

// New builds a search service. window is how many recent events one search
// pulls for local matching.
func New(source domain.EventSource, window int) *Service {
	if window <= 0 {
		window = defaultWindow
	}
	return &Service{
		source: source,
		window: window,
		log:    logger.New("search"),
	}
}

// Content returns recent events whose body contains query,
// case-insensitively, newest first.
func (s *Service) Content(ctx context.Context, query string, opts Options) ([]*nostr.Event, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, clienterrors.ValidationError("search.content", "empty query")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	window, err := s.source.Query(ctx, events.ContentSearchFilter(opts.Kinds, s.window))
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var out []*nostr.Event
	for _, evt := range window {
		if strings.Contains(strings.ToLower(evt.Content), needle) {
			out = append(out, evt)
			if len(out) >= limit {
				break
			}
		}
	}
	s.log.Debug("Content search done",
		zap.Int("window", len(window)),
		zap.Int("matches", len(out)))
	return out, nil
}

// Profiles returns identities whose metadata mentions query: name, display
// name, about, or verification address. Only each author's newest profile
// is considered.
func (s *Service) Profiles(ctx context.Context, query string, limit int) ([]ProfileMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, clienterrors.ValidationError("search.profiles", "empty query")
	}
	if limit <= 0 {
		limit = 50
	}

	window, err := s.source.Query(ctx, nostr.Filter{Kinds: []int{0}, Limit: s.window})
	if err != nil {
		return nil, err
	}

	latestByAuthor := make(map[string]*nostr.Event)
	for _, evt := range window {
		if cur := latestByAuthor[evt.PubKey]; cur == nil || state.Latest([]*nostr.Event{cur, evt}) == evt {
			latestByAuthor[evt.PubKey] = evt
		}
	}

	needle := strings.ToLower(query)
	var out []ProfileMatch
	for pubkey, evt := range latestByAuthor {
		profile := events.ParseProfile(evt)
		if profileMatches(profile, needle) {
			out = append(out, ProfileMatch{PubKey: pubkey, Profile: profile})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PubKey < out[j].PubKey })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Hashtag searches by tag. Relays answer "t" tag filters directly; since
// many posts carry the hashtag only in their text, a sparse tag result is
// topped up from a content window scan.
func (s *Service) Hashtag(ctx context.Context, tag string, limit int) ([]*nostr.Event, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return nil, clienterrors.ValidationError("search.hashtag", "empty hashtag")
	}
	if limit <= 0 {
		limit = 50
	}

	tagged, err := s.source.Query(ctx, events.HashtagFilter(tag, limit))
	if err != nil {
		return nil, err
	}
	if len(tagged) >= limit {
		return tagged[:limit], nil
	}

	window, err := s.source.Query(ctx, events.ContentSearchFilter(nil, s.window))
	if err != nil {
		// The tagged results still stand.
		s.log.Debug("Hashtag fallback scan failed", zap.Error(err))
		return tagged, nil
	}

	seen := make(map[string]struct{}, len(tagged))
	for _, evt := range tagged {
		seen[evt.ID] = struct{}{}
	}
	re := regexp.MustCompile(`(?i)#` + regexp.QuoteMeta(tag) + `\b`)
	out := tagged
	for _, evt := range window {
		if _, dup := seen[evt.ID]; dup {
			continue
		}
		if re.MatchString(evt.Content) {
			seen[evt.ID] = struct{}{}
			out = append(out, evt)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func profileMatches(p events.Profile, needle string) bool {
	for _, field := range []string{p.Name, p.DisplayName, p.About, p.NIP05} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
