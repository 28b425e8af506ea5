package state

import (
	"fmt"
	"sort"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/gestalt-social/gestalt/internal/constants"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/storage"
)

// FeedDefinition is a saved custom feed: a named combination of authors,
// hashtags and kinds the client can query as one timeline.
type FeedDefinition struct {
	Name     string   `json:"name"`
	Authors  []string `json:"authors,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	Kinds    []int    `json:"kinds,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// Filters expands the definition into the relay filters for one fetch.
// Authors and hashtags become separate filters so either match qualifies.
func (d FeedDefinition) Filters() nostr.Filters {
	kinds := d.Kinds
	if len(kinds) == 0 {
		kinds = []int{constants.KindTextNote}
	}
	limit := d.Limit
	if limit <= 0 {
		limit = 50
	}

	var filters nostr.Filters
	if len(d.Authors) > 0 {
		filters = append(filters, nostr.Filter{Kinds: kinds, Authors: d.Authors, Limit: limit})
	}
	if len(d.Hashtags) > 0 {
		filters = append(filters, nostr.Filter{
			Kinds: kinds,
			Tags:  nostr.TagMap{"t": d.Hashtags},
			Limit: limit,
		})
	}
	if len(filters) == 0 {
		filters = append(filters, nostr.Filter{Kinds: kinds, Limit: limit})
	}
	return filters
}

// Feeds persists custom feed definitions in a local slot, keyed by name.
type Feeds struct {
	store *storage.Store
}

func NewFeeds(store *storage.Store) *Feeds {
	return &Feeds{store: store}
}

// List returns all saved feeds sorted by name.
func (f *Feeds) List() ([]FeedDefinition, error) {
	defs, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make([]FeedDefinition, 0, len(defs))
	for _, def := range defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns one feed by name.
func (f *Feeds) Get(name string) (FeedDefinition, error) {
	defs, err := f.load()
	if err != nil {
		return FeedDefinition{}, err
	}
	def, ok := defs[name]
	if !ok {
		return FeedDefinition{}, fmt.Errorf("feed %q: %w", name, clienterrors.ErrNotFound)
	}
	return def, nil
}

// Save creates or replaces a feed definition.
func (f *Feeds) Save(def FeedDefinition) error {
	if def.Name == "" {
		return clienterrors.ValidationError("state.feeds", "feed needs a name")
	}
	defs, err := f.load()
	if err != nil {
		return err
	}
	defs[def.Name] = def
	return f.store.Set(storage.SlotCustomFeeds, defs)
}

// Delete removes a feed definition. Deleting an unknown name is a no-op.
func (f *Feeds) Delete(name string) error {
	defs, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := defs[name]; !ok {
		return nil
	}
	delete(defs, name)
	return f.store.Set(storage.SlotCustomFeeds, defs)
}

func (f *Feeds) load() (map[string]FeedDefinition, error) {
	defs := make(map[string]FeedDefinition)
	if _, err := f.store.Get(storage.SlotCustomFeeds, &defs); err != nil {
		return nil, err
	}
	if defs == nil {
		defs = make(map[string]FeedDefinition)
	}
	return defs, nil
}
