package content

import (
	"context"
	"encoding/json"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/gestalt-social/gestalt/internal/constants"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
)

// Listing is a marketplace entry published as a parameterized replaceable
// event: republishing with the same id replaces the listing.
type Listing struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Images      []string `json:"images,omitempty"`
}

// CreateListing publishes or replaces a marketplace listing. The listing
// id becomes the "d" tag, which is what scopes replacement.
func (s *Service) CreateListing(ctx context.Context, listing Listing) (*nostr.Event, error) {
	switch {
	case listing.ID == "":
		return nil, clienterrors.ValidationError("content.listing", "listing needs an id")
	case listing.Name == "":
		return nil, clienterrors.ValidationError("content.listing", "listing needs a name")
	case listing.Price < 0:
		return nil, clienterrors.ValidationError("content.listing", "negative price")
	}

	body, err := json.Marshal(listing)
	if err != nil {
		return nil, clienterrors.ValidationError("content.listing", err.Error())
	}
	evt := s.factory.Build(constants.KindMarketplaceStall, string(body), nostr.Tags{{"d", listing.ID}})
	return s.publish(ctx, evt)
}

// ParseListing decodes a marketplace event body.
func ParseListing(evt *nostr.Event) (Listing, error) {
	var l Listing
	if evt == nil || evt.Kind != constants.KindMarketplaceStall {
		return l, clienterrors.ValidationError("content.listing", "not a marketplace event")
	}
	if err := json.Unmarshal([]byte(evt.Content), &l); err != nil {
		return Listing{}, clienterrors.ValidationError("content.listing", "malformed listing body")
	}
	return l, nil
}
