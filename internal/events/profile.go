package events

import (
	"encoding/json"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/logger"
)

// Profile is the kind-0 metadata document. Fields absent from the event
// content stay zero-valued.
type Profile struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Website     string `json:"website,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
	Location    string `json:"location,omitempty"`
}

// BestName returns the friendliest available handle.
func (p Profile) BestName() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Name != "":
		return p.Name
	default:
		return ""
	}
}

// ParseProfile decodes the content of a kind-0 event. Malformed content is
// not an error: a lot of clients publish junk, so the caller gets an empty
// profile and the failure is only logged.
func ParseProfile(evt *nostr.Event) Profile {
	var p Profile
	if evt == nil || evt.Content == "" {
		return p
	}
	if err := json.Unmarshal([]byte(evt.Content), &p); err != nil {
		logger.Debug("Unparseable profile content",
			zap.String("pubkey", logger.Abbrev(evt.PubKey)),
			zap.Error(err))
		return Profile{}
	}
	return p
}

// EncodeProfile serializes a profile for a kind-0 event body.
func EncodeProfile(p Profile) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
