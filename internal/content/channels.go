package content

import (
	"context"
	"encoding/json"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/gestalt-social/gestalt/internal/constants"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
)

// ChannelInfo is the kind-40 channel creation document.
type ChannelInfo struct {
	Name    string `json:"name"`
	About   string `json:"about,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// CreateChannel publishes a kind-40 public chat channel. The resulting
// event id is the channel id all messages reference.
func (s *Service) CreateChannel(ctx context.Context, info ChannelInfo) (*nostr.Event, error) {
	if info.Name == "" {
		return nil, clienterrors.ValidationError("content.channel", "channel needs a name")
	}
	body, err := json.Marshal(info)
	if err != nil {
		return nil, clienterrors.ValidationError("content.channel", err.Error())
	}
	evt := s.factory.Build(constants.KindChannelCreation, string(body), nil)
	return s.publish(ctx, evt)
}

// SendChannelMessage posts a kind-42 message into the channel created by
// channelID.
func (s *Service) SendChannelMessage(ctx context.Context, channelID, content string) (*nostr.Event, error) {
	if channelID == "" {
		return nil, clienterrors.ValidationError("content.channel", "missing channel id")
	}
	if content == "" {
		return nil, clienterrors.ValidationError("content.channel", "empty message")
	}
	evt := s.factory.Build(constants.KindChannelMessage, content, nostr.Tags{
		{"e", channelID, "", "root"},
	})
	return s.publish(ctx, evt)
}

// ParseChannelInfo decodes a kind-40 event body.
func ParseChannelInfo(evt *nostr.Event) (ChannelInfo, error) {
	var info ChannelInfo
	if evt == nil || evt.Kind != constants.KindChannelCreation {
		return info, clienterrors.ValidationError("content.channel", "not a channel creation event")
	}
	if err := json.Unmarshal([]byte(evt.Content), &info); err != nil {
		return ChannelInfo{}, clienterrors.ValidationError("content.channel", "malformed channel body")
	}
	return info, nil
}
