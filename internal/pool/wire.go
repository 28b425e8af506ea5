package pool

import (
	"encoding/json"
	"fmt"

	nostr "github.com/nbd-wtf/go-nostr"
)

// Relay-to-client message labels.
// https://github.com/nostr-protocol/nips/blob/master/01.md
const (
	labelEvent  = "EVENT"
	labelEOSE   = "EOSE"
	labelOK     = "OK"
	labelNotice = "NOTICE"
	labelClosed = "CLOSED"
	labelReq    = "REQ"
	labelClose  = "CLOSE"
)

// serverMessage is one parsed relay-to-client frame.
type serverMessage struct {
	label string

	subID string       // EVENT, EOSE, CLOSED
	event *nostr.Event // EVENT

	eventID  string // OK
	accepted bool   // OK
	reason   string // OK, CLOSED
	notice   string // NOTICE
}

// parseServerMessage decodes a relay frame. Unknown labels parse into a
// message with only the label set; the read loop ignores them.
func parseServerMessage(data []byte) (*serverMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if len(arr) < 1 {
		return nil, fmt.Errorf("empty frame")
	}

	msg := &serverMessage{}
	if err := json.Unmarshal(arr[0], &msg.label); err != nil {
		return nil, fmt.Errorf("frame label: %w", err)
	}

	switch msg.label {
	case labelEvent:
		if len(arr) < 3 {
			return nil, fmt.Errorf("EVENT frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.subID); err != nil {
			return nil, fmt.Errorf("EVENT subscription id: %w", err)
		}
		var evt nostr.Event
		if err := json.Unmarshal(arr[2], &evt); err != nil {
			return nil, fmt.Errorf("EVENT payload: %w", err)
		}
		msg.event = &evt

	case labelEOSE:
		if len(arr) < 2 {
			return nil, fmt.Errorf("EOSE frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.subID); err != nil {
			return nil, fmt.Errorf("EOSE subscription id: %w", err)
		}

	case labelOK:
		if len(arr) < 3 {
			return nil, fmt.Errorf("OK frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.eventID); err != nil {
			return nil, fmt.Errorf("OK event id: %w", err)
		}
		if err := json.Unmarshal(arr[2], &msg.accepted); err != nil {
			return nil, fmt.Errorf("OK flag: %w", err)
		}
		if len(arr) >= 4 {
			_ = json.Unmarshal(arr[3], &msg.reason)
		}

	case labelNotice:
		if len(arr) >= 2 {
			_ = json.Unmarshal(arr[1], &msg.notice)
		}

	case labelClosed:
		if len(arr) < 2 {
			return nil, fmt.Errorf("CLOSED frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.subID); err != nil {
			return nil, fmt.Errorf("CLOSED subscription id: %w", err)
		}
		if len(arr) >= 3 {
			_ = json.Unmarshal(arr[2], &msg.reason)
		}
	}

	return msg, nil
}

// Client-to-relay frames. nostr.Event and nostr.Filter carry their own
// canonical JSON encodings (tag constraints marshal as "#x" keys).

func eventFrame(evt *nostr.Event) []any {
	return []any{labelEvent, evt}
}

func reqFrame(subID string, filters nostr.Filters) []any {
	frame := make([]any, 0, 2+len(filters))
	frame = append(frame, labelReq, subID)
	for i := range filters {
		frame = append(frame, filters[i])
	}
	return frame
}

func closeFrame(subID string) []any {
	return []any{labelClose, subID}
}
