package constants

// DefaultRelays is the relay set used until the user configures their own.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://relay.nostr.band",
	"wss://nostr.wine",
	"wss://nos.lol",
	"wss://relay.current.fyi",
}

// Bridge relays surfacing events from other networks.
const (
	FediverseRelay = "wss://mostr.pub"
	BlueskyRelay   = "wss://relay.nostr.band"
)
