package domain

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"
)

// Signer is the capability every publishing operation needs: an identity and
// a way to sign. Local key material and external signers implement the same
// contract and are indistinguishable past this point.
type Signer interface {
	// PublicKey returns the 32-byte hex public key of the identity.
	PublicKey() string

	// Sign fills in the event id and signature. The event must have all
	// other fields final; implementations must not mutate anything else.
	Sign(ctx context.Context, evt *nostr.Event) error
}
