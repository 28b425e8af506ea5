package keys

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	nostr "github.com/nbd-wtf/go-nostr"
)

// VerifyEvent checks that the event id is the canonical hash of the
// serialized event and that the signature verifies against id and pubkey.
// The pool drops inbound events failing this check; relays are untrusted.
func VerifyEvent(evt *nostr.Event) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}
	if computed := evt.GetID(); computed != evt.ID {
		return fmt.Errorf("event id mismatch: claimed %s, computed %s", evt.ID, computed)
	}

	pkBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil || len(pkBytes) != 32 {
		return fmt.Errorf("invalid pubkey encoding")
	}
	pk, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return fmt.Errorf("parse pubkey: %w", err)
	}

	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil || len(sigBytes) != 64 {
		return fmt.Errorf("invalid signature encoding")
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}

	idBytes, err := hex.DecodeString(evt.ID)
	if err != nil || len(idBytes) != 32 {
		return fmt.Errorf("invalid event id encoding")
	}
	if !sig.Verify(idBytes, pk) {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}
