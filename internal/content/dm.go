package content

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"github.com/gestalt-social/gestalt/internal/constants"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
)

// SendDirectMessage encrypts plaintext for recipient with NIP-04 and
// publishes the kind-4 event. Encryption happens strictly before the event
// exists: plaintext is never handed to the factory or the pool.
func (s *Service) SendDirectMessage(ctx context.Context, recipient, plaintext string) (*nostr.Event, error) {
	if !nostr.IsValid32ByteHex(recipient) {
		return nil, clienterrors.ValidationError("content.dm", "invalid recipient pubkey")
	}
	if plaintext == "" {
		return nil, clienterrors.ValidationError("content.dm", "empty message")
	}
	shared, err := s.sharedSecret(recipient)
	if err != nil {
		return nil, err
	}
	ciphertext, err := nip04.Encrypt(plaintext, shared)
	if err != nil {
		return nil, clienterrors.Wrap(err, clienterrors.ErrorTypeInternal, "DM_ENCRYPT_FAILED",
			"content.dm", "message encryption")
	}

	evt := s.factory.Build(constants.KindEncryptedDM, ciphertext, nostr.Tags{{"p", recipient}})
	return s.publish(ctx, evt)
}

// DecryptDirectMessage recovers the plaintext of a kind-4 event involving
// the local identity, whichever direction it traveled.
func (s *Service) DecryptDirectMessage(evt *nostr.Event) (string, error) {
	if evt == nil || evt.Kind != constants.KindEncryptedDM {
		return "", clienterrors.ValidationError("content.dm", "not an encrypted direct message")
	}

	peer := evt.PubKey
	if peer == s.factory.PublicKey() {
		// Our own outgoing copy: the peer is the recipient tag.
		tag := evt.Tags.GetFirst([]string{"p"})
		if tag == nil || len(*tag) < 2 {
			return "", clienterrors.ValidationError("content.dm", "outgoing message without recipient tag")
		}
		peer = (*tag)[1]
	}

	shared, err := s.sharedSecret(peer)
	if err != nil {
		return "", err
	}
	plaintext, err := nip04.Decrypt(evt.Content, shared)
	if err != nil {
		return "", clienterrors.Wrap(err, clienterrors.ErrorTypeInternal, "DM_DECRYPT_FAILED",
			"content.dm", "message decryption")
	}
	return plaintext, nil
}

func (s *Service) sharedSecret(peer string) ([]byte, error) {
	if s.secret == nil {
		return nil, clienterrors.Wrap(clienterrors.ErrNoIdentity, clienterrors.ErrorTypeSigning,
			"DM_NO_LOCAL_KEY", "content.dm", "direct messages need a local secret key")
	}
	shared, err := nip04.ComputeSharedSecret(peer, s.secret.SecretHex())
	if err != nil {
		return nil, clienterrors.Wrap(err, clienterrors.ErrorTypeInternal, "DM_KEY_AGREEMENT_FAILED",
			"content.dm", "shared secret derivation")
	}
	return shared, nil
}
