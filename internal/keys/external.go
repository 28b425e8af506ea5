package keys

import (
	"context"
	"fmt"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/errors"
)

// GetPublicKeyFunc asks an external capability for its identity.
type GetPublicKeyFunc func(ctx context.Context) (string, error)

// SignEventFunc hands an unsigned event to an external capability and gets
// back the signed copy. The capability may prompt the user and decline.
type SignEventFunc func(ctx context.Context, evt nostr.Event) (*nostr.Event, error)

// ExternalSigner adapts a browser-extension-style signer (getPublicKey +
// signEvent) to the Signer contract. The core treats both signer paths
// identically after this point.
type ExternalSigner struct {
	pk   string
	sign SignEventFunc
}

var _ domain.Signer = (*ExternalSigner)(nil)

// NewExternalSigner resolves the capability's identity eagerly so PublicKey
// never blocks later.
func NewExternalSigner(ctx context.Context, getPub GetPublicKeyFunc, sign SignEventFunc) (*ExternalSigner, error) {
	if getPub == nil || sign == nil {
		return nil, errors.ErrNoIdentity
	}
	pk, err := getPub(ctx)
	if err != nil {
		return nil, fmt.Errorf("external signer identity: %w", err)
	}
	if !nostr.IsValid32ByteHex(pk) {
		return nil, fmt.Errorf("external signer returned invalid public key")
	}
	return &ExternalSigner{pk: pk, sign: sign}, nil
}

func (s *ExternalSigner) PublicKey() string { return s.pk }

func (s *ExternalSigner) Sign(ctx context.Context, evt *nostr.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	evt.PubKey = s.pk
	signed, err := s.sign(ctx, *evt)
	if err != nil {
		return errors.SigningError("keys.external_sign", err)
	}
	if signed == nil || signed.Sig == "" {
		return errors.SigningError("keys.external_sign", errors.ErrSigningFailed)
	}
	if signed.PubKey != s.pk {
		return fmt.Errorf("external signer switched identity mid-sign")
	}
	evt.ID = signed.ID
	evt.Sig = signed.Sig
	return nil
}
