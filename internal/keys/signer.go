package keys

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/errors"
)

// LocalSigner signs with in-process key material.
type LocalSigner struct {
	sk string // 32-byte hex, never logged
	pk string
}

var _ domain.Signer = (*LocalSigner)(nil)

// NewLocalSigner accepts a secret key as 64-char hex or nsec bech32.
func NewLocalSigner(secret string) (*LocalSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.ErrNoIdentity
	}
	if strings.HasPrefix(secret, "nsec") {
		prefix, value, err := nip19.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("decode nsec: %w", err)
		}
		if prefix != "nsec" {
			return nil, fmt.Errorf("expected nsec, got %s", prefix)
		}
		secret = value.(string)
	}
	if !nostr.IsValid32ByteHex(secret) {
		return nil, fmt.Errorf("secret key must be 64 hex characters")
	}
	pk, err := nostr.GetPublicKey(secret)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &LocalSigner{sk: secret, pk: pk}, nil
}

// LoadLocalSigner reads the secret key from a file.
func LoadLocalSigner(path string) (*LocalSigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return NewLocalSigner(string(raw))
}

// Generate mints a fresh secp256k1 key pair.
func Generate() (*LocalSigner, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	sk := hex.EncodeToString(priv.Serialize())
	pk := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
	return &LocalSigner{sk: sk, pk: pk}, nil
}

func (s *LocalSigner) PublicKey() string { return s.pk }

// Sign computes the event id and schnorr signature. The event's PubKey must
// already match this signer's identity.
func (s *LocalSigner) Sign(ctx context.Context, evt *nostr.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if evt.PubKey != "" && evt.PubKey != s.pk {
		return fmt.Errorf("event pubkey %s does not match signer identity", evt.PubKey)
	}
	evt.PubKey = s.pk
	if err := evt.Sign(s.sk); err != nil {
		return errors.SigningError("keys.sign", err)
	}
	return nil
}

// Npub returns the bech32 public key encoding.
func (s *LocalSigner) Npub() (string, error) {
	return nip19.EncodePublicKey(s.pk)
}

// Nsec returns the bech32 secret key encoding. Callers display it once
// during onboarding; it must not be persisted outside the key file.
func (s *LocalSigner) Nsec() (string, error) {
	return nip19.EncodePrivateKey(s.sk)
}

// SecretHex exposes the raw secret for the direct-message shared-secret
// computation. No other caller should need it.
func (s *LocalSigner) SecretHex() string { return s.sk }
