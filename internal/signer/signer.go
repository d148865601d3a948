// Package signer produces and checks detached OpenPGP signatures for
// published artifacts against a fixed set of verification targets.
//
// A signature file is valid only when every configured target has a good
// signature packet in it. Anything that cannot be parsed or checked counts as
// invalid; verification never fails open.
package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"podsig/internal/hasher"
	"podsig/internal/logging"
)

// ErrNoSigningKey reports that none of the configured identifiers resolved to
// a key able to sign.
var ErrNoSigningKey = errors.New("no usable signing key")

// ErrInvalidSignature is returned per target when verification fails.
var ErrInvalidSignature = errors.New("invalid signature")

const signatureBlockType = "PGP SIGNATURE"

// Opener returns a fresh reader over an artifact's bytes.
type Opener func() (io.ReadCloser, error)

// Options configures a Signer.
type Options struct {
	// KeyIDs selects targets by fingerprint or key ID. Empty selects every
	// signing key in the store.
	KeyIDs []string
	// Armor writes ASCII-armored signatures.
	Armor  bool
	Logger *slog.Logger
}

// TargetResult is the outcome for one verification target.
type TargetResult struct {
	Fingerprint string
	Err         error
}

// OK reports whether the target verified.
func (t TargetResult) OK() bool { return t.Err == nil }

// Verification is the outcome of checking one signature file.
type Verification struct {
	Valid   bool
	Targets []TargetResult
	// Err is set when the signature could not be decoded at all.
	Err error
}

// Reason summarises why the signature is not valid.
func (v Verification) Reason() string {
	if v.Valid {
		return ""
	}
	if v.Err != nil {
		return v.Err.Error()
	}
	for _, t := range v.Targets {
		if t.Err != nil {
			return fmt.Sprintf("target %s: %v", t.Fingerprint, t.Err)
		}
	}
	return ErrInvalidSignature.Error()
}

// Signer signs and verifies artifacts for a fixed target set.
type Signer struct {
	keys   []Key
	armor  bool
	logger *slog.Logger

	// The underlying key material is not shared across concurrent signs.
	mu sync.Mutex
}

// New resolves opts.KeyIDs against store and keeps those able to sign.
func New(store KeyStore, opts Options) (*Signer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: no key store", ErrNoSigningKey)
	}
	logger := logging.NewComponentLogger(opts.Logger, "signer")

	var keys []Key
	if len(opts.KeyIDs) == 0 {
		keys = store.SigningKeys()
	} else {
		seen := make(map[string]struct{}, len(opts.KeyIDs))
		for _, id := range opts.KeyIDs {
			key, err := store.Resolve(id)
			if err != nil {
				logger.Warn("signing key unavailable", logging.String("key", id), logging.Error(err))
				continue
			}
			if !key.CanSign() {
				logging.WarnWithContext(logger, "key lacks private signing material", "key_skipped",
					logging.String("key", id),
					logging.String("fingerprint", key.Fingerprint()),
					logging.Impact("artifacts will not carry a signature from this key"),
					logging.Hint("import the secret key into the key store"))
				continue
			}
			if _, dup := seen[key.Fingerprint()]; dup {
				continue
			}
			seen[key.Fingerprint()] = struct{}{}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoSigningKey
	}
	for _, key := range keys {
		logger.Debug("verification target", logging.String("fingerprint", key.Fingerprint()))
	}
	return &Signer{keys: keys, armor: opts.Armor, logger: logger}, nil
}

// Targets returns the verification-target fingerprints.
func (s *Signer) Targets() []string {
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k.Fingerprint())
	}
	return out
}

// Verify checks signature against every target. Armored and binary input are
// both accepted.
func (s *Signer) Verify(ctx context.Context, open Opener, signature []byte) Verification {
	raw, err := Dearmor(signature)
	if err != nil {
		return Verification{Err: err}
	}

	result := Verification{Valid: true, Targets: make([]TargetResult, 0, len(s.keys))}
	for _, key := range s.keys {
		err := withReader(ctx, open, func(r io.Reader) error {
			return key.Verify(r, raw)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Verification{Err: ctxErr}
			}
			err = fmt.Errorf("%w: %v", ErrInvalidSignature, err)
			result.Valid = false
		}
		result.Targets = append(result.Targets, TargetResult{Fingerprint: key.Fingerprint(), Err: err})
	}
	return result
}

// Sign produces one signature packet per target over the artifact bytes.
func (s *Signer) Sign(ctx context.Context, open Opener) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var packets bytes.Buffer
	for _, key := range s.keys {
		err := withReader(ctx, open, func(r io.Reader) error {
			return key.Sign(&packets, r)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("sign with %s: %w", key.Fingerprint(), err)
		}
	}
	if !s.armor {
		return packets.Bytes(), nil
	}
	return Armor(packets.Bytes())
}

// Armor wraps binary signature packets in a PGP SIGNATURE block.
func Armor(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := armor.Encode(&out, signatureBlockType, nil)
	if err != nil {
		return nil, fmt.Errorf("armor signature: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("armor signature: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("armor signature: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Dearmor returns the binary packets of signature, decoding armor if present.
func Dearmor(signature []byte) ([]byte, error) {
	if len(bytes.TrimSpace(signature)) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrInvalidSignature)
	}
	if !isArmored(signature) {
		return signature, nil
	}
	block, err := armor.Decode(bytes.NewReader(signature))
	if err != nil {
		return nil, fmt.Errorf("%w: decode armor: %v", ErrInvalidSignature, err)
	}
	if block.Type != signatureBlockType {
		return nil, fmt.Errorf("%w: unexpected armor block %q", ErrInvalidSignature, block.Type)
	}
	raw, err := io.ReadAll(block.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read armor: %v", ErrInvalidSignature, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrInvalidSignature)
	}
	return raw, nil
}

func withReader(ctx context.Context, open Opener, fn func(io.Reader) error) error {
	rc, err := open()
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer rc.Close()
	return fn(hasher.NewContextReader(ctx, rc))
}
