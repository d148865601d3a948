package signer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"podsig/internal/config"
)

var (
	// ErrKeyStore reports a key store that cannot be opened or holds no keys.
	ErrKeyStore = errors.New("key store unavailable")
	// ErrKeyNotFound reports an identifier that matches no key.
	ErrKeyNotFound = errors.New("key not found")
)

// Key is a single verification target that may also be able to sign.
type Key interface {
	// Fingerprint is the uppercase hex fingerprint of the signing (sub)key.
	Fingerprint() string
	// CanSign reports whether usable private material is present.
	CanSign() bool
	// Sign writes a binary detached signature over message to w.
	Sign(w io.Writer, message io.Reader) error
	// Verify checks a binary detached signature over message.
	Verify(message io.Reader, signature []byte) error
}

// KeyStore resolves configured identifiers to keys.
type KeyStore interface {
	Resolve(id string) (Key, error)
	// SigningKeys lists every key able to sign, ordered by fingerprint.
	SigningKeys() []Key
}

var keyFileExtensions = map[string]struct{}{
	".asc": {},
	".gpg": {},
	".pgp": {},
	".key": {},
}

// Keyring is an in-memory OpenPGP key store.
type Keyring struct {
	entities openpgp.EntityList
}

// NewKeyStore wraps already-parsed entities. Entities sharing a primary
// fingerprint are merged in favour of the one carrying private material.
func NewKeyStore(entities openpgp.EntityList) *Keyring {
	byFP := make(map[string]*openpgp.Entity, len(entities))
	order := make([]string, 0, len(entities))
	for _, e := range entities {
		if e == nil || e.PrimaryKey == nil {
			continue
		}
		fp := fmt.Sprintf("%X", e.PrimaryKey.Fingerprint)
		existing, ok := byFP[fp]
		if !ok {
			order = append(order, fp)
			byFP[fp] = e
			continue
		}
		if existing.PrivateKey == nil && e.PrivateKey != nil {
			byFP[fp] = e
		}
	}
	sort.Strings(order)
	merged := make(openpgp.EntityList, 0, len(order))
	for _, fp := range order {
		merged = append(merged, byFP[fp])
	}
	return &Keyring{entities: merged}
}

// OpenKeyStore loads every keyring file (*.asc, *.gpg, *.pgp, *.key) in dir.
// Files may be armored or binary and may hold public or secret keys.
func OpenKeyStore(dir string) (*Keyring, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: no key store directory configured", ErrKeyStore)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStore, err)
	}

	var all openpgp.EntityList
	var loadErrs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := keyFileExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		list, err := readKeyFile(path)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("%s: %w", entry.Name(), err))
			continue
		}
		all = append(all, list...)
	}
	if len(all) == 0 {
		if len(loadErrs) > 0 {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyStore, dir, errors.Join(loadErrs...))
		}
		return nil, fmt.Errorf("%w: no keys found in %s", ErrKeyStore, dir)
	}
	return NewKeyStore(all), nil
}

func readKeyFile(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isArmored(data) {
		return openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	}
	return openpgp.ReadKeyRing(bytes.NewReader(data))
}

func isArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN "))
}

// Entities returns the merged entity list.
func (k *Keyring) Entities() openpgp.EntityList {
	return k.entities
}

// Resolve matches id against full fingerprints and key ID suffixes of every
// primary key and subkey.
func (k *Keyring) Resolve(id string) (Key, error) {
	want := config.NormalizeKeyID(id)
	if want == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrKeyNotFound)
	}
	var matches []*openpgp.Entity
	for _, e := range k.entities {
		if entityMatches(e, want) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, want)
	case 1:
		return newPGPKey(matches[0]), nil
	default:
		return nil, fmt.Errorf("identifier %s is ambiguous (%d keys match)", want, len(matches))
	}
}

// SigningKeys returns every entity with usable signing material.
func (k *Keyring) SigningKeys() []Key {
	var keys []Key
	for _, e := range k.entities {
		key := newPGPKey(e)
		if key.CanSign() {
			keys = append(keys, key)
		}
	}
	return keys
}

func entityMatches(e *openpgp.Entity, want string) bool {
	if publicKeyMatches(e.PrimaryKey, want) {
		return true
	}
	for _, sub := range e.Subkeys {
		if publicKeyMatches(sub.PublicKey, want) {
			return true
		}
	}
	return false
}

func publicKeyMatches(pk *packet.PublicKey, want string) bool {
	if pk == nil {
		return false
	}
	fp := fmt.Sprintf("%X", pk.Fingerprint)
	if fp == want {
		return true
	}
	// Long (16) and short (8) key IDs are fingerprint suffixes for v4 keys.
	keyID := fmt.Sprintf("%016X", pk.KeyId)
	return len(want) <= len(keyID) && strings.HasSuffix(keyID, want)
}

type pgpKey struct {
	entity  *openpgp.Entity
	signing openpgp.Key
	usable  bool
}

func newPGPKey(e *openpgp.Entity) *pgpKey {
	signing, ok := e.SigningKey(time.Now())
	return &pgpKey{entity: e, signing: signing, usable: ok}
}

func (k *pgpKey) Fingerprint() string {
	if k.usable && k.signing.PublicKey != nil {
		return fmt.Sprintf("%X", k.signing.PublicKey.Fingerprint)
	}
	return fmt.Sprintf("%X", k.entity.PrimaryKey.Fingerprint)
}

func (k *pgpKey) CanSign() bool {
	return k.usable && k.signing.PrivateKey != nil && !k.signing.PrivateKey.Encrypted
}

func (k *pgpKey) Sign(w io.Writer, message io.Reader) error {
	if !k.CanSign() {
		return fmt.Errorf("key %s has no usable private signing key", k.Fingerprint())
	}
	cfg := &packet.Config{SigningKeyId: k.signing.PublicKey.KeyId}
	return openpgp.DetachSign(w, k.entity, message, cfg)
}

func (k *pgpKey) Verify(message io.Reader, signature []byte) error {
	// A single-entity keyring makes the check skip packets issued by other keys.
	_, err := openpgp.CheckDetachedSignature(openpgp.EntityList{k.entity}, message, bytes.NewReader(signature), nil)
	return err
}
