package signer

import (
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// GenerateKey creates an unencrypted Ed25519 key with a signing subkey.
func GenerateKey(name, email string) (*openpgp.Entity, error) {
	cfg := &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA}
	entity, err := openpgp.NewEntity(name, "", email, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return entity, nil
}

// WriteKeyring writes entities to path as an armored keyring. With private
// set the secret key material is included.
func WriteKeyring(path string, private bool, entities ...*openpgp.Entity) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create keyring: %w", err)
	}
	if err := encodeKeyring(f, private, entities); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func encodeKeyring(w io.Writer, private bool, entities []*openpgp.Entity) error {
	blockType := openpgp.PublicKeyType
	if private {
		blockType = openpgp.PrivateKeyType
	}
	aw, err := armor.Encode(w, blockType, nil)
	if err != nil {
		return fmt.Errorf("armor keyring: %w", err)
	}
	for _, e := range entities {
		if private {
			err = e.SerializePrivate(aw, nil)
		} else {
			err = e.Serialize(aw)
		}
		if err != nil {
			_ = aw.Close()
			return fmt.Errorf("serialize key: %w", err)
		}
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("armor keyring: %w", err)
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// EntityFingerprint returns the uppercase hex primary fingerprint.
func EntityFingerprint(e *openpgp.Entity) string {
	return fmt.Sprintf("%X", e.PrimaryKey.Fingerprint)
}
