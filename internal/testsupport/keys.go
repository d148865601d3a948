package testsupport

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"

	"podsig/internal/signer"
)

var (
	keyCacheMu sync.Mutex
	keyCache   = map[string]*openpgp.Entity{}
)

// Key returns a generated signing entity for name, reused across tests in the
// same package.
func Key(t testing.TB, name string) *openpgp.Entity {
	t.Helper()

	keyCacheMu.Lock()
	defer keyCacheMu.Unlock()
	if e, ok := keyCache[name]; ok {
		return e
	}
	e, err := signer.GenerateKey(name, name+"@example.com")
	if err != nil {
		t.Fatalf("generate key %s: %v", name, err)
	}
	keyCache[name] = e
	return e
}

// WriteSecretKeys exports the named keys with private material into dir and
// returns their primary fingerprints.
func WriteSecretKeys(t testing.TB, dir string, names ...string) []string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir keystore: %v", err)
	}
	fps := make([]string, 0, len(names))
	for _, name := range names {
		e := Key(t, name)
		if err := signer.WriteKeyring(filepath.Join(dir, name+".asc"), true, e); err != nil {
			t.Fatalf("write key %s: %v", name, err)
		}
		fps = append(fps, signer.EntityFingerprint(e))
	}
	return fps
}

// NewSigner builds a signer over the named keys without touching disk.
func NewSigner(t testing.TB, armor bool, names ...string) *signer.Signer {
	t.Helper()

	list := make(openpgp.EntityList, 0, len(names))
	for _, name := range names {
		list = append(list, Key(t, name))
	}
	s, err := signer.New(signer.NewKeyStore(list), signer.Options{Armor: armor})
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	return s
}
