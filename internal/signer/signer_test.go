package signer_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"

	"podsig/internal/signer"
)

func opener(data []byte) signer.Opener {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func mustKey(t *testing.T, name string) *openpgp.Entity {
	t.Helper()
	e, err := signer.GenerateKey(name, strings.ToLower(name)+"@example.com")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return e
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, armored := range []bool{true, false} {
		key := mustKey(t, "Alice")
		store := signer.NewKeyStore(openpgp.EntityList{key})
		s, err := signer.New(store, signer.Options{Armor: armored})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		payload := []byte("episode one audio")

		sig, err := s.Sign(context.Background(), opener(payload))
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if got := bytes.HasPrefix(sig, []byte("-----BEGIN PGP SIGNATURE-----")); got != armored {
			t.Fatalf("armored=%v but output prefix mismatch: %q", armored, sig[:min(len(sig), 30)])
		}

		v := s.Verify(context.Background(), opener(payload), sig)
		if !v.Valid {
			t.Fatalf("expected valid signature (armored=%v): %s", armored, v.Reason())
		}

		tampered := s.Verify(context.Background(), opener([]byte("episode one audiO")), sig)
		if tampered.Valid {
			t.Fatalf("tampered artifact must not verify (armored=%v)", armored)
		}
	}
}

func TestVerifyFailsClosedOnGarbage(t *testing.T) {
	s, err := signer.New(signer.NewKeyStore(openpgp.EntityList{mustKey(t, "Bob")}), signer.Options{Armor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		name string
		sig  []byte
	}{
		{"empty", nil},
		{"whitespace", []byte("\n \n")},
		{"binary garbage", []byte{0x01, 0x02, 0x03, 0x04}},
		{"broken armor", []byte("-----BEGIN PGP SIGNATURE-----\n\n!!!!\n-----END PGP SIGNATURE-----\n")},
		{"wrong block", []byte("-----BEGIN PGP MESSAGE-----\n\nAAAA\n-----END PGP MESSAGE-----\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.Verify(context.Background(), opener([]byte("data")), tt.sig)
			if v.Valid {
				t.Fatal("expected invalid verification")
			}
			if v.Reason() == "" {
				t.Fatal("expected a reason")
			}
		})
	}
}

func TestMultipleTargetsAllRequired(t *testing.T) {
	alice := mustKey(t, "Alice")
	bob := mustKey(t, "Bob")
	payload := []byte("dual signed")

	both, err := signer.New(signer.NewKeyStore(openpgp.EntityList{alice, bob}), signer.Options{Armor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(both.Targets()) != 2 {
		t.Fatalf("expected 2 targets, got %v", both.Targets())
	}
	aliceOnly, err := signer.New(signer.NewKeyStore(openpgp.EntityList{alice}), signer.Options{Armor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dual, err := both.Sign(context.Background(), opener(payload))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if v := both.Verify(context.Background(), opener(payload), dual); !v.Valid {
		t.Fatalf("dual signature should verify: %s", v.Reason())
	}
	if v := aliceOnly.Verify(context.Background(), opener(payload), dual); !v.Valid {
		t.Fatalf("alice packet should verify on its own: %s", v.Reason())
	}

	single, err := aliceOnly.Sign(context.Background(), opener(payload))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	v := both.Verify(context.Background(), opener(payload), single)
	if v.Valid {
		t.Fatal("signature missing bob's packet must be invalid")
	}
	var okCount int
	for _, target := range v.Targets {
		if target.OK() {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("expected exactly one verified target, got %d", okCount)
	}
}

func TestNewResolvesIdentifiersAndRejectsPublicOnly(t *testing.T) {
	dir := t.TempDir()
	withSecret := mustKey(t, "Carol")
	publicOnly := mustKey(t, "Dave")
	if err := signer.WriteKeyring(filepath.Join(dir, "secret.asc"), true, withSecret); err != nil {
		t.Fatalf("WriteKeyring: %v", err)
	}
	if err := signer.WriteKeyring(filepath.Join(dir, "public.asc"), false, publicOnly); err != nil {
		t.Fatalf("WriteKeyring: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := signer.OpenKeyStore(dir)
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}
	if got := len(store.Entities()); got != 2 {
		t.Fatalf("expected 2 entities, got %d", got)
	}

	carolFP := signer.EntityFingerprint(withSecret)
	s, err := signer.New(store, signer.Options{KeyIDs: []string{"0x" + strings.ToLower(carolFP)}})
	if err != nil {
		t.Fatalf("New with fingerprint: %v", err)
	}
	if len(s.Targets()) != 1 {
		t.Fatalf("expected one target, got %v", s.Targets())
	}

	if _, err := signer.New(store, signer.Options{KeyIDs: []string{carolFP[len(carolFP)-16:]}}); err != nil {
		t.Fatalf("New with long key id: %v", err)
	}

	_, err = signer.New(store, signer.Options{KeyIDs: []string{signer.EntityFingerprint(publicOnly)}})
	if !errors.Is(err, signer.ErrNoSigningKey) {
		t.Fatalf("public-only key should not sign, got %v", err)
	}

	_, err = signer.New(store, signer.Options{KeyIDs: []string{"DEADBEEFDEADBEEF"}})
	if !errors.Is(err, signer.ErrNoSigningKey) {
		t.Fatalf("unknown key should leave no signer, got %v", err)
	}
	if _, err := store.Resolve("DEADBEEFDEADBEEF"); !errors.Is(err, signer.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestOpenKeyStoreErrors(t *testing.T) {
	if _, err := signer.OpenKeyStore(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, signer.ErrKeyStore) {
		t.Fatalf("missing dir: expected ErrKeyStore, got %v", err)
	}
	empty := t.TempDir()
	if _, err := signer.OpenKeyStore(empty); !errors.Is(err, signer.ErrKeyStore) {
		t.Fatalf("empty dir: expected ErrKeyStore, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(empty, "bad.asc"), []byte("not a key"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := signer.OpenKeyStore(empty); !errors.Is(err, signer.ErrKeyStore) {
		t.Fatalf("unparseable keys: expected ErrKeyStore, got %v", err)
	}
}

func TestSignHonoursCancellation(t *testing.T) {
	s, err := signer.New(signer.NewKeyStore(openpgp.EntityList{mustKey(t, "Erin")}), signer.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Sign(ctx, opener([]byte("x"))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
