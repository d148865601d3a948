package sigstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"podsig/internal/sigstore"
)

func TestPathFor(t *testing.T) {
	tests := []struct {
		name     string
		ext      string
		artifact string
		want     string
	}{
		{"default extension", "", "/r/mp3/s01e01.mp3", "/r/gpg/s01e01.mp3.asc"},
		{"leading dot stripped", ".sig", "/r/ogg/s01e01.ogg", "/r/gpg/s01e01.ogg.sig"},
		{"nested release", "asc", "/r/2024/mp3/s02e10.mp3", "/r/2024/gpg/s02e10.mp3.asc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sigstore.New(tt.ext).PathFor(tt.artifact)
			if got != filepath.FromSlash(tt.want) {
				t.Fatalf("PathFor(%q)=%q want %q", tt.artifact, got, tt.want)
			}
		})
	}
}

func TestReadMissingWrapsErrNotFound(t *testing.T) {
	store := sigstore.New("asc")
	_, err := store.Read(filepath.Join(t.TempDir(), "gpg", "x.mp3.asc"))
	if !errors.Is(err, sigstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteCreatesDirectoryAndRoundTrips(t *testing.T) {
	root := t.TempDir()
	store := sigstore.New("asc")
	path := store.PathFor(filepath.Join(root, "mp3", "s01e01.mp3"))

	if err := store.Write(context.Background(), path, []byte("sig-1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write(context.Background(), path, []byte("sig-2")); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	got, err := store.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "sig-2" {
		t.Fatalf("got %q want sig-2", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the signature file, got %d entries", len(entries))
	}
}

func TestWriteCancelledLeavesPrevious(t *testing.T) {
	root := t.TempDir()
	store := sigstore.New("asc")
	path := store.PathFor(filepath.Join(root, "ogg", "s01e01.ogg"))
	if err := store.Write(context.Background(), path, []byte("keep")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Write(ctx, path, []byte("drop")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	got, err := store.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "keep" {
		t.Fatalf("got %q want keep", got)
	}
}
