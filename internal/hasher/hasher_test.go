package hasher_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"podsig/internal/hasher"
)

func TestSumMatchesKnownDigest(t *testing.T) {
	got, err := hasher.Sum(bytes.NewReader([]byte("abc")))
	if err != nil {
		t.Fatalf("Sum error: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("Sum(abc)=%s want %s", got, want)
	}
}

func TestFileAndNetworkDigestsAgree(t *testing.T) {
	payload := bytes.Repeat([]byte("podcast-bytes-"), 3000) // spans several 4 KiB reads
	path := filepath.Join(t.TempDir(), "s01e01.mp3")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	fromFile, err := hasher.File(context.Background(), path)
	if err != nil {
		t.Fatalf("File error: %v", err)
	}
	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	fromNet, err := hasher.Sum(resp.Body)
	if err != nil {
		t.Fatalf("Sum error: %v", err)
	}

	sum := sha256.Sum256(payload)
	want := hex.EncodeToString(sum[:])
	if fromFile != want || fromNet != want {
		t.Fatalf("digests differ: file=%s net=%s want=%s", fromFile, fromNet, want)
	}
	again, err := hasher.File(context.Background(), path)
	if err != nil || again != fromFile {
		t.Fatalf("second hash differs: %s vs %s (err=%v)", again, fromFile, err)
	}
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := min(len(p), f.after)
	f.after -= n
	for i := range n {
		p[i] = 'x'
	}
	return n, nil
}

func TestSumPropagatesReadErrors(t *testing.T) {
	_, err := hasher.Sum(&failingReader{after: 5000})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected read error to propagate, got %v", err)
	}
}

func TestSumContextStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := hasher.SumContext(ctx, bytes.NewReader(make([]byte, 10)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileMissing(t *testing.T) {
	_, err := hasher.File(context.Background(), filepath.Join(t.TempDir(), "missing.ogg"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestVerifyReportsChecksumError(t *testing.T) {
	src := bytes.NewReader([]byte("abc"))
	actual, err := hasher.Verify(context.Background(), "mem", src, "DEADBEEF")
	var mismatch *hasher.ChecksumError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
	if mismatch.Expected != "DEADBEEF" || mismatch.Actual != actual {
		t.Fatalf("unexpected mismatch detail: %+v", mismatch)
	}

	_, err = hasher.Verify(context.Background(), "mem", bytes.NewReader([]byte("abc")),
		" BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD\n")
	if err != nil {
		t.Fatalf("expected case-insensitive match, got %v", err)
	}
}

func TestEqualRejectsEmpty(t *testing.T) {
	if hasher.Equal("", "") {
		t.Fatal("empty digests must not compare equal")
	}
}
