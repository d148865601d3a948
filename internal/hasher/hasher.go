// Package hasher computes SHA-256 content digests, the canonical identity of a
// published artifact's bytes, in bounded memory for files and network streams
// alike.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// BufferSize is the fixed read size used while streaming a source.
const BufferSize = 4 * 1024

// Sum streams r through SHA-256 and returns the lowercase hex digest.
func Sum(r io.Reader) (string, error) {
	return SumContext(context.Background(), r)
}

// SumContext is Sum with cancellation checked between reads.
func SumContext(ctx context.Context, r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, BufferSize)
	// Hide any WriterTo on the source so the fixed buffer is always used.
	src := struct{ io.Reader }{NewContextReader(ctx, r)}
	if _, err := io.CopyBuffer(h, src, buf); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File hashes the file at path.
func File(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	digest, err := SumContext(ctx, f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return digest, nil
}

// Equal compares two hex digests ignoring case and surrounding whitespace.
func Equal(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// ChecksumError reports a digest that differs from the declared value.
type ChecksumError struct {
	Source   string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: declared %s, actual %s", e.Source, e.Expected, e.Actual)
}

// Verify hashes r and returns a *ChecksumError when it does not match expected.
func Verify(ctx context.Context, source string, r io.Reader, expected string) (string, error) {
	actual, err := SumContext(ctx, r)
	if err != nil {
		return "", err
	}
	if !Equal(actual, expected) {
		return actual, &ChecksumError{Source: source, Expected: strings.TrimSpace(expected), Actual: actual}
	}
	return actual, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

// NewContextReader wraps r so reads fail with ctx.Err() once ctx is done.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil || ctx.Done() == nil {
		return r
	}
	return &contextReader{ctx: ctx, r: r}
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
