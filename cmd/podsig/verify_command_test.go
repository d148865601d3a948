package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"podsig/internal/config"
	"podsig/internal/testsupport"
)

func sha(data string) string {
	s := sha256.Sum256([]byte(data))
	return hex.EncodeToString(s[:])
}

// feedServer serves an mp3 and an ogg feed whose enclosures live on the same
// server. S01E02.mp3 serves bytes that differ from its declared hash.
func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	item := func(episode, file, hash string) string {
		return fmt.Sprintf(`<item><title>%s: Episode</title><enclosure url="%s/media/%s"/><guid>%s</guid></item>`,
			episode, srv.URL, file, hash)
	}
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed/podcast.xml":
			fmt.Fprintf(w, `<rss><channel>%s%s</channel></rss>`,
				item("S01E01", "S01E01.mp3", sha("mp3-one")),
				item("S01E02", "S01E02.mp3", sha("mp3-two")))
		case "/feed/oggcast.xml":
			fmt.Fprintf(w, `<rss><channel>%s</channel></rss>`,
				item("S01E01", "S01E01.ogg", sha("ogg-one")))
		case "/media/S01E01.mp3":
			_, _ = io.WriteString(w, "mp3-one")
		case "/media/S01E02.mp3":
			_, _ = io.WriteString(w, "mp3-two-tampered")
		case "/media/S01E01.ogg":
			_, _ = io.WriteString(w, "ogg-one")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyPrintsDeclaredTable(t *testing.T) {
	srv := feedServer(t)
	env := setupCLITestEnv(t, withFeedBase(srv.URL))

	out, _, err := runCLI(t, []string{"verify"}, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	for _, want := range []string{"S01E01", "S01E02", sha("mp3-one"), sha("ogg-one")} {
		requireContains(t, out, want)
	}
	if strings.Count(out, sha("mp3-two")) != 1 {
		t.Fatalf("S01E02 should appear once, in the mp3 column: %s", out)
	}
}

func TestVerifyLiveReportsMismatch(t *testing.T) {
	srv := feedServer(t)
	env := setupCLITestEnv(t, withFeedBase(srv.URL))

	out, _, err := runCLI(t, []string{"verify", "--live", "-f", "mp3"}, env.configPath)
	if err != nil {
		t.Fatalf("mismatch without --strict should not fail: %v", err)
	}
	requireContains(t, out, "mismatch")
	requireContains(t, out, sha("mp3-two-tampered"))
	if strings.Contains(out, "S01E01.ogg") {
		t.Fatalf("ogg feed should not be checked: %s", out)
	}

	if _, _, err := runCLI(t, []string{"verify", "-l", "-f", "mp3", "--strict"}, env.configPath); err == nil {
		t.Fatal("expected --strict to fail on mismatch")
	}
}

func TestVerifyStrictCountsUnavailableFeeds(t *testing.T) {
	srv := feedServer(t)
	// The reachable feed matches everywhere, so --strict can only fail on the
	// feed that 404s.
	env := setupCLITestEnv(t, withFeedBase(srv.URL), func(cfg *config.Config) {
		cfg.Feeds.Paths = map[string]string{"mp3": "/feed/gone.xml", "ogg": "/feed/oggcast.xml"}
	})

	out, stderr, err := runCLI(t, []string{"verify", "-l"}, env.configPath)
	if err != nil {
		t.Fatalf("an unavailable feed without --strict should not fail: %v", err)
	}
	requireContains(t, stderr, "404")
	requireContains(t, out, "feeds unavailable")
	requireContains(t, out, "match")

	_, _, err = runCLI(t, []string{"verify", "-l", "--strict"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "could not run") {
		t.Fatalf("expected --strict to fail on the unavailable feed, got %v", err)
	}
}

func TestVerifyLocalDirectory(t *testing.T) {
	srv := feedServer(t)
	env := setupCLITestEnv(t, withFeedBase(srv.URL))
	local := filepath.Join(env.baseDir, "downloads")
	testsupport.WriteFile(t, filepath.Join(local, "S01E01.mp3"), []byte("mp3-one"))
	testsupport.WriteFile(t, filepath.Join(local, "nested", "S01E01.ogg"), []byte("ogg-one"))

	out, _, err := runCLI(t, []string{"verify", "-d", local, "--strict"}, env.configPath)
	if err != nil {
		t.Fatalf("verify -d: %v\n%s", err, out)
	}
	requireContains(t, out, "match")
	requireContains(t, out, "absent")
}

func TestVerifyLocalDirectoryMustExist(t *testing.T) {
	srv := feedServer(t)
	env := setupCLITestEnv(t, withFeedBase(srv.URL))

	_, _, err := runCLI(t, []string{"verify", "-d", filepath.Join(env.baseDir, "missing")}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "local directory") {
		t.Fatalf("expected local directory error, got %v", err)
	}
}

func TestVerifyRejectsUnknownFeed(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"verify", "-f", "vorbis"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown feed") {
		t.Fatalf("expected unknown feed error, got %v", err)
	}
}

func TestVerifyFailsWhenNoFeedFetched(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	env := setupCLITestEnv(t, withFeedBase(srv.URL))

	_, stderr, err := runCLI(t, []string{"verify"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no feeds could be fetched") {
		t.Fatalf("expected fetch failure, got %v", err)
	}
	requireContains(t, stderr, "404")
}
