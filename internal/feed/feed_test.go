package feed_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"podsig/internal/feed"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Sysadministrivia</title>
    <item>
      <title>S01E01: Every New Beginning</title>
      <enclosure url="https://cdn.example.com/media/mp3/S01E01.mp3?dl=1" length="10" type="audio/mpeg"/>
      <guid isPermaLink="false">ABCDEF0123</guid>
      <itunes:duration>01:02:03</itunes:duration>
    </item>
    <item>
      <title>S01E02:Trailing Delimiter</title>
      <enclosure url="https://cdn.example.com/media/mp3/S01E02.mp3"/>
      <guid>cafebabe</guid>
    </item>
  </channel>
</rss>`

func TestParseExtractsItems(t *testing.T) {
	parsed, err := feed.Parse("mp3", strings.NewReader(sampleRSS), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(parsed.Items))
	}
	first := parsed.Items[0]
	if first.EpisodeID != "S01E01" {
		t.Fatalf("episode id=%q", first.EpisodeID)
	}
	if first.Filename != "S01E01.mp3" {
		t.Fatalf("filename=%q", first.Filename)
	}
	if first.DeclaredHash != "abcdef0123" {
		t.Fatalf("declared hash=%q", first.DeclaredHash)
	}
	if first.Feed != "mp3" {
		t.Fatalf("feed=%q", first.Feed)
	}
	if parsed.Items[1].EpisodeID != "S01E02" {
		t.Fatalf("second episode id=%q", parsed.Items[1].EpisodeID)
	}
}

func TestParseCustomDelimiter(t *testing.T) {
	doc := `<rss><channel><item><title>Ep 7 - Finale</title><enclosure url="http://x/e7.ogg"/><guid>aa</guid></item></channel></rss>`
	parsed, err := feed.Parse("ogg", strings.NewReader(doc), " - ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Items[0].EpisodeID != "Ep 7" {
		t.Fatalf("episode id=%q", parsed.Items[0].EpisodeID)
	}
}

const namespacedRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
     xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"
     xmlns:podcast="https://podcastindex.org/namespace/1.0"
     xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <item>
      <podcast:guid>11111111-2222-3333-4444-555555555555</podcast:guid>
      <title>S01E01: Every New Beginning</title>
      <enclosure url="https://cdn.example.com/media/mp3/S01E01.mp3" type="audio/mpeg"/>
      <guid isPermaLink="false">ABCDEF0123</guid>
      <itunes:title>Every New Beginning</itunes:title>
      <media:enclosure url="https://cdn.example.com/alt/S01E01-alt.mp3"/>
    </item>
  </channel>
</rss>`

func TestParseIgnoresNamespacedElements(t *testing.T) {
	parsed, err := feed.Parse("mp3", strings.NewReader(namespacedRSS), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(parsed.Items))
	}
	item := parsed.Items[0]
	if item.EpisodeID != "S01E01" {
		t.Fatalf("episode id=%q, itunes:title must not replace the RSS title", item.EpisodeID)
	}
	if item.Title != "S01E01: Every New Beginning" {
		t.Fatalf("title=%q", item.Title)
	}
	if item.DeclaredHash != "abcdef0123" {
		t.Fatalf("declared hash=%q, podcast:guid must not replace the RSS guid", item.DeclaredHash)
	}
	if item.EnclosureURL != "https://cdn.example.com/media/mp3/S01E01.mp3" || item.Filename != "S01E01.mp3" {
		t.Fatalf("enclosure=%q filename=%q", item.EnclosureURL, item.Filename)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"broken xml", `<rss><channel><item><title>x</title>`},
		{"not rss", `<feed><entry/></feed>`},
		{"missing guid", `<rss><channel><item><title>S1: a</title><enclosure url="http://x/a.mp3"/></item></channel></rss>`},
		{"missing enclosure", `<rss><channel><item><title>S1: a</title><guid>aa</guid></item></channel></rss>`},
		{"empty enclosure url", `<rss><channel><item><title>S1: a</title><enclosure url=""/><guid>aa</guid></item></channel></rss>`},
		{"missing title", `<rss><channel><item><enclosure url="http://x/a.mp3"/><guid>aa</guid></item></channel></rss>`},
		{"only namespaced title", `<rss xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"><channel><item><itunes:title>S1: a</itunes:title><enclosure url="http://x/a.mp3"/><guid>aa</guid></item></channel></rss>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := feed.Parse("mp3", strings.NewReader(tt.doc), ":")
			if !errors.Is(err, feed.ErrMalformedFeed) {
				t.Fatalf("expected ErrMalformedFeed, got %v", err)
			}
		})
	}
}

func TestFetchIsolatesFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed/podcast.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sampleRSS)
	})
	mux.HandleFunc("/feed/oggcast.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<rss><channel><item>")
	})
	mux.HandleFunc("/feed/google.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := &feed.Fetcher{
		BaseURL: server.URL + "/",
		Paths: map[string]string{
			"mp3":    "/feed/podcast.xml",
			"ogg":    "/feed/oggcast.xml",
			"google": "feed/google.xml",
		},
		Timeout: 5 * time.Second,
		Client:  server.Client(),
	}
	results := f.Fetch(context.Background(), []string{"google", "mp3", "ogg", "itunes"})
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].Err == nil || !strings.Contains(results[0].Err.Error(), "410") {
		t.Fatalf("google: expected status error, got %v", results[0].Err)
	}
	if results[1].Err != nil || len(results[1].Feed.Items) != 2 {
		t.Fatalf("mp3: expected parsed feed, got %+v", results[1])
	}
	if results[1].Feed.URL != server.URL+"/feed/podcast.xml" {
		t.Fatalf("mp3: url=%q", results[1].Feed.URL)
	}
	if !errors.Is(results[2].Err, feed.ErrMalformedFeed) {
		t.Fatalf("ogg: expected ErrMalformedFeed, got %v", results[2].Err)
	}
	if results[3].Err == nil || !strings.Contains(results[3].Err.Error(), "unknown feed") {
		t.Fatalf("itunes: expected unknown feed error, got %v", results[3].Err)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := &feed.Fetcher{
		BaseURL: server.URL,
		Paths:   map[string]string{"mp3": "/slow.xml"},
		Timeout: 50 * time.Millisecond,
		Client:  server.Client(),
	}
	results := f.Fetch(context.Background(), []string{"mp3"})
	if !errors.Is(results[0].Err, feed.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", results[0].Err)
	}
}

func TestOpenStreamsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "audio")
	}))
	defer server.Close()

	f := &feed.Fetcher{Client: server.Client()}
	body, err := f.Open(context.Background(), server.URL+"/S01E01.mp3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil || string(data) != "audio" {
		t.Fatalf("body=%q err=%v", data, err)
	}

	if _, err := f.Open(context.Background(), server.URL+"/missing.mp3"); err == nil {
		t.Fatal("expected error for 404")
	}
}
