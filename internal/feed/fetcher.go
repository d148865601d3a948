package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"podsig/internal/logging"
)

// ErrTimeout reports a request that exceeded its configured bound.
var ErrTimeout = errors.New("request timed out")

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Result is the outcome of fetching one named feed.
type Result struct {
	Name string
	Feed *Feed
	Err  error
}

// Fetcher retrieves feed documents relative to a base URL.
type Fetcher struct {
	BaseURL   string
	Paths     map[string]string
	Delimiter string
	// Timeout bounds each feed document request. Zero means no bound.
	Timeout time.Duration
	Client  HTTPDoer
	Logger  *slog.Logger
}

// Fetch retrieves and parses each named feed independently; a failure in one
// feed never prevents the others from being fetched.
func (f *Fetcher) Fetch(ctx context.Context, names []string) []Result {
	logger := logging.NewComponentLogger(f.Logger, "feed")
	results := make([]Result, 0, len(names))
	for _, name := range names {
		res := Result{Name: name}
		res.Feed, res.Err = f.fetchOne(ctx, name)
		if res.Err != nil {
			logging.WarnWithContext(logger, "feed unavailable", "feed_failed",
				logging.Feed(name),
				logging.Error(res.Err),
				logging.Impact("episodes from this feed are not checked"),
				logging.Hint("check feeds.base_url and feeds.paths"))
		} else {
			logger.Info("feed fetched",
				logging.Feed(name),
				logging.Int("items", len(res.Feed.Items)))
		}
		results = append(results, res)
	}
	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, name string) (*Feed, error) {
	rel, ok := f.Paths[name]
	if !ok {
		return nil, fmt.Errorf("unknown feed %q", name)
	}
	feedURL := strings.TrimRight(f.BaseURL, "/") + "/" + strings.TrimLeft(rel, "/")

	reqCtx := ctx
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	body, err := f.get(reqCtx, feedURL)
	if err != nil {
		return nil, classify(reqCtx, err)
	}
	defer body.Close()

	parsed, err := Parse(name, body, f.Delimiter)
	if err != nil {
		return nil, classify(reqCtx, err)
	}
	parsed.URL = feedURL
	return parsed, nil
}

// Open issues a GET for rawURL and returns the response body. The caller
// closes it; ctx bounds the whole transfer.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "podsig")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}
	return resp.Body, nil
}

// classify maps deadline expiry, whether from ctx or the transport, to
// ErrTimeout. The underlying error stays in the chain.
func classify(ctx context.Context, err error) error {
	if IsTimeout(ctx, err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// IsTimeout reports whether err (or ctx) reflects an expired deadline.
func IsTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
