// Package integrity compares the SHA-256 each feed item declares against the
// bytes actually served (live mode) and against local copies (local mode).
// Both passes only detect and report drift; neither modifies anything.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"podsig/internal/feed"
	"podsig/internal/hasher"
	"podsig/internal/logging"
)

const defaultWorkers = 2

// Source opens the bytes behind an enclosure URL.
type Source interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Comparator runs live and local verification passes.
type Comparator struct {
	Source Source
	// Workers bounds concurrent downloads or file hashes.
	Workers int
	// Timeout bounds each live enclosure transfer. Zero means no bound.
	Timeout time.Duration
	Logger  *slog.Logger

	dirFS func(root string) fs.FS
}

func (c *Comparator) workers() int {
	if c.Workers <= 0 {
		return defaultWorkers
	}
	return c.Workers
}

func (c *Comparator) logger() *slog.Logger {
	return logging.NewComponentLogger(c.Logger, "integrity")
}

// Live hashes every item's enclosure and compares it to the declared hash.
// Failures and mismatches are per item; the pass always covers every item.
func (c *Comparator) Live(ctx context.Context, feeds []*feed.Feed) Pass {
	pass := Pass{Mode: ModeLive, StartedAt: time.Now().UTC()}
	logger := logging.WithContext(ctx, c.logger())

	var items []feed.Item
	for _, f := range feeds {
		if f != nil {
			items = append(items, f.Items...)
		}
	}
	pass.Checks = make([]Check, len(items))

	var g errgroup.Group
	g.SetLimit(c.workers())
	for i, item := range items {
		check := Check{
			Mode:      ModeLive,
			Feed:      item.Feed,
			EpisodeID: item.EpisodeID,
			Filename:  item.Filename,
			Source:    item.EnclosureURL,
			Declared:  item.DeclaredHash,
		}
		if err := ctx.Err(); err != nil {
			pass.Checks[i] = failed(check, err)
			continue
		}
		g.Go(func() error {
			pass.Checks[i] = c.liveOne(ctx, logger, check)
			return nil
		})
	}
	_ = g.Wait()
	pass.FinishedAt = time.Now().UTC()
	return pass
}

func (c *Comparator) liveOne(ctx context.Context, logger *slog.Logger, check Check) Check {
	if c.Source == nil {
		return failed(check, errors.New("no enclosure source configured"))
	}
	itemCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	logger.Debug("fetching live sum",
		logging.Feed(check.Feed),
		logging.Episode(check.EpisodeID),
		logging.Source(check.Source))

	body, err := c.Source.Open(itemCtx, check.Source)
	if err != nil {
		return c.report(logger, failedCtx(itemCtx, check, err))
	}
	defer body.Close()
	actual, err := hasher.SumContext(itemCtx, body)
	if err != nil {
		return c.report(logger, failedCtx(itemCtx, check, err))
	}
	return c.report(logger, compare(check, actual))
}

// Local checks every declared (filename, hash) pair against each file of
// that name under root. root must be a directory. Subdirectories that cannot
// be listed become failed checks instead of aborting the pass.
func (c *Comparator) Local(ctx context.Context, root string, feeds []*feed.Feed) (Pass, error) {
	pass := Pass{Mode: ModeLocal, Root: root, StartedAt: time.Now().UTC()}
	info, err := os.Stat(root)
	if err != nil {
		return pass, fmt.Errorf("local directory: %w", err)
	}
	if !info.IsDir() {
		return pass, fmt.Errorf("local directory: %s is not a directory", root)
	}
	logger := logging.WithContext(ctx, c.logger())

	fsys := os.DirFS(root)
	if c.dirFS != nil {
		fsys = c.dirFS(root)
	}
	index, unreadable, err := indexFiles(fsys, root)
	if err != nil {
		return pass, err
	}
	absentReason := "no local copy"
	if len(unreadable) > 0 {
		absentReason = fmt.Sprintf("no local copy in the readable tree (%d directories skipped)", len(unreadable))
	}

	var jobs []Check
	seen := make(map[[2]string]struct{})
	for _, f := range feeds {
		if f == nil {
			continue
		}
		for _, item := range f.Items {
			key := [2]string{norm.NFC.String(item.Filename), item.DeclaredHash}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			base := Check{
				Mode:      ModeLocal,
				Feed:      item.Feed,
				EpisodeID: item.EpisodeID,
				Filename:  item.Filename,
				Declared:  item.DeclaredHash,
			}
			matches := index[key[0]]
			if len(matches) == 0 {
				base.Status = StatusAbsent
				base.Reason = absentReason
				jobs = append(jobs, base)
				continue
			}
			for _, path := range matches {
				check := base
				check.Source = path
				jobs = append(jobs, check)
			}
		}
	}

	pass.Checks = make([]Check, len(jobs))
	var g errgroup.Group
	g.SetLimit(c.workers())
	for i, check := range jobs {
		if check.Status == StatusAbsent {
			pass.Checks[i] = check
			logger.Debug("no local copy",
				logging.Episode(check.EpisodeID),
				logging.String("file", check.Filename))
			continue
		}
		if err := ctx.Err(); err != nil {
			pass.Checks[i] = failed(check, err)
			continue
		}
		g.Go(func() error {
			logger.Info("checking local file", logging.Source(check.Source))
			actual, err := hasher.File(ctx, check.Source)
			if err != nil {
				pass.Checks[i] = c.report(logger, failed(check, err))
				return nil
			}
			pass.Checks[i] = c.report(logger, compare(check, actual))
			return nil
		})
	}
	_ = g.Wait()

	for _, dir := range unreadable {
		check := failed(Check{Mode: ModeLocal, Source: dir.path}, dir.err)
		check.Reason = "directory unreadable: " + dir.err.Error()
		logging.WarnWithContext(logger, "directory unreadable", "walk_failed",
			logging.Source(check.Source),
			logging.Status(string(check.Status)),
			logging.Error(dir.err),
			logging.Impact("local copies below this directory were not checked"),
			logging.Hint("fix the directory permissions, then rerun podsig verify"))
		pass.Checks = append(pass.Checks, check)
	}
	pass.FinishedAt = time.Now().UTC()
	return pass, nil
}

type walkError struct {
	path string
	err  error
}

// indexFiles maps NFC-normalised basenames to the sorted paths carrying them.
// Subdirectories that cannot be listed are skipped and returned.
func indexFiles(fsys fs.FS, root string) (map[string][]string, []walkError, error) {
	index := make(map[string][]string)
	var unreadable []walkError
	err := fs.WalkDir(fsys, ".", func(rel string, d fs.DirEntry, err error) error {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err != nil {
			if rel == "." || d == nil || !d.IsDir() {
				return err
			}
			unreadable = append(unreadable, walkError{path: path, err: err})
			return fs.SkipDir
		}
		if d.Type().IsRegular() {
			name := norm.NFC.String(d.Name())
			index[name] = append(index[name], path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, err)
	}
	for _, paths := range index {
		sort.Strings(paths)
	}
	return index, unreadable, nil
}

func compare(check Check, actual string) Check {
	check.Actual = actual
	if hasher.Equal(actual, check.Declared) {
		check.Status = StatusMatch
		return check
	}
	check.Status = StatusMismatch
	check.Err = &hasher.ChecksumError{Source: check.Source, Expected: check.Declared, Actual: actual}
	check.Reason = fmt.Sprintf("declared %s does not match actual %s", check.Declared, actual)
	return check
}

func failed(check Check, err error) Check {
	check.Status = StatusFailed
	check.Err = err
	check.Reason = err.Error()
	return check
}

func failedCtx(ctx context.Context, check Check, err error) Check {
	check = failed(check, err)
	if feed.IsTimeout(ctx, err) {
		check.Reason = "timeout: " + err.Error()
		if !errors.Is(err, feed.ErrTimeout) {
			check.Err = fmt.Errorf("%w: %w", feed.ErrTimeout, err)
		}
	}
	return check
}

func (c *Comparator) report(logger *slog.Logger, check Check) Check {
	attrs := []logging.Attr{
		logging.Feed(check.Feed),
		logging.Episode(check.EpisodeID),
		logging.Source(check.Source),
		logging.Status(string(check.Status)),
	}
	switch check.Status {
	case StatusMismatch:
		attrs = append(attrs,
			logging.String("declared", check.Declared),
			logging.String("actual", check.Actual),
			logging.Alert("hash_mismatch"),
			logging.Impact("published bytes differ from the feed GUID"))
		logging.WarnWithContext(logger, "declared hash does not match", "hash_mismatch", attrs...)
	case StatusFailed:
		attrs = append(attrs, logging.Error(check.Err))
		logging.WarnWithContext(logger, "integrity check failed", "check_failed", attrs...)
	default:
		logger.Debug("hash verified", logging.Args(attrs...)...)
	}
	return check
}
