package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"podsig/internal/config"
	"podsig/internal/feed"
	"podsig/internal/integrity"
	"podsig/internal/logging"
)

var errNoFeeds = errors.New("no feeds could be fetched")

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var live bool
	var directory string
	var feedNames []string
	var strict bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare feed-declared SHA-256 sums against published and local bytes",
		Long: `Fetch the configured feeds and print the SHA-256 each item declares in its guid.
With --live every enclosure is downloaded and hashed; with --directory every local
file whose name matches an enclosure is hashed. Both passes may run together.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runVerify(cmd, ctx, cfg, verifyOptions{
				Live:      live,
				Directory: directory,
				Feeds:     feedNames,
				Strict:    strict,
			})
		},
	}

	cmd.Flags().BoolVarP(&live, "live", "l", false, "Download every enclosure and compare its hash")
	cmd.Flags().StringVarP(&directory, "directory", "d", "", "Compare local copies found under this directory")
	cmd.Flags().StringSliceVarP(&feedNames, "feed", "f", nil, "Feeds to check (repeatable; defaults to feeds.default)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero on any mismatch or failed check")
	return cmd
}

type verifyOptions struct {
	Live      bool
	Directory string
	Feeds     []string
	Strict    bool
}

func runVerify(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, opts verifyOptions) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	names, err := selectFeeds(cfg, opts.Feeds)
	if err != nil {
		return err
	}

	var localRoot string
	if strings.TrimSpace(opts.Directory) != "" {
		localRoot, err = config.ExpandPath(opts.Directory)
		if err != nil {
			return fmt.Errorf("resolve --directory: %w", err)
		}
		info, err := os.Stat(localRoot)
		if err != nil {
			return fmt.Errorf("local directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("local directory: %s is not a directory", localRoot)
		}
	}

	logger, err := ctx.logger(cfg)
	if err != nil {
		return err
	}
	fetcher := &feed.Fetcher{
		BaseURL:   cfg.Feeds.BaseURL,
		Paths:     cfg.Feeds.Paths,
		Delimiter: cfg.Feeds.Delimiter,
		Timeout:   cfg.RequestTimeout(),
		Client:    &http.Client{},
		Logger:    logger,
	}

	runID := uuid.NewString()
	runCtx := logging.WithRunID(cmd.Context(), runID)

	var feeds []*feed.Feed
	var unavailable []string
	for _, res := range fetcher.Fetch(runCtx, names) {
		if res.Err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine(res.Name, statusError, res.Err.Error(), shouldColorize(cmd.ErrOrStderr())))
			unavailable = append(unavailable, res.Name)
			continue
		}
		feeds = append(feeds, res.Feed)
	}
	if len(feeds) == 0 {
		if err := runCtx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", errNoFeeds, strings.Join(names, ", "))
	}

	if !opts.Live && localRoot == "" {
		writeDeclaredTable(out, integrity.Declared(feeds), colorize)
		writeUnavailable(out, unavailable, colorize)
		if opts.Strict && len(unavailable) > 0 {
			return fmt.Errorf("%d feed(s) could not be fetched", len(unavailable))
		}
		return nil
	}

	cmp := &integrity.Comparator{
		Source:  fetcher,
		Workers: cfg.Feeds.Workers,
		Timeout: cfg.DownloadTimeout(),
		Logger:  logger,
	}
	var passes []integrity.Pass
	if opts.Live {
		passes = append(passes, cmp.Live(runCtx, feeds))
	}
	if localRoot != "" {
		pass, err := cmp.Local(runCtx, localRoot, feeds)
		if err != nil {
			return err
		}
		passes = append(passes, pass)
	}

	if err := recordVerify(runCtx, ctx, cfg, runID, passes); err != nil {
		logging.WarnWithContext(logger, "run history not recorded", "ledger_write_failed",
			logging.Error(err),
			logging.Impact("podsig history will not list this run"))
	}

	problems := len(unavailable)
	for _, pass := range passes {
		writePass(out, pass, colorize)
		problems += len(pass.Mismatches()) + len(pass.Failures())
	}
	writeUnavailable(out, unavailable, colorize)
	fmt.Fprintln(out, renderStatusLine("run", statusInfo, runID, colorize))

	if err := runCtx.Err(); err != nil {
		return err
	}
	if opts.Strict && problems > 0 {
		return fmt.Errorf("%d check(s) did not match or could not run", problems)
	}
	return nil
}

func writeUnavailable(out io.Writer, names []string, colorize bool) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintln(out, renderStatusLine("feeds unavailable", statusError, strings.Join(names, ", "), colorize))
}

// selectFeeds validates requested names against the configured feed set.
func selectFeeds(cfg *config.Config, requested []string) ([]string, error) {
	known := cfg.FeedNames()
	if len(requested) == 0 {
		if len(cfg.Feeds.Default) > 0 {
			return cfg.Feeds.Default, nil
		}
		if len(known) == 0 {
			return nil, errors.New("no feeds configured (see [feeds.paths])")
		}
		return known, nil
	}
	var names []string
	seen := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := cfg.Feeds.Paths[name]; !ok {
			return nil, fmt.Errorf("unknown feed %q (choose from %s)", name, strings.Join(known, ", "))
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errors.New("--feed requires a feed name")
	}
	return names, nil
}

func recordVerify(cmdCtx context.Context, ctx *commandContext, cfg *config.Config, runID string, passes []integrity.Pass) error {
	l, err := ctx.openLedger(cfg)
	if err != nil || l == nil {
		return err
	}
	defer l.Close()
	return l.RecordVerify(context.WithoutCancel(cmdCtx), runID, passes)
}

func writeDeclaredTable(out io.Writer, table integrity.Table, colorize bool) {
	headers := append([]string{"Episode"}, table.Feeds...)
	rows := make([][]string, 0, len(table.Rows))
	for i, row := range table.Rows {
		cells := []string{paint(row.EpisodeID, statusInfo, colorize)}
		for _, name := range table.Feeds {
			cell := table.Cell(i, name)
			if cell == "" {
				cell = "-"
			}
			cells = append(cells, cell)
		}
		rows = append(rows, cells)
	}
	fmt.Fprintln(out, tableView{
		Title:   "Declared SHA-256",
		Headers: headers,
		Rows:    rows,
	}.Render())
}

func writePass(out io.Writer, pass integrity.Pass, colorize bool) {
	rows := make([][]string, 0, len(pass.Checks))
	for _, check := range pass.Checks {
		detail := check.Reason
		if check.Status == integrity.StatusMatch {
			detail = check.Actual
		}
		rows = append(rows, []string{
			check.EpisodeID,
			check.Feed,
			check.Source,
			paint(string(check.Status), checkStatusKind(check.Status), colorize),
			detail,
		})
	}
	title := "Live enclosures"
	if pass.Mode == integrity.ModeLocal {
		title = "Local copies under " + pass.Root
	}
	fmt.Fprintln(out, tableView{
		Title:   title,
		Headers: []string{"Episode", "Feed", "Source", "Status", "Detail"},
		Rows:    rows,
	}.Render())

	counts := pass.Counts()
	fmt.Fprintln(out)
	for _, status := range []integrity.CheckStatus{integrity.StatusMatch, integrity.StatusMismatch, integrity.StatusFailed, integrity.StatusAbsent} {
		if counts[status] == 0 {
			continue
		}
		fmt.Fprintln(out, renderStatusLine(string(status), checkStatusKind(status), strconv.Itoa(counts[status]), colorize))
	}
	fmt.Fprintln(out)
}
