package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"podsig/internal/fileutil"
	"podsig/internal/integrity"
	"podsig/internal/reconcile"
)

// Run kinds.
const (
	KindResign = "resign"
	KindVerify = "verify"
)

// ErrRunNotFound reports an unknown or ambiguous run id.
var ErrRunNotFound = errors.New("run not found")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger is the SQLite-backed run history.
type Ledger struct {
	db   *sql.DB
	path string
}

// Run summarises one recorded run.
type Run struct {
	ID         string
	Kind       string
	Root       string
	Targets    []string
	DryRun     bool
	Total      int
	Failures   int
	SignOps    int
	Counts     map[string]int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Entry is one recorded unit of work.
type Entry struct {
	RunID string
	Seq   int
	// Mode is "resign", "live" or "local".
	Mode string
	// Unit is an artifact path, enclosure URL or local file.
	Unit string
	// Subject is the episode id for verify entries.
	Subject string
	Status  string
	Reason  string
}

// Open creates or connects to the ledger database at path.
func Open(path string) (*Ledger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// RecordReconcile stores a reconciliation report.
func (l *Ledger) RecordReconcile(ctx context.Context, report *reconcile.Report) error {
	if report == nil {
		return errors.New("nil report")
	}
	counts := make(map[string]int)
	for status, n := range report.Counts() {
		counts[string(status)] = n
	}
	run := Run{
		ID:         report.RunID,
		Kind:       KindResign,
		Root:       report.Root,
		Targets:    report.Targets,
		DryRun:     report.DryRun,
		Total:      len(report.Results),
		Failures:   len(report.Failures()),
		SignOps:    report.SignOps,
		Counts:     counts,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	entries := make([]Entry, 0, len(report.Results))
	for i, res := range report.Results {
		entries = append(entries, Entry{
			Seq:    i,
			Mode:   KindResign,
			Unit:   res.Artifact,
			Status: string(res.Status),
			Reason: res.Reason,
		})
	}
	return l.record(ctx, run, entries)
}

// RecordVerify stores the passes of one verify run under runID.
func (l *Ledger) RecordVerify(ctx context.Context, runID string, passes []integrity.Pass) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("empty run id")
	}
	run := Run{ID: runID, Kind: KindVerify, Counts: map[string]int{}}
	var entries []Entry
	for _, pass := range passes {
		if pass.Root != "" {
			run.Root = pass.Root
		}
		if run.StartedAt.IsZero() || (!pass.StartedAt.IsZero() && pass.StartedAt.Before(run.StartedAt)) {
			run.StartedAt = pass.StartedAt
		}
		if pass.FinishedAt.After(run.FinishedAt) {
			run.FinishedAt = pass.FinishedAt
		}
		for _, check := range pass.Checks {
			run.Total++
			run.Counts[string(check.Status)]++
			if check.Status == integrity.StatusMismatch || check.Status == integrity.StatusFailed {
				run.Failures++
			}
			entries = append(entries, Entry{
				Seq:     len(entries),
				Mode:    string(pass.Mode),
				Unit:    check.Source,
				Subject: check.EpisodeID,
				Status:  string(check.Status),
				Reason:  check.Reason,
			})
		}
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}
	return l.record(ctx, run, entries)
}

func (l *Ledger) record(ctx context.Context, run Run, entries []Entry) error {
	ctx = ensureContext(ctx)
	countsJSON, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}
	return retryOnBusy(ctx, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin record tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO runs (id, kind, root, targets, dry_run, total, failures, sign_ops, counts_json, started_at, finished_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Kind, nullableString(run.Root), nullableString(strings.Join(run.Targets, ",")),
			boolToInt(run.DryRun), run.Total, run.Failures, run.SignOps, string(countsJSON),
			run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO results (run_id, seq, mode, unit, subject, status, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare results: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, run.ID, e.Seq, e.Mode, e.Unit,
				nullableString(e.Subject), e.Status, nullableString(e.Reason)); err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit record: %w", err)
		}
		return nil
	})
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT id, kind, root, targets, dry_run, total, failures, sign_ops, counts_json, started_at, finished_at
              FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run whose id equals or uniquely starts with idPrefix.
func (l *Ledger) Get(ctx context.Context, idPrefix string) (Run, error) {
	ctx = ensureContext(ctx)
	idPrefix = strings.TrimSpace(idPrefix)
	if idPrefix == "" {
		return Run{}, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, kind, root, targets, dry_run, total, failures, sign_ops, counts_json, started_at, finished_at
         FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(idPrefix), idPrefix)
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, idPrefix)
	case 1:
		return found[0], nil
	default:
		return Run{}, fmt.Errorf("%w: %s is ambiguous", ErrRunNotFound, idPrefix)
	}
}

// Results returns the recorded units of runID in recorded order.
func (l *Ledger) Results(ctx context.Context, runID string) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, seq, mode, unit, subject, status, reason FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var subject, reason sql.NullString
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Mode, &e.Unit, &subject, &e.Status, &reason); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		e.Subject = subject.String
		e.Reason = reason.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                 Run
		root, targets, cj   sql.NullString
		dryRun              int
		startedAt, finished string
	)
	if err := row.Scan(&run.ID, &run.Kind, &root, &targets, &dryRun, &run.Total, &run.Failures,
		&run.SignOps, &cj, &startedAt, &finished); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Root = root.String
	if targets.String != "" {
		run.Targets = strings.Split(targets.String, ",")
	}
	run.DryRun = dryRun != 0
	run.Counts = map[string]int{}
	if cj.Valid && cj.String != "" {
		if err := json.Unmarshal([]byte(cj.String), &run.Counts); err != nil {
			return Run{}, fmt.Errorf("decode counts for %s: %w", run.ID, err)
		}
	}
	run.StartedAt, _ = time.Parse(timeLayout, startedAt)
	run.FinishedAt, _ = time.Parse(timeLayout, finished)
	return run, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
