// Package reconcile brings every published artifact under a release root to a
// valid detached-signature state. A second run over an unchanged tree
// performs no signing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"podsig/internal/fileutil"
	"podsig/internal/logging"
	"podsig/internal/signer"
	"podsig/internal/sigstore"
)

const defaultWorkers = 4

var (
	// ErrRootMissing reports a release root that is absent or not a directory.
	ErrRootMissing = errors.New("release root missing")
	// ErrLocked reports another reconciliation holding the run lock.
	ErrLocked = errors.New("another reconciliation is running")
)

// Service signs and verifies artifact bytes.
type Service interface {
	Targets() []string
	Verify(ctx context.Context, open signer.Opener, signature []byte) signer.Verification
	Sign(ctx context.Context, open signer.Opener) ([]byte, error)
}

// Options configures a Reconciler.
type Options struct {
	Root       string
	Extensions []string
	Workers    int
	DryRun     bool
	// LockPath is flocked for the duration of Run. Empty disables locking.
	LockPath string
}

// Reconciler drives the scan, verify, re-sign loop.
type Reconciler struct {
	opts    Options
	service Service
	store   *sigstore.Store
	logger  *slog.Logger
	dirFS   func(root string) fs.FS

	signOps int
	mu      sync.Mutex
}

// New constructs a Reconciler.
func New(opts Options, service Service, store *sigstore.Store, logger *slog.Logger) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if store == nil {
		store = sigstore.New("")
	}
	return &Reconciler{
		opts:    opts,
		service: service,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "reconcile"),
		dirFS:   os.DirFS,
	}
}

// Run reconciles every artifact under the root. Per-artifact failures are
// recorded in the report; the error return is reserved for process-level
// failures and cancellation, in which case the partial report is returned too.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	if r.service == nil {
		return nil, errors.New("reconcile: no signing service")
	}
	unlock, err := r.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	root := r.opts.Root
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootMissing, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootMissing, root)
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Root:      root,
		DryRun:    r.opts.DryRun,
		Targets:   r.service.Targets(),
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, r.logger)

	artifacts, unreadable, err := discover(r.dirFS(root), root, r.opts.Extensions)
	if err != nil {
		return nil, err
	}
	logger.Info("reconcile started",
		logging.String("root", root),
		logging.Int("artifacts", len(artifacts)),
		logging.Int("unreadable_dirs", len(unreadable)),
		logging.Int("workers", r.opts.Workers),
		logging.Bool("dry_run", r.opts.DryRun))

	r.mu.Lock()
	r.signOps = 0
	r.mu.Unlock()

	results := make([]Result, len(artifacts))
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, artifact := range artifacts {
		if ctx.Err() != nil {
			results[i] = r.cancelled(artifact, ctx.Err())
			continue
		}
		g.Go(func() error {
			start := time.Now()
			res := r.reconcileOne(ctx, logger, artifact)
			res.Duration = time.Since(start)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for _, werr := range unreadable {
		results = append(results, r.walkFailed(logger, werr))
	}
	report.Results = results
	report.FinishedAt = time.Now().UTC()
	r.mu.Lock()
	report.SignOps = r.signOps
	r.mu.Unlock()

	counts := report.Counts()
	logger.Info("reconcile finished",
		logging.Int(string(StatusValid), counts[StatusValid]),
		logging.Int(string(StatusSigned), counts[StatusSigned]),
		logging.Int(string(StatusResigned), counts[StatusResigned]),
		logging.Int(string(StatusFailed), counts[StatusFailed]),
		logging.Int("sign_ops", report.SignOps),
		logging.Duration("duration", report.Duration()))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Reconciler) acquireLock() (func(), error) {
	if r.opts.LockPath == "" {
		return func() {}, nil
	}
	if err := fileutil.EnsureDir(filepath.Dir(r.opts.LockPath)); err != nil {
		return nil, err
	}
	lock := flock.New(r.opts.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, r.opts.LockPath)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, logger *slog.Logger, artifact string) Result {
	sigPath := r.store.PathFor(artifact)
	res := Result{Artifact: artifact, Signature: sigPath}
	logger = logger.With(logging.Artifact(artifact))

	if err := ctx.Err(); err != nil {
		return r.cancelled(artifact, err)
	}

	info, err := os.Stat(artifact)
	if err != nil {
		return r.fail(logger, res, "artifact unreadable", err)
	}
	if info.Size() == 0 {
		return r.fail(logger, res, "artifact is empty", errors.New("zero-length artifact"))
	}
	open := func() (io.ReadCloser, error) { return os.Open(artifact) }

	existing, err := r.store.Read(sigPath)
	missing := errors.Is(err, sigstore.ErrNotFound)
	switch {
	case missing:
		res.Reason = "no signature"
	case err != nil:
		res.Reason = err.Error()
	default:
		v := r.service.Verify(ctx, open, existing)
		if ctx.Err() != nil {
			return r.cancelled(artifact, ctx.Err())
		}
		if v.Valid {
			res.Status = StatusValid
			logger.Debug("signature valid", logging.Status(string(res.Status)))
			return res
		}
		res.Reason = v.Reason()
	}

	if r.opts.DryRun {
		res.Status = StatusWouldResign
		if missing {
			res.Status = StatusWouldSign
		}
		logger.Info("signature needs update", logging.Status(string(res.Status)), logging.String("reason", res.Reason))
		return res
	}

	sig, err := r.service.Sign(ctx, open)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(artifact, ctx.Err())
		}
		return r.fail(logger, res, "signing failed", err)
	}
	r.mu.Lock()
	r.signOps++
	r.mu.Unlock()

	if err := r.store.Write(ctx, sigPath, sig); err != nil {
		if ctx.Err() != nil {
			return r.cancelled(artifact, ctx.Err())
		}
		return r.fail(logger, res, "signature write failed", err)
	}

	res.Status = StatusResigned
	if missing {
		res.Status = StatusSigned
	}
	logger.Info("signature written",
		logging.Signature(sigPath),
		logging.Status(string(res.Status)),
		logging.String("reason", res.Reason))
	return res
}

func (r *Reconciler) fail(logger *slog.Logger, res Result, msg string, err error) Result {
	res.Status = StatusFailed
	res.Err = err
	res.Reason = fmt.Sprintf("%s: %v", msg, err)
	logging.WarnWithContext(logger, msg, "sign_failed",
		logging.Error(err),
		logging.Status(string(res.Status)),
		logging.Impact("artifact left without a valid signature"),
		logging.Hint("check the artifact and key store, then rerun podsig resign"))
	return res
}

func (r *Reconciler) walkFailed(logger *slog.Logger, werr WalkError) Result {
	logging.WarnWithContext(logger, "directory unreadable", "walk_failed",
		logging.String("directory", werr.Path),
		logging.Error(werr.Err),
		logging.Impact("artifacts below this directory were not reconciled"),
		logging.Hint("fix the directory permissions, then rerun podsig resign"))
	return Result{
		Artifact: werr.Path,
		Status:   StatusFailed,
		Err:      werr,
		Reason:   fmt.Sprintf("directory unreadable: %v", werr.Err),
	}
}

func (r *Reconciler) cancelled(artifact string, err error) Result {
	return Result{
		Artifact:  artifact,
		Signature: r.store.PathFor(artifact),
		Status:    StatusFailed,
		Err:       err,
		Reason:    fmt.Sprintf("cancelled: %v", err),
	}
}
