package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podsig/internal/config"
	"podsig/internal/logging"
	"podsig/internal/preflight"
	"podsig/internal/reconcile"
	"podsig/internal/signer"
	"podsig/internal/sigstore"
)

func newResignCommand(ctx *commandContext) *cobra.Command {
	var rootFlag string
	var workers int
	var dryRun bool
	var strict bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resign",
		Short: "Verify detached signatures and sign artifacts that lack a valid one",
		Long: `Walk the releases tree and bring every artifact to a valid detached-signature
state. Signatures live in a gpg/ directory beside each flavor directory. Artifacts
whose signature already verifies for every signing key are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCfg := *cfg
			if strings.TrimSpace(rootFlag) != "" {
				root, err := config.ExpandPath(rootFlag)
				if err != nil {
					return fmt.Errorf("resolve --root: %w", err)
				}
				runCfg.Paths.ReleasesDir = root
			}
			if workers > 0 {
				runCfg.Signing.Workers = workers
			}
			return runResign(cmd, ctx, &runCfg, dryRun, strict, asJSON)
		},
	}

	cmd.Flags().StringVar(&rootFlag, "root", "", "Releases root to reconcile (defaults to paths.releases_dir)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent artifacts (defaults to signing.workers)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report what would be signed without writing signatures")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any artifact fails to sign")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func runResign(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, dryRun, strict, asJSON bool) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	if failed := preflight.Failed(preflight.RunAll(cfg)); len(failed) > 0 {
		for _, r := range failed {
			fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine(r.Name, statusError, r.Detail, shouldColorize(cmd.ErrOrStderr())))
		}
		names := make([]string, 0, len(failed))
		for _, r := range failed {
			names = append(names, strings.ToLower(r.Name))
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}

	logger, err := ctx.logger(cfg)
	if err != nil {
		return err
	}

	keys, err := signer.OpenKeyStore(cfg.Signing.Keystore)
	if err != nil {
		return err
	}
	svc, err := signer.New(keys, signer.Options{
		KeyIDs: cfg.Signing.Keys,
		Armor:  cfg.Signing.Armor,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	rec := reconcile.New(reconcile.Options{
		Root:       cfg.Paths.ReleasesDir,
		Extensions: cfg.Signing.Extensions,
		Workers:    cfg.Signing.Workers,
		DryRun:     dryRun,
		LockPath:   cfg.LockPath(),
	}, svc, sigstore.New(cfg.Signing.SignatureExtension), logger)

	report, runErr := rec.Run(cmd.Context())
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logging.ErrorWithContext(logger, "reconcile aborted", "reconcile_aborted",
			logging.Error(runErr),
			logging.String("root", cfg.Paths.ReleasesDir))
	}
	if report == nil {
		return runErr
	}

	if err := recordReconcile(cmd.Context(), ctx, cfg, report); err != nil {
		logging.WarnWithContext(logger, "run history not recorded", "ledger_write_failed",
			logging.Error(err),
			logging.Impact("podsig history will not list this run"))
	}

	if asJSON {
		if err := writeJSON(cmd, reconcileJSON(report)); err != nil {
			return err
		}
	} else {
		writeReconcileReport(out, report, colorize)
	}

	if runErr != nil {
		return runErr
	}
	if failures := report.Failures(); strict && len(failures) > 0 {
		return fmt.Errorf("%d artifact(s) failed to sign", len(failures))
	}
	return nil
}

func recordReconcile(cmdCtx context.Context, ctx *commandContext, cfg *config.Config, report *reconcile.Report) error {
	l, err := ctx.openLedger(cfg)
	if err != nil || l == nil {
		return err
	}
	defer l.Close()
	// Interrupted runs are still recorded.
	return l.RecordReconcile(context.WithoutCancel(cmdCtx), report)
}

func writeReconcileReport(out io.Writer, report *reconcile.Report, colorize bool) {
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		rows = append(rows, []string{
			relativeTo(report.Root, res.Artifact),
			paint(string(res.Status), reconcileStatusKind(res.Status), colorize),
			res.Reason,
		})
	}
	title := "Signature reconciliation"
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(out, tableView{
		Title:   title,
		Headers: []string{"Artifact", "Status", "Reason"},
		Rows:    rows,
	}.Render())

	counts := report.Counts()
	fmt.Fprintln(out)
	for _, status := range reconcile.Statuses {
		if counts[status] == 0 {
			continue
		}
		fmt.Fprintln(out, renderStatusLine(string(status), reconcileStatusKind(status), strconv.Itoa(counts[status]), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("sign operations", statusInfo, strconv.Itoa(report.SignOps), colorize))
	fmt.Fprintln(out, renderStatusLine("run", statusInfo, fmt.Sprintf("%s (%s)", report.RunID, report.Duration().Round(time.Millisecond)), colorize))
}

type reconcileResultJSON struct {
	Artifact  string `json:"artifact"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type reconcileReportJSON struct {
	RunID   string                `json:"run_id"`
	Root    string                `json:"root"`
	DryRun  bool                  `json:"dry_run"`
	Targets []string              `json:"targets"`
	SignOps int                   `json:"sign_ops"`
	Counts  map[string]int        `json:"counts"`
	Results []reconcileResultJSON `json:"results"`
}

func reconcileJSON(report *reconcile.Report) reconcileReportJSON {
	out := reconcileReportJSON{
		RunID:   report.RunID,
		Root:    report.Root,
		DryRun:  report.DryRun,
		Targets: report.Targets,
		SignOps: report.SignOps,
		Counts:  map[string]int{},
		Results: make([]reconcileResultJSON, 0, len(report.Results)),
	}
	for status, n := range report.Counts() {
		out.Counts[string(status)] = n
	}
	for _, res := range report.Results {
		out.Results = append(out.Results, reconcileResultJSON{
			Artifact:  res.Artifact,
			Signature: res.Signature,
			Status:    string(res.Status),
			Reason:    res.Reason,
		})
	}
	return out
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
