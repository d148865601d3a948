package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podsig/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs or show one run's results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			l, err := ctx.openLedger(cfg)
			if err != nil {
				return err
			}
			if l == nil {
				return errors.New("run history is disabled (ledger.enabled = false)")
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := l.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				writeRuns(out, runs)
				return nil
			}

			run, err := l.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			entries, err := l.Results(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Run     ledger.Run     `json:"run"`
					Results []ledger.Entry `json:"results"`
				}{run, entries})
			}
			writeRunDetail(out, run, entries, shouldColorize(out))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func writeRuns(out io.Writer, runs []ledger.Run) {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.Kind,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(run.Total),
			strconv.Itoa(run.Failures),
			strconv.Itoa(run.SignOps),
			yesNo(run.DryRun),
			run.Root,
		})
	}
	fmt.Fprintln(out, tableView{
		Headers: []string{"Run", "Kind", "Started", "Total", "Failures", "Signed", "Dry run", "Root"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	}.Render())
}

func writeRunDetail(out io.Writer, run ledger.Run, entries []ledger.Entry, colorize bool) {
	fmt.Fprintln(out, renderStatusLine("Run", statusInfo, run.ID, colorize))
	fmt.Fprintln(out, renderStatusLine("Kind", statusInfo, run.Kind, colorize))
	if run.Root != "" {
		fmt.Fprintln(out, renderStatusLine("Root", statusInfo, run.Root, colorize))
	}
	if len(run.Targets) > 0 {
		fmt.Fprintln(out, renderStatusLine("Targets", statusInfo, strings.Join(run.Targets, ", "), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(), colorize))

	statuses := make([]string, 0, len(run.Counts))
	for status := range run.Counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintln(out, renderStatusLine(status, statusInfo, strconv.Itoa(run.Counts[status]), colorize))
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Mode, e.Subject, e.Unit, e.Status, e.Reason})
	}
	fmt.Fprintln(out, tableView{
		Headers: []string{"Mode", "Episode", "Unit", "Status", "Reason"},
		Rows:    rows,
	}.Render())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
