package reconcile

import (
	"time"
)

// Status is the outcome label for one artifact.
type Status string

const (
	StatusValid    Status = "already-valid"
	StatusSigned   Status = "missing-signed"
	StatusResigned Status = "invalid-resigned"
	StatusFailed   Status = "sign-failed"

	// Dry-run outcomes.
	StatusWouldSign   Status = "would-sign"
	StatusWouldResign Status = "would-resign"
)

// Statuses lists every status in report order.
var Statuses = []Status{
	StatusValid,
	StatusSigned,
	StatusResigned,
	StatusWouldSign,
	StatusWouldResign,
	StatusFailed,
}

// Result is the typed outcome for one artifact.
type Result struct {
	Artifact  string
	Signature string
	Status    Status
	// Reason explains a re-sign or failure.
	Reason   string
	Err      error
	Duration time.Duration
}

// Failed reports whether the artifact ended without a valid signature.
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// Report aggregates one reconciliation run.
type Report struct {
	RunID      string
	Root       string
	DryRun     bool
	Targets    []string
	StartedAt  time.Time
	FinishedAt time.Time
	// Results are in traversal order, followed by one failed result per
	// directory that could not be listed.
	Results []Result
	SignOps int
}

// Counts tallies results by status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	if r == nil {
		return counts
	}
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Failures returns the failed results in traversal order.
func (r *Report) Failures() []Result {
	if r == nil {
		return nil
	}
	var out []Result
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
