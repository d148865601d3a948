package integrity

import "time"

// Mode names a verification pass.
type Mode string

const (
	ModeLive  Mode = "live"
	ModeLocal Mode = "local"
)

// CheckStatus is the outcome of hashing one source.
type CheckStatus string

const (
	StatusMatch    CheckStatus = "match"
	StatusMismatch CheckStatus = "mismatch"
	StatusFailed   CheckStatus = "failed"
	// StatusAbsent marks a declared file with no local copy. Informational.
	StatusAbsent CheckStatus = "absent"
)

// Check is one declared hash compared against one source of bytes.
type Check struct {
	Mode      Mode
	Feed      string
	EpisodeID string
	Filename  string
	// Source is the enclosure URL (live) or local path (local).
	Source   string
	Declared string
	Actual   string
	Status   CheckStatus
	Reason   string
	Err      error
}

// Pass is the independent result stream of one mode.
type Pass struct {
	Mode       Mode
	Root       string
	Checks     []Check
	StartedAt  time.Time
	FinishedAt time.Time
}

// Mismatches returns checks whose bytes differ from the declared hash.
func (p Pass) Mismatches() []Check {
	return p.filter(StatusMismatch)
}

// Failures returns checks that could not be completed.
func (p Pass) Failures() []Check {
	return p.filter(StatusFailed)
}

// Counts tallies checks by status.
func (p Pass) Counts() map[CheckStatus]int {
	counts := make(map[CheckStatus]int, 4)
	for _, c := range p.Checks {
		counts[c.Status]++
	}
	return counts
}

func (p Pass) filter(status CheckStatus) []Check {
	var out []Check
	for _, c := range p.Checks {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}
