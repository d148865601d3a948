package preflight

import (
	"podsig/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the local checks that gate a resign run.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Releases directory", cfg.Paths.ReleasesDir))
	results = append(results, CheckReadableDirectory("Key store", cfg.Signing.Keystore))
	results = append(results, CheckSigningKeys(cfg))
	results = append(results, CheckFeedBaseURL(cfg.Feeds.BaseURL))
	if cfg.Ledger.Enabled {
		results = append(results, CheckLedger(cfg))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
