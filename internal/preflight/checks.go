package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"podsig/internal/config"
	"podsig/internal/signer"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if r, ok := statDirectory(name, path); !ok {
		return r
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	if r, ok := statDirectory(name, path); !ok {
		return r
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

func statDirectory(name, path string) (Result, bool) {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}, false
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}, false
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}, false
	}
	return Result{}, true
}

// CheckSigningKeys verifies that the key store yields at least one key able to
// sign for the configured identifiers.
func CheckSigningKeys(cfg *config.Config) Result {
	const name = "Signing keys"

	store, err := signer.OpenKeyStore(cfg.Signing.Keystore)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	s, err := signer.New(store, signer.Options{KeyIDs: cfg.Signing.Keys, Armor: cfg.Signing.Armor})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	targets := s.Targets()
	if len(cfg.Signing.Keys) > 0 && len(targets) < len(cfg.Signing.Keys) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d of %d configured keys usable", len(targets), len(cfg.Signing.Keys))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d signing target(s): %s", len(targets), strings.Join(targets, ", "))}
}

// CheckLedger verifies that the run history database location is writable.
func CheckLedger(cfg *config.Config) Result {
	const name = "Run ledger"

	dir := filepath.Dir(cfg.Ledger.Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Created on first use under the state directory.
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", cfg.Ledger.Path)}
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not writable: %v)", dir, err)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Ledger.Path}
}

// CheckFeedBaseURL verifies that the feed base URL is an absolute http(s) URL.
func CheckFeedBaseURL(baseURL string) Result {
	const name = "Feed base URL"

	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	u, err := url.ParseRequestURI(base)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: expected http or https url)", base)}
	}
	return Result{Name: name, Passed: true, Detail: base}
}

// CheckFeedEndpoint verifies that the feed base URL answers over HTTP.
func CheckFeedEndpoint(ctx context.Context, baseURL string) Result {
	const name = "Feed endpoint"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, base+"/", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d)", base, resp.StatusCode)}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out (feed host unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out (feed host unreachable)"
	}
	return err.Error()
}
