package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podsig/internal/config"
	"podsig/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

type envOption func(*config.Config)

func setupCLITestEnv(t *testing.T, opts ...envOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("PODSIG_KEYSTORE", "")

	cfg.Signing.Keys = testsupport.WriteSecretKeys(t, cfg.Signing.Keystore, "release")
	cfg.Feeds.Paths = map[string]string{"mp3": "/feed/podcast.xml", "ogg": "/feed/oggcast.xml"}
	cfg.Feeds.Default = []string{"mp3", "ogg"}
	for _, opt := range opts {
		opt(cfg)
	}

	configPath := filepath.Join(homeDir, ".config", "podsig", "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func withFeedBase(url string) envOption {
	return func(cfg *config.Config) { cfg.Feeds.BaseURL = url }
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()

	keys := make([]string, 0, len(cfg.Signing.Keys))
	for _, k := range cfg.Signing.Keys {
		keys = append(keys, fmt.Sprintf("%q", k))
	}
	var feedPaths strings.Builder
	for _, name := range cfg.FeedNames() {
		fmt.Fprintf(&feedPaths, "%s = %q\n", name, cfg.Feeds.Paths[name])
	}
	defaults := make([]string, 0, len(cfg.Feeds.Default))
	for _, name := range cfg.Feeds.Default {
		defaults = append(defaults, fmt.Sprintf("%q", name))
	}

	content := fmt.Sprintf(`[paths]
releases_dir = %q
state_dir = %q
log_dir = %q

[signing]
keystore = %q
keys = [%s]
armor = true
extensions = ["mp3", "ogg"]
workers = 2

[feeds]
base_url = %q
request_timeout = 5
download_timeout = 5
default = [%s]

[feeds.paths]
%s
[logging]
level = "error"

[ledger]
enabled = %t
path = %q
`,
		cfg.Paths.ReleasesDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Signing.Keystore,
		strings.Join(keys, ", "),
		cfg.Feeds.BaseURL,
		strings.Join(defaults, ", "),
		feedPaths.String(),
		cfg.Ledger.Enabled,
		cfg.Ledger.Path,
	)
	testsupport.WriteFile(t, path, []byte(content))
}

func decodeJSON(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("decode json: %v\n%s", err, data)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
