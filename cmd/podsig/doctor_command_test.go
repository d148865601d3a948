package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestDoctorReportsChecks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	env := setupCLITestEnv(t, withFeedBase(srv.URL))
	if err := os.MkdirAll(env.cfg.Paths.ReleasesDir, 0o755); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	for _, want := range []string{"Releases directory", "Key store", "Signing keys", "Feed endpoint", "[OK]"} {
		requireContains(t, out, want)
	}
}

func TestDoctorFailsOnMissingReleases(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"doctor", "--offline"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail without a releases directory")
	}
	requireContains(t, out, "[ERROR]")
}
