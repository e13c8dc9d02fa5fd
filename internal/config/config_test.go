package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
)

func TestLoadOptionsKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	doc := "currentCodes:\n  - ABC#123\npathToReplays: /replays\nprocessParallel: false\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadOptions(path, domain.DefaultTrackerOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := domain.DefaultTrackerOptions()
	want.CurrentCodes = []string{"ABC#123"}
	want.PathToReplays = "/replays"
	want.ProcessParallel = false
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveOptionsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "options.yaml")
	opts := domain.DefaultTrackerOptions()
	opts.UseCPUs = 4
	opts.DisableLiveTracking = true
	if err := SaveOptions(path, opts); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadOptions(path, domain.TrackerOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(opts, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("DATA_DIR", dir)
	t.Setenv("DB_PATH", "")
	t.Setenv("HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("REPLAY_DECODER", "decoder --json")
	t.Setenv("OPTIONS_FILE", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load(zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Errorf("addr = %s", cfg.HTTPAddr)
	}
	if diff := cmp.Diff([]string{"decoder", "--json"}, cfg.ReplayDecoder); diff != "" {
		t.Errorf("decoder mismatch (-want +got):\n%s", diff)
	}
	if cfg.Options.PathToDB != filepath.Join(dir, "slippi-ops.db") {
		t.Errorf("db path = %s", cfg.Options.PathToDB)
	}
	if cfg.RankAPIURL != DefaultRankAPIURL {
		t.Errorf("rank api = %s", cfg.RankAPIURL)
	}
	want := []string{"http://localhost:*", "http://127.0.0.1:*", "http://[::1]:*"}
	if diff := cmp.Diff(want, cfg.AllowedOrigins); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}
}
