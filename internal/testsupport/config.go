package testsupport

import (
	"path/filepath"
	"testing"

	"tagstation/internal/config"
)

// NewConfig returns a default configuration rooted in a per-test temp dir.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.LockDir = filepath.Join(base, "locks")
	cfg.Catalog.Path = filepath.Join(base, "data", "flaschen_database.db")
	cfg.Label.OutputDir = filepath.Join(base, "qr_codes")
	cfg.Reader.Device = filepath.Join(base, "ttyFAKE0")
	cfg.Reader.PollIntervalMs = 10
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}
