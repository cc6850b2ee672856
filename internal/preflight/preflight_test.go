package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"tagstation/internal/catalog"
	"tagstation/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReaderDevice(t *testing.T) {
	if result := CheckReaderDevice(filepath.Join(t.TempDir(), "ttyS9")); result.Passed {
		t.Fatal("expected failure for missing device")
	}

	regular := filepath.Join(t.TempDir(), "ttyFAKE")
	if err := os.WriteFile(regular, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckReaderDevice(regular)
	if result.Passed || !strings.Contains(result.Detail, "not a character device") {
		t.Fatalf("expected character device failure, got %+v", result)
	}

	if result := CheckReaderDevice("/dev/null"); !result.Passed {
		t.Fatalf("expected /dev/null to pass, got: %s", result.Detail)
	}
}

func TestCheckReaderLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reader.lock")
	if result := CheckReaderLock(path); !result.Passed {
		t.Fatalf("expected free lock, got: %s", result.Detail)
	}

	held := flock.New(path)
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	if result := CheckReaderLock(path); result.Passed {
		t.Fatal("expected held lock to fail")
	}
}

func TestCheckCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	if result := CheckCatalog(context.Background(), path); result.Passed {
		t.Fatal("expected missing catalog to fail")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("check created the catalog: %v", err)
	}

	store, err := catalog.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	_, err = store.ApplySeed(context.Background(), catalog.Seed{Bottles: []catalog.SeedBottle{
		{ID: 1, Recipe: 1},
		{ID: 2, Recipe: 1, TaggedAt: "2024-01-01 00:00:00"},
	}})
	_ = store.Close()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	result := CheckCatalog(context.Background(), path)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "2 bottles, 1 untagged") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestRunAllWarnsWhenWaitingForDevice(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.LockDir = base
	cfg.Catalog.Path = filepath.Join(base, "catalog.db")
	cfg.Reader.Device = filepath.Join(base, "ttyMISSING")
	cfg.Reader.WaitForDevice = true

	results := RunAll(context.Background(), &cfg)
	var reader Result
	for _, r := range results {
		if r.Name == "Reader device" {
			reader = r
		}
	}
	if reader.Passed || !reader.Warning {
		t.Fatalf("reader result = %+v, want warning", reader)
	}
	// the missing catalog is the only hard failure
	if got := Failed(results); got != 1 {
		t.Fatalf("Failed = %d, want 1", got)
	}
}
