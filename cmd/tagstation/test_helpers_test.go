package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tagstation/internal/card"
	"tagstation/internal/catalog"
	"tagstation/internal/config"
	"tagstation/internal/testsupport"
)

var testUID = card.UID{0xDE, 0xAD, 0xBE, 0xEF}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	store      *catalog.Store
	transport  *testsupport.FakeTransport
}

func setupCLITestEnv(t *testing.T, transport *testsupport.FakeTransport) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("TAGSTATION_READER_DEVICE", "")

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(base, "tagstation.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.OpenCatalogAt(t, cfg.Catalog.Path, testsupport.StandardSeed())

	if transport == nil {
		transport = testsupport.NewFakeTransport()
	}
	previous := newTransport
	newTransport = func(*config.Config, *slog.Logger) card.Transport { return transport }
	t.Cleanup(func() { newTransport = previous })

	return &cliTestEnv{cfg: cfg, configPath: configPath, store: store, transport: transport}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args, configPath)
}

func runCLIContext(t *testing.T, ctx context.Context, args []string, configPath string) (string, string, error) {
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
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func cardWithBottle(id uint8, detections ...testsupport.Detection) *testsupport.FakeTransport {
	transport := testsupport.NewFakeTransport(detections...)
	transport.Blocks[card.BottleIDBlock] = card.EncodeBottleID(id)
	return transport
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
