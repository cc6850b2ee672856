package preflight

import (
	"context"

	"tagstation/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a failed check the station can recover from on its own.
	Warning bool
	Detail  string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Lock directory", cfg.Paths.LockDir),
	}
	if cfg.Station.Mode == "label" {
		results = append(results, CheckDirectoryAccess("Label directory", cfg.Label.OutputDir))
	}

	reader := CheckReaderDevice(cfg.Reader.Device)
	if !reader.Passed && cfg.Reader.WaitForDevice {
		// run waits for the device node to appear
		reader.Warning = true
	}
	results = append(results,
		reader,
		CheckReaderLock(cfg.ReaderLockPath()),
		CheckCatalog(ctx, cfg.Catalog.Path),
	)
	return results
}

// Failed counts results that neither passed nor are warnings.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed && !r.Warning {
			n++
		}
	}
	return n
}
