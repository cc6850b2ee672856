package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"tagstation/internal/catalog/migrations"
	"tagstation/internal/faults"
)

const component = "catalog"

// Store is the SQLite-backed catalog.
type Store struct {
	db      *sql.DB
	path    string
	applied []int64
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open connects to the catalog database at path, creating it if needed, and
// applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, faults.Wrap(faults.ErrConfiguration, component, "open", "catalog path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrStore, component, "open", "create catalog directory", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStore, component, "open", "open sqlite db", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, faults.Wrap(faults.ErrStore, component, "open", "connect sqlite db", err)
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations.FS)
	if err != nil {
		return faults.Wrap(faults.ErrStore, component, "migrate", "create migration provider", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return faults.Wrap(faults.ErrStore, component, "migrate", "apply migrations", err)
	}
	for _, res := range results {
		if res != nil && res.Source != nil {
			s.applied = append(s.applied, res.Source.Version)
		}
	}
	return nil
}

// Applied lists the migration versions applied while opening the store.
func (s *Store) Applied() []int64 {
	return append([]int64(nil), s.applied...)
}

// SchemaVersion reports the latest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations.FS)
	if err != nil {
		return 0, faults.Wrap(faults.ErrStore, component, "version", "create migration provider", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, faults.Wrap(faults.ErrStore, component, "version", "read schema version", err)
	}
	return version, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func storeFault(op, message string, err error) error {
	return faults.Wrap(faults.ErrStore, component, op, message, err)
}

func fmtBottle(id BottleID) string {
	return fmt.Sprintf("bottle %d", id)
}
