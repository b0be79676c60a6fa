package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tablecraft/tablecraft/internal/observability"
)

var (
	ErrDatabaseNotFound = errors.New("sqlitedb: database not found")
	ErrDatabaseExists   = errors.New("sqlitedb: database already exists")
	ErrTableNotFound    = errors.New("sqlitedb: table not found")
	ErrUnknownColumn    = errors.New("sqlitedb: unknown column")
	ErrInvalidName      = errors.New("sqlitedb: invalid name")
	ErrMissingFilter    = errors.New("sqlitedb: a filter is required")
)

type Config struct {
	RootDir       string
	FileExtension string
	BusyTimeout   time.Duration
	Logger        *slog.Logger
}

// Manager owns the per-tenant SQLite files under RootDir. Each database
// gets one cached handle limited to a single connection, which serialises
// statements against that file.
type Manager struct {
	root        string
	ext         string
	busyTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	handles map[string]*Database
	closed  bool
}

func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.RootDir) == "" {
		return nil, fmt.Errorf("database root dir is required")
	}
	ext := cfg.FileExtension
	if ext == "" {
		ext = ".db"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create database root dir: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		root:        cfg.RootDir,
		ext:         ext,
		busyTimeout: cfg.BusyTimeout,
		logger:      logger,
		handles:     map[string]*Database{},
	}, nil
}

// Path returns the file backing tenantID/name without checking existence.
func (m *Manager) Path(tenantID, name string) (string, error) {
	if err := validateTenant(tenantID); err != nil {
		return "", err
	}
	if err := ValidateName("database", name); err != nil {
		return "", err
	}
	return filepath.Join(m.root, tenantID, name+m.ext), nil
}

func (m *Manager) Exists(tenantID, name string) (bool, error) {
	path, err := m.Path(tenantID, name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat database file: %w", err)
	}
	return !info.IsDir(), nil
}

// Create makes a new empty database file and returns its open handle.
func (m *Manager) Create(ctx context.Context, tenantID, name string) (*Database, error) {
	path, err := m.Path(tenantID, name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("database manager is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create tenant dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrDatabaseExists
		}
		return nil, fmt.Errorf("create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close database file: %w", err)
	}

	database, err := m.openLocked(ctx, tenantID, name, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	m.logger.Info("database created", slog.String("tenant_id", tenantID), slog.String("database", name))
	return database, nil
}

// Open returns the cached handle for an existing database.
func (m *Manager) Open(ctx context.Context, tenantID, name string) (*Database, error) {
	path, err := m.Path(tenantID, name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("database manager is closed")
	}
	if database, ok := m.handles[handleKey(tenantID, name)]; ok {
		return database, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("stat database file: %w", err)
	}
	return m.openLocked(ctx, tenantID, name, path)
}

func (m *Manager) openLocked(ctx context.Context, tenantID, name, path string) (*Database, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", name, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database %q: %w", name, err)
	}
	if err := ApplyPragmas(ctx, db, m.busyTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}

	database := &Database{name: name, tenantID: tenantID, path: path, db: db}
	m.handles[handleKey(tenantID, name)] = database
	observability.SetOpenDatabases(len(m.handles))
	return database, nil
}

// Drop closes any open handle and removes the database file with its WAL
// side files.
func (m *Manager) Drop(tenantID, name string) error {
	path, err := m.Path(tenantID, name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := handleKey(tenantID, name)
	if database, ok := m.handles[key]; ok {
		delete(m.handles, key)
		observability.SetOpenDatabases(len(m.handles))
		if err := database.db.Close(); err != nil {
			return fmt.Errorf("close database %q: %w", name, err)
		}
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrDatabaseNotFound
		}
		return fmt.Errorf("remove database file: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove database %s file: %w", suffix, err)
		}
	}
	m.logger.Info("database dropped", slog.String("tenant_id", tenantID), slog.String("database", name))
	return nil
}

// List returns the database names present on disk for tenantID, sorted.
func (m *Manager) List(tenantID string) ([]string, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(m.root, tenantID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read tenant dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), m.ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), m.ext)
		if ValidateName("database", name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, database := range m.handles {
		if err := database.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(m.handles, key)
	}
	m.closed = true
	observability.SetOpenDatabases(0)
	return errors.Join(errs...)
}

func handleKey(tenantID, name string) string {
	return tenantID + "/" + name
}
