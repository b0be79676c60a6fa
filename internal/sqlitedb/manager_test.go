package sqlitedb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(Config{RootDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestNewManagerRequiresRootDir(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("expected error for empty root dir")
	}
}

func TestCreateOpenDropLifecycle(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	database, err := manager.Create(ctx, "tenant-1", "shop")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	wantPath := filepath.Join(manager.root, "tenant-1", "shop.db")
	if database.Path() != wantPath {
		t.Fatalf("Path() = %q, want %q", database.Path(), wantPath)
	}

	if _, err := manager.Create(ctx, "tenant-1", "shop"); !errors.Is(err, ErrDatabaseExists) {
		t.Fatalf("second Create() error = %v, want %v", err, ErrDatabaseExists)
	}

	opened, err := manager.Open(ctx, "tenant-1", "shop")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if opened != database {
		t.Fatal("Open() should return the cached handle")
	}

	exists, err := manager.Exists("tenant-1", "shop")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v", exists, err)
	}

	if err := manager.Drop("tenant-1", "shop"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if _, err := os.Stat(wantPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("database file still present: %v", err)
	}
	if _, err := manager.Open(ctx, "tenant-1", "shop"); !errors.Is(err, ErrDatabaseNotFound) {
		t.Fatalf("Open() after drop error = %v, want %v", err, ErrDatabaseNotFound)
	}
	if err := manager.Drop("tenant-1", "shop"); !errors.Is(err, ErrDatabaseNotFound) {
		t.Fatalf("second Drop() error = %v, want %v", err, ErrDatabaseNotFound)
	}
}

func TestListIsPerTenantAndSorted(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		if _, err := manager.Create(ctx, "tenant-1", name); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}
	if _, err := manager.Create(ctx, "tenant-2", "other"); err != nil {
		t.Fatalf("Create(other) error = %v", err)
	}

	names, err := manager.List("tenant-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "zeta"}) {
		t.Fatalf("List() = %v", names)
	}

	empty, err := manager.List("tenant-3")
	if err != nil {
		t.Fatalf("List(empty) error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("List(empty) = %v", empty)
	}
}

func TestRejectsUnsafeNames(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"", "1abc", "../etc", "a-b", "has space"} {
		if _, err := manager.Create(ctx, "tenant-1", name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Create(%q) error = %v, want %v", name, err, ErrInvalidName)
		}
	}
	for _, tenant := range []string{"", "..", "a/b", "../x"} {
		if _, err := manager.Create(ctx, tenant, "shop"); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Create(tenant=%q) error = %v, want %v", tenant, err, ErrInvalidName)
		}
	}
}

func TestCloseRejectsFurtherOpens(t *testing.T) {
	manager, err := NewManager(Config{RootDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ctx := context.Background()
	if _, err := manager.Create(ctx, "tenant-1", "shop"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := manager.Open(ctx, "tenant-1", "shop"); err == nil {
		t.Fatal("expected error after Close")
	}
}
