package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/maintenance"
	"github.com/tablecraft/tablecraft/internal/storage"
	"github.com/tablecraft/tablecraft/internal/storage/localfs"
)

// seedSnapshots records count snapshots of shop.users and stores a small
// object for each.
func seedSnapshots(t *testing.T, env *testEnv, store storage.ObjectStore, count int) []catalog.Snapshot {
	t.Helper()
	ctx := context.Background()
	table, err := env.catalog.GetTableByName(ctx, "t1", "shop", "users")
	if err != nil {
		t.Fatalf("GetTableByName() error = %v", err)
	}
	out := make([]catalog.Snapshot, 0, count)
	for i := 1; i <= count; i++ {
		key := fmt.Sprintf("t1/shop/users/snapshot-%d.parquet", i)
		body := strings.Repeat("x", i*10)
		info, err := store.Put(ctx, key, strings.NewReader(body), int64(len(body)), storage.PutOptions{})
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		item, err := env.catalog.CreateSnapshot(ctx, catalog.CreateSnapshotInput{
			TableID:       table.TableID,
			ObjectPath:    key,
			RowCount:      3,
			FileSizeBytes: info.Size,
			CreatedBy:     "test",
		})
		if err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}
		out = append(out, item)
	}
	return out
}

func newMaintenanceEnv(t *testing.T) (*testEnv, *localfs.Store) {
	t.Helper()
	store, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	env := newTestEnv(t, nil, func(deps *Dependencies) {
		deps.Maintenance = &maintenance.Service{
			Catalog:     deps.Catalog,
			ObjectStore: store,
			Config:      maintenance.Config{KeepSnapshots: 5, IntegritySnapshotLimit: 10},
		}
	})
	createShop(t, env, "t1")
	return env, store
}

func TestPruneSnapshotsKeepsNewest(t *testing.T) {
	env, store := newMaintenanceEnv(t)
	seeded := seedSnapshots(t, env, store, 3)

	rr := env.do(t, http.MethodPost, "/v1/databases/shop/tables/users/snapshots/prune", "t1", map[string]any{"keep": 1})
	if rr.Code != http.StatusOK {
		t.Fatalf("prune status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeResponse(t, rr)
	if body["snapshots_deleted"] != float64(2) || body["snapshots_kept"] != float64(1) {
		t.Fatalf("prune body = %v", body)
	}

	remaining, err := env.catalog.ListSnapshots(context.Background(), "t1", "shop", "users", 0)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].SnapshotID != seeded[2].SnapshotID {
		t.Fatalf("remaining = %+v", remaining)
	}
	if _, err := store.Stat(context.Background(), seeded[0].ObjectPath); err == nil {
		t.Fatal("expected pruned object to be removed")
	}
}

func TestSnapshotIntegrityReportsMissingObjects(t *testing.T) {
	env, store := newMaintenanceEnv(t)
	seeded := seedSnapshots(t, env, store, 2)

	healthy := env.do(t, http.MethodGet, "/v1/databases/shop/tables/users/snapshots/integrity", "t1", nil)
	if healthy.Code != http.StatusOK || decodeResponse(t, healthy)["healthy"] != true {
		t.Fatalf("integrity status = %d, body=%s", healthy.Code, healthy.Body.String())
	}

	if err := store.Delete(context.Background(), seeded[0].ObjectPath); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	broken := env.do(t, http.MethodGet, "/v1/databases/shop/tables/users/snapshots/integrity", "t1", nil)
	if broken.Code != http.StatusOK {
		t.Fatalf("integrity status = %d, body=%s", broken.Code, broken.Body.String())
	}
	body := decodeResponse(t, broken)
	summary, _ := body["summary"].(map[string]any)
	if body["healthy"] != false || summary["missing_files"] != float64(1) {
		t.Fatalf("integrity body = %v", body)
	}
}

func TestSnapshotMaintenanceUnavailable(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	createShop(t, env, "t1")

	rr := env.do(t, http.MethodGet, "/v1/databases/shop/tables/users/snapshots/integrity", "t1", nil)
	if rr.Code != http.StatusServiceUnavailable || errorCode(t, rr) != "SNAPSHOTS_UNAVAILABLE" {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestPruneSnapshotsRejectsNegativeKeep(t *testing.T) {
	env, _ := newMaintenanceEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/databases/shop/tables/users/snapshots/prune", "t1", map[string]any{"keep": -1})
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "INVALID_KEEP" {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}
