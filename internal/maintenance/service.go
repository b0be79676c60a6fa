// Package maintenance keeps table snapshots tidy: it prunes old snapshots
// beyond a retention count and checks that every catalogued snapshot still
// has its object with the recorded size.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/storage"
)

var ErrIntegrityIssues = errors.New("maintenance: snapshot integrity issues found")

type Catalog interface {
	ListSnapshots(ctx context.Context, tenantID, databaseName, tableName string, limit int) ([]catalog.Snapshot, error)
	DeleteSnapshot(ctx context.Context, tenantID string, snapshotID int64) (bool, error)
}

type Config struct {
	KeepSnapshots          int
	IntegritySnapshotLimit int
}

type Service struct {
	Catalog     Catalog
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
}

// Target names the table whose snapshots a run looks at.
type Target struct {
	TenantID string
	Database string
	Table    string
}

type RetentionSummary struct {
	SnapshotsScanned int   `json:"snapshots_scanned"`
	SnapshotsKept    int   `json:"snapshots_kept"`
	SnapshotsDeleted int   `json:"snapshots_deleted"`
	BytesFreed       int64 `json:"bytes_freed"`
	Failures         int   `json:"failures"`
}

type IntegritySummary struct {
	SnapshotsScanned    int      `json:"snapshots_scanned"`
	FilesChecked        int      `json:"files_checked"`
	MissingFiles        int      `json:"missing_files"`
	SizeMismatchFiles   int      `json:"size_mismatch_files"`
	OperationalFailures int      `json:"operational_failures"`
	Issues              []string `json:"issues"`
}

func (s IntegritySummary) Healthy() bool {
	return s.MissingFiles == 0 && s.SizeMismatchFiles == 0 && s.OperationalFailures == 0
}

// RunRetentionOnce deletes every snapshot of the target table except the
// newest keep. A keep of zero or less falls back to Config.KeepSnapshots.
// Objects that are already gone still have their catalog rows removed.
func (s *Service) RunRetentionOnce(ctx context.Context, target Target, keep int) (RetentionSummary, error) {
	if err := s.validate(); err != nil {
		return RetentionSummary{}, err
	}
	if keep <= 0 {
		keep = s.keepSnapshots()
	}

	snapshots, err := s.Catalog.ListSnapshots(ctx, target.TenantID, target.Database, target.Table, 0)
	if err != nil {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return RetentionSummary{}, fmt.Errorf("list snapshots: %w", err)
	}
	summary := RetentionSummary{SnapshotsScanned: len(snapshots)}
	if len(snapshots) <= keep {
		summary.SnapshotsKept = len(snapshots)
		retentionRunsTotal.WithLabelValues("completed").Inc()
		return summary, nil
	}
	summary.SnapshotsKept = keep

	failures := make([]string, 0)
	for _, snapshot := range snapshots[keep:] {
		if err := s.ObjectStore.Delete(ctx, snapshot.ObjectPath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("delete object %s: %v", snapshot.ObjectPath, err))
			continue
		}
		if _, err := s.Catalog.DeleteSnapshot(ctx, target.TenantID, snapshot.SnapshotID); err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("delete snapshot %d: %v", snapshot.SnapshotID, err))
			continue
		}
		summary.SnapshotsDeleted++
		summary.BytesFreed += snapshot.FileSizeBytes
	}
	if summary.SnapshotsDeleted > 0 {
		retentionSnapshotsDeletedTotal.Add(float64(summary.SnapshotsDeleted))
	}

	s.logger().InfoContext(ctx, "snapshot retention completed",
		slog.String("tenant_id", target.TenantID),
		slog.String("database", target.Database),
		slog.String("table", target.Table),
		slog.Any("summary", summary),
	)
	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce stats the object behind each recent snapshot of the
// target table. Findings are returned in the summary; the error wraps
// ErrIntegrityIssues when any were found.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context, target Target) (IntegritySummary, error) {
	if err := s.validate(); err != nil {
		return IntegritySummary{}, err
	}

	snapshots, err := s.Catalog.ListSnapshots(ctx, target.TenantID, target.Database, target.Table, s.Config.IntegritySnapshotLimit)
	if err != nil {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		return IntegritySummary{}, fmt.Errorf("list snapshots: %w", err)
	}

	const maxIssueSamples = 20
	summary := IntegritySummary{SnapshotsScanned: len(snapshots), Issues: []string{}}
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(summary.Issues) < maxIssueSamples {
			summary.Issues = append(summary.Issues, message)
		}
	}

	for _, snapshot := range snapshots {
		summary.FilesChecked++
		info, err := s.ObjectStore.Stat(ctx, snapshot.ObjectPath)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				summary.MissingFiles++
				addIssue(fmt.Sprintf("missing file %s (snapshot=%d)", snapshot.ObjectPath, snapshot.SnapshotID))
				continue
			}
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("stat file %s: %v", snapshot.ObjectPath, err))
			continue
		}
		if info.Size != snapshot.FileSizeBytes {
			summary.SizeMismatchFiles++
			addIssue(fmt.Sprintf("size mismatch for %s (expected=%d actual=%d)", snapshot.ObjectPath, snapshot.FileSizeBytes, info.Size))
		}
	}

	if summary.FilesChecked > 0 {
		integrityFilesCheckedTotal.Add(float64(summary.FilesChecked))
	}
	if summary.MissingFiles > 0 {
		integrityMissingFilesTotal.Add(float64(summary.MissingFiles))
	}
	if summary.SizeMismatchFiles > 0 {
		integritySizeMismatchFilesTotal.Add(float64(summary.SizeMismatchFiles))
	}
	if !summary.Healthy() {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		s.logger().WarnContext(ctx, "snapshot integrity check found issues",
			slog.String("tenant_id", target.TenantID),
			slog.String("database", target.Database),
			slog.String("table", target.Table),
			slog.Int("issues", issueCount),
		)
		if extra := issueCount - len(summary.Issues); extra > 0 {
			return summary, fmt.Errorf("%w: %d issue(s): %s; ... plus %d more", ErrIntegrityIssues, issueCount, strings.Join(summary.Issues, "; "), extra)
		}
		return summary, fmt.Errorf("%w: %d issue(s): %s", ErrIntegrityIssues, issueCount, strings.Join(summary.Issues, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) validate() error {
	if s.Catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return fmt.Errorf("object store is required")
	}
	return nil
}

func (s *Service) keepSnapshots() int {
	if s.Config.KeepSnapshots <= 0 {
		return 5
	}
	return s.Config.KeepSnapshots
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
