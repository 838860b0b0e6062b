// Package reliability provides database backups to S3 compatible storage and
// scheduled maintenance jobs.
package reliability

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/events"
	"github.com/rs/zerolog"
)

const (
	backupPrefix    = "degiro-portfolio-backup-"
	backupSuffix    = ".db.gz"
	backupTimestamp = "2006-01-02-150405"
)

// ErrBackupInProgress is returned when a backup is requested while one is running
var ErrBackupInProgress = errors.New("backup already in progress")

// ObjectStore is the bucket a backup is written to
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Snapshotter writes a consistent copy of the database to a new file
type Snapshotter interface {
	SnapshotTo(ctx context.Context, dest string) error
}

// BackupInfo represents a backup stored in the bucket
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupResult describes a finished backup run
type BackupResult struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Removed   int    `json:"removed"`
}

// BackupService snapshots, compresses and uploads the portfolio database
type BackupService struct {
	store      ObjectStore
	db         Snapshotter
	stagingDir string
	retention  int
	events     *events.Manager
	log        zerolog.Logger
	now        func() time.Time
	running    sync.Mutex
}

// NewBackupService creates a backup service keeping the newest retention backups
func NewBackupService(
	store ObjectStore,
	db Snapshotter,
	stagingDir string,
	retention int,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:      store,
		db:         db,
		stagingDir: stagingDir,
		retention:  retention,
		events:     eventManager,
		log:        log.With().Str("service", "backup").Logger(),
		now:        time.Now,
	}
}

// BackupKey returns the object key for a backup taken at t
func BackupKey(t time.Time) string {
	return backupPrefix + t.UTC().Format(backupTimestamp) + backupSuffix
}

// CreateAndUploadBackup snapshots the database, gzips it, uploads it and
// applies retention. A failed rotation is logged and does not fail the backup.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (*BackupResult, error) {
	if !s.running.TryLock() {
		return nil, ErrBackupInProgress
	}
	defer s.running.Unlock()

	s.log.Info().Msg("Starting backup")
	startTime := s.now()

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	staging, err := os.MkdirTemp(s.stagingDir, "backup-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	snapshotPath := filepath.Join(staging, "portfolio.db")
	if err := s.db.SnapshotTo(ctx, snapshotPath); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	key := BackupKey(startTime)
	archivePath := filepath.Join(staging, key)
	size, err := compressFile(snapshotPath, archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.store.Upload(ctx, key, archive); err != nil {
		return nil, err
	}

	result := &BackupResult{Key: key, SizeBytes: size}
	removed, err := s.RotateOldBackups(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Backup rotation failed")
	}
	result.Removed = removed

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Int64("size_bytes", size).
		Int("removed", removed).
		Msg("Backup completed successfully")

	s.events.Emit("backup", &events.BackupCompletedData{
		Key:       result.Key,
		SizeBytes: result.SizeBytes,
		Removed:   result.Removed,
	})
	return result, nil
}

// ListBackups lists backups in the bucket, newest first. Objects whose key
// does not carry a backup timestamp are ignored.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, backupPrefix) || !strings.HasSuffix(obj.Key, backupSuffix) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), backupSuffix)
		timestamp, err := time.Parse(backupTimestamp, raw)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from key")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes every backup beyond the newest retention ones
func (s *BackupService) RotateOldBackups(ctx context.Context) (int, error) {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= s.retention {
		return 0, nil
	}

	deleted := 0
	for _, backup := range backups[s.retention:] {
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().
				Err(err).
				Str("key", backup.Key).
				Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().
			Str("key", backup.Key).
			Time("timestamp", backup.Timestamp).
			Msg("Deleted old backup")
		deleted++
	}
	return deleted, nil
}

// compressFile gzips src into dest and returns the compressed size
func compressFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	gz.Name = "portfolio.db"
	if _, err := io.Copy(gz, in); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}

	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
