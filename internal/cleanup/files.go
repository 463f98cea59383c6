package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mediakeep/sweeper/internal/db"
	"github.com/mediakeep/sweeper/internal/models"
	"github.com/mediakeep/sweeper/internal/storage"
)

// multipartMaxAge is how long an in-progress multipart upload may live before
// the storage sweep aborts it.
const multipartMaxAge = 24 * time.Hour

// defaultTempPrefixes are the key namespaces swept by the temp-file pass.
var defaultTempPrefixes = []string{"temp/", "thumbnails/tmp/", "processing/", "cache/"}

// FileCleanup reclaims object storage: orphaned media objects, temp-namespace
// objects and stale multipart uploads.
type FileCleanup struct {
	storage   storage.ObjectStorageClient
	media     db.MediaRepository
	orphans   db.OrphanFileRegistry
	protected db.ProtectedFileRegistry

	tempPrefixes []string
	now          func() time.Time
}

func NewFileCleanup(store storage.ObjectStorageClient, media db.MediaRepository, orphans db.OrphanFileRegistry, protected db.ProtectedFileRegistry) *FileCleanup {
	return &FileCleanup{
		storage:      store,
		media:        media,
		orphans:      orphans,
		protected:    protected,
		tempPrefixes: defaultTempPrefixes,
		now:          time.Now,
	}
}

func (f *FileCleanup) Execute(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	switch req.Type {
	case models.TaskTypeOrphanFiles:
		return f.cleanOrphans(ctx, req, run)
	case models.TaskTypeTempFiles:
		return f.sweepTempFiles(ctx, req, run)
	case models.TaskTypeStorageCleanup:
		return f.sweepStorage(ctx, req, run)
	default:
		return nil, fmt.Errorf("file cleanup cannot handle task type %s", req.Type)
	}
}

// cleanOrphans lists the bucket, diffs it against the media table and deletes
// orphans past retention. Every orphan is recorded for audit before any
// deletion decision.
func (f *FileCleanup) cleanOrphans(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	stats := &models.CleanupStats{}
	now := f.now()

	objects, err := f.storage.ListObjects(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list bucket: %w", err)
	}

	referenced, err := f.media.ReferencedKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load referenced keys: %w", err)
	}

	orphans := make([]storage.ObjectInfo, 0)
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; !ok {
			orphans = append(orphans, obj)
		}
	}

	run.Progress("scanning orphans", 0, len(orphans))

	for i, obj := range orphans {
		if run.Cancelled() {
			return stats, ErrCancelled
		}
		stats.ProcessedCount++

		info := &models.OrphanFileInfo{
			Key:             obj.Key,
			Size:            obj.Size,
			LastModified:    obj.LastModified,
			RetentionExpiry: obj.LastModified.Add(time.Duration(req.RetentionDays) * 24 * time.Hour),
		}
		if err := f.orphans.RecordOrphan(ctx, info); err != nil {
			slog.Warn("failed to record orphan sighting", "key", obj.Key, "error", err)
		}

		if !RetentionEligible(obj.LastModified, now, req.RetentionDays) {
			stats.SkippedCount++
			continue
		}

		if !req.IncludeProtected {
			isProtected, err := f.protected.IsProtected(ctx, obj.Key)
			if err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("protection check %s: %v", obj.Key, err))
				continue
			}
			if isProtected {
				stats.SkippedCount++
				continue
			}
		}

		if req.DryRun {
			stats.CleanedCount++
			stats.BytesFreed += obj.Size
			run.Progress("scanning orphans", i+1, len(orphans))
			continue
		}

		if err := f.storage.DeleteObject(ctx, obj.Key); err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("delete %s: %v", obj.Key, err))
			continue
		}
		if err := f.orphans.RemoveOrphan(ctx, obj.Key); err != nil {
			slog.Warn("failed to clear orphan record", "key", obj.Key, "error", err)
		}
		stats.CleanedCount++
		stats.BytesFreed += obj.Size
		run.Progress("deleting orphans", i+1, len(orphans))
	}

	return stats, nil
}

// sweepTempFiles deletes temp-namespace objects past the (typically short)
// retention window, independent of the media reference check.
func (f *FileCleanup) sweepTempFiles(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	stats := &models.CleanupStats{}
	now := f.now()

	prefixes := f.tempPrefixes
	if len(req.Patterns) > 0 {
		prefixes = req.Patterns
	}

	for _, prefix := range prefixes {
		if run.Cancelled() {
			return stats, ErrCancelled
		}

		objects, err := f.storage.ListObjects(ctx, prefix)
		if err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("list prefix %s: %v", prefix, err))
			continue
		}

		run.Progress("sweeping "+prefix, stats.ProcessedCount, stats.ProcessedCount+len(objects))

		for _, obj := range objects {
			if run.Cancelled() {
				return stats, ErrCancelled
			}
			stats.ProcessedCount++

			if !RetentionEligible(obj.LastModified, now, req.RetentionDays) {
				stats.SkippedCount++
				continue
			}
			if req.DryRun {
				stats.CleanedCount++
				stats.BytesFreed += obj.Size
				continue
			}
			if err := f.storage.DeleteObject(ctx, obj.Key); err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("delete %s: %v", obj.Key, err))
				continue
			}
			stats.CleanedCount++
			stats.BytesFreed += obj.Size
		}
	}

	return stats, nil
}

// sweepStorage combines the temp-file sweep with aborting multipart uploads
// whose initiation exceeds the age threshold.
func (f *FileCleanup) sweepStorage(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	stats, err := f.sweepTempFiles(ctx, req, run)
	if err != nil {
		return stats, err
	}

	uploads, err := f.storage.ListMultipartUploads(ctx, "")
	if err != nil {
		stats.FailedCount++
		stats.Errors = append(stats.Errors, fmt.Sprintf("list multipart uploads: %v", err))
		return stats, nil
	}

	now := f.now()
	for _, upload := range uploads {
		if run.Cancelled() {
			return stats, ErrCancelled
		}
		stats.ProcessedCount++

		if now.Sub(upload.Initiated) <= multipartMaxAge {
			stats.SkippedCount++
			continue
		}
		if req.DryRun {
			stats.CleanedCount++
			continue
		}
		if err := f.storage.AbortMultipartUpload(ctx, upload.Key, upload.UploadID); err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("abort upload %s: %v", upload.Key, err))
			continue
		}
		stats.CleanedCount++
	}

	return stats, nil
}

func (f *FileCleanup) Estimate(ctx context.Context, req models.TaskRequest) (*models.ImpactEstimate, error) {
	now := f.now()
	estimate := &models.ImpactEstimate{}

	switch req.Type {
	case models.TaskTypeOrphanFiles:
		objects, err := f.storage.ListObjects(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list bucket: %w", err)
		}
		referenced, err := f.media.ReferencedKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("load referenced keys: %w", err)
		}
		for _, obj := range objects {
			if _, ok := referenced[obj.Key]; ok {
				continue
			}
			if RetentionEligible(obj.LastModified, now, req.RetentionDays) {
				estimate.Items++
				estimate.Bytes += obj.Size
			}
		}
	case models.TaskTypeTempFiles, models.TaskTypeStorageCleanup:
		prefixes := f.tempPrefixes
		if len(req.Patterns) > 0 {
			prefixes = req.Patterns
		}
		for _, prefix := range prefixes {
			objects, err := f.storage.ListObjects(ctx, prefix)
			if err != nil {
				return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
			}
			for _, obj := range objects {
				if RetentionEligible(obj.LastModified, now, req.RetentionDays) {
					estimate.Items++
					estimate.Bytes += obj.Size
				}
			}
		}
	default:
		return nil, fmt.Errorf("file cleanup cannot estimate task type %s", req.Type)
	}

	// ~50ms of list/delete round trips per object is a serviceable guess.
	estimate.DurationEstimate = time.Duration(estimate.Items) * 50 * time.Millisecond
	return estimate, nil
}

// SetTempPrefixes overrides the swept namespaces. Intended for wiring, not
// for concurrent use.
func (f *FileCleanup) SetTempPrefixes(prefixes []string) {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	f.tempPrefixes = cleaned
}
