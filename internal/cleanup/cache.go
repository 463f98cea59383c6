package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mediakeep/sweeper/internal/cache"
	"github.com/mediakeep/sweeper/internal/models"
)

const (
	sessionPattern   = "session:*"
	thumbnailPattern = "thumb:*"

	// thumbnailTTL is the TTL thumbnails are written with; remaining TTL
	// against it infers the key's age.
	thumbnailTTL = 7 * 24 * time.Hour
)

// defaultCachePatterns are the namespaces swept by the expired-key pass.
var defaultCachePatterns = []string{"cache:*", "temp:*", "query:*"}

// CacheCleanup sweeps the cache backend: stale generic namespaces, expired
// sessions and aged thumbnails.
type CacheCleanup struct {
	client cache.Client
	now    func() time.Time
}

func NewCacheCleanup(client cache.Client) *CacheCleanup {
	return &CacheCleanup{client: client, now: time.Now}
}

func (c *CacheCleanup) Execute(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	switch req.Type {
	case models.TaskTypeCacheCleanup:
		stats, err := c.sweepExpiredKeys(ctx, req, run)
		if err != nil {
			return stats, err
		}
		if err := c.sweepThumbnails(ctx, req, run, stats); err != nil {
			return stats, err
		}
		return stats, nil
	case models.TaskTypeSessionCleanup:
		return c.sweepSessions(ctx, req, run)
	default:
		return nil, fmt.Errorf("cache cleanup cannot handle task type %s", req.Type)
	}
}

// sweepExpiredKeys removes keys the backend already reports expired, and —
// when a max-age policy is supplied — keys that carry no TTL at all.
func (c *CacheCleanup) sweepExpiredKeys(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	stats := &models.CleanupStats{}

	patterns := req.Patterns
	if len(patterns) == 0 {
		patterns = defaultCachePatterns
	}

	for _, pattern := range patterns {
		if run.Cancelled() {
			return stats, ErrCancelled
		}

		keys, err := c.client.ScanKeys(ctx, pattern, req.BatchSize)
		if err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("scan %s: %v", pattern, err))
			continue
		}

		run.Progress("sweeping "+pattern, stats.ProcessedCount, stats.ProcessedCount+len(keys))

		for _, key := range keys {
			if run.Cancelled() {
				return stats, ErrCancelled
			}
			stats.ProcessedCount++

			ttl, err := c.client.TTL(ctx, key)
			if errors.Is(err, cache.ErrKeyNotFound) {
				// Expired between scan and inspection; the backend
				// already reclaimed it.
				stats.CleanedCount++
				continue
			}
			if err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("ttl %s: %v", key, err))
				continue
			}

			if ttl != cache.NoTTL || req.MaxAge <= 0 {
				stats.SkippedCount++
				continue
			}
			if req.DryRun {
				stats.CleanedCount++
				continue
			}
			if _, err := c.client.Delete(ctx, key); err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("delete %s: %v", key, err))
				continue
			}
			stats.CleanedCount++
		}
	}

	return stats, nil
}

// sweepSessions deletes sessions whose last access is older than MaxAge.
// Active sessions survive regardless of age when PreserveActive is set.
func (c *CacheCleanup) sweepSessions(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	stats := &models.CleanupStats{}
	now := c.now()

	maxAge := req.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	keys, err := c.client.ScanKeys(ctx, sessionPattern, req.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	run.Progress("sweeping sessions", 0, len(keys))

	for i, key := range keys {
		if run.Cancelled() {
			return stats, ErrCancelled
		}
		stats.ProcessedCount++

		raw, err := c.client.Get(ctx, key)
		if errors.Is(err, cache.ErrKeyNotFound) {
			stats.CleanedCount++
			continue
		}
		if err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("get %s: %v", key, err))
			continue
		}

		var session models.SessionRecord
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("parse session %s: %v", key, err))
			continue
		}

		reference := session.LastAccess
		if reference.IsZero() {
			reference = session.CreatedAt
		}
		if !AgeEligible(reference, now, maxAge) {
			stats.SkippedCount++
			continue
		}
		if req.PreserveActive && session.IsActive {
			stats.SkippedCount++
			continue
		}
		if req.DryRun {
			stats.CleanedCount++
			continue
		}
		if _, err := c.client.Delete(ctx, key); err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("delete %s: %v", key, err))
			continue
		}
		stats.CleanedCount++
		run.Progress("sweeping sessions", i+1, len(keys))
	}

	return stats, nil
}

// sweepThumbnails applies the age rule to the thumbnail namespace, inferring
// each key's age from its remaining TTL.
func (c *CacheCleanup) sweepThumbnails(ctx context.Context, req models.TaskRequest, run Run, stats *models.CleanupStats) error {
	if req.MaxAge <= 0 {
		return nil
	}

	keys, err := c.client.ScanKeys(ctx, thumbnailPattern, req.BatchSize)
	if err != nil {
		stats.FailedCount++
		stats.Errors = append(stats.Errors, fmt.Sprintf("scan thumbnails: %v", err))
		return nil
	}

	run.Progress("sweeping thumbnails", stats.ProcessedCount, stats.ProcessedCount+len(keys))

	for _, key := range keys {
		if run.Cancelled() {
			return ErrCancelled
		}
		stats.ProcessedCount++

		ttl, err := c.client.TTL(ctx, key)
		if errors.Is(err, cache.ErrKeyNotFound) {
			stats.CleanedCount++
			continue
		}
		if err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("ttl %s: %v", key, err))
			continue
		}
		if ttl == cache.NoTTL {
			stats.SkippedCount++
			continue
		}

		age := thumbnailTTL - ttl
		if age <= req.MaxAge {
			stats.SkippedCount++
			continue
		}
		if req.DryRun {
			stats.CleanedCount++
			continue
		}
		if _, err := c.client.Delete(ctx, key); err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("delete %s: %v", key, err))
			continue
		}
		stats.CleanedCount++
	}

	return nil
}

// FlushAll clears the entire cache backend. Maintenance-window use only; it
// is not reachable from any scheduled sweep.
func (c *CacheCleanup) FlushAll(ctx context.Context) error {
	return c.client.FlushAll(ctx)
}

func (c *CacheCleanup) Estimate(ctx context.Context, req models.TaskRequest) (*models.ImpactEstimate, error) {
	estimate := &models.ImpactEstimate{}

	var patterns []string
	switch req.Type {
	case models.TaskTypeCacheCleanup:
		patterns = req.Patterns
		if len(patterns) == 0 {
			patterns = defaultCachePatterns
		}
		patterns = append(patterns, thumbnailPattern)
	case models.TaskTypeSessionCleanup:
		patterns = []string{sessionPattern}
	default:
		return nil, fmt.Errorf("cache cleanup cannot estimate task type %s", req.Type)
	}

	for _, pattern := range patterns {
		keys, err := c.client.ScanKeys(ctx, pattern, req.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		estimate.Items += len(keys)
	}

	estimate.DurationEstimate = time.Duration(estimate.Items) * 2 * time.Millisecond
	return estimate, nil
}
