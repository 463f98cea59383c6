package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/mediakeep/sweeper/internal/models"
)

// ErrCancelled is returned by a handler that observed a cancellation request
// at a batch boundary. Stats accumulated so far are still returned.
var ErrCancelled = errors.New("task cancelled")

// Run lets a handler surface progress and observe cooperative cancellation.
// The executor provides an implementation bound to the in-flight task.
type Run interface {
	Progress(step string, itemsProcessed, estimatedTotal int)
	Cancelled() bool
}

// Handler is the execution contract every resource domain implements.
// Execute must never mutate anything when req.DryRun is set, and must never
// let a single item's failure abort the sweep.
type Handler interface {
	Execute(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error)
	Estimate(ctx context.Context, req models.TaskRequest) (*models.ImpactEstimate, error)
}

// RetentionEligible reports whether an item is old enough to delete. The
// boundary is strict: age exactly equal to the retention window is retained.
func RetentionEligible(lastModified, now time.Time, retentionDays int) bool {
	return now.Sub(lastModified) > time.Duration(retentionDays)*24*time.Hour
}

// AgeEligible is the duration-based variant of RetentionEligible.
func AgeEligible(lastModified, now time.Time, maxAge time.Duration) bool {
	return now.Sub(lastModified) > maxAge
}

// nopRun is used when no progress sink is attached (estimates, tests).
type nopRun struct{}

func (nopRun) Progress(string, int, int) {}
func (nopRun) Cancelled() bool           { return false }

// NopRun is a Run that records nothing and is never cancelled.
var NopRun Run = nopRun{}
