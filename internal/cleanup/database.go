package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mediakeep/sweeper/internal/db"
	"github.com/mediakeep/sweeper/internal/models"
	"github.com/mediakeep/sweeper/internal/storage"
)

// compensationCooldown is the minimum time between attempts of one action.
const compensationCooldown = 15 * time.Minute

// orphanRecordGrace shields freshly written rows from the orphan record pass
// while a multi-step upload is still in flight.
const orphanRecordGrace = 1 * time.Hour

// defaultLogTables are pruned when the caller supplies no table list.
var defaultLogTables = []string{"access_logs", "audit_logs", "job_logs"}

// DatabaseCleanup reaps expired upload transactions, drives the compensation
// retry queue, prunes log-like tables and removes orphaned records.
type DatabaseCleanup struct {
	transactions  db.TransactionRepository
	compensations db.CompensationRepository
	media         db.MediaRepository
	logTables     db.LogTableRepository
	maintenance   db.MaintenanceRepository
	storage       storage.ObjectStorageClient

	maxRetries int
	now        func() time.Time
}

func NewDatabaseCleanup(
	transactions db.TransactionRepository,
	compensations db.CompensationRepository,
	media db.MediaRepository,
	logTables db.LogTableRepository,
	maintenance db.MaintenanceRepository,
	store storage.ObjectStorageClient,
	maxRetries int,
) *DatabaseCleanup {
	return &DatabaseCleanup{
		transactions:  transactions,
		compensations: compensations,
		media:         media,
		logTables:     logTables,
		maintenance:   maintenance,
		storage:       store,
		maxRetries:    maxRetries,
		now:           time.Now,
	}
}

func (d *DatabaseCleanup) Execute(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	switch req.Type {
	case models.TaskTypeExpiredTransactions:
		return d.cleanTransactions(ctx, req, run)
	case models.TaskTypeDatabaseOptimization:
		return d.optimize(ctx, req, run)
	default:
		return nil, fmt.Errorf("database cleanup cannot handle task type %s", req.Type)
	}
}

// cleanTransactions reaps expired non-terminal transactions and then runs the
// compensation retry sweep. Each transaction's cleanup is atomic in the
// repository; a failure on one transaction does not stop the rest.
func (d *DatabaseCleanup) cleanTransactions(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	stats := &models.CleanupStats{}
	now := d.now()

	expired, err := d.transactions.FindExpiredTransactions(ctx, now, req.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("find expired transactions: %w", err)
	}

	run.Progress("cleaning expired transactions", 0, len(expired))

	for i, txn := range expired {
		if run.Cancelled() {
			return stats, ErrCancelled
		}
		stats.ProcessedCount++

		if req.DryRun {
			stats.CleanedCount++
			continue
		}
		if err := d.transactions.CleanupTransaction(ctx, txn.ID); err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("cleanup transaction %s: %v", txn.ID, err))
			continue
		}
		stats.CleanedCount++
		run.Progress("cleaning expired transactions", i+1, len(expired))
	}

	if err := d.retryCompensations(ctx, req, run, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// retryCompensations first retires actions whose retry budget is spent, then
// re-attempts the rest. Retiring first guarantees an exhausted action is
// reported permanently failed exactly once and never attempted again.
func (d *DatabaseCleanup) retryCompensations(ctx context.Context, req models.TaskRequest, run Run, stats *models.CleanupStats) error {
	exhausted, err := d.compensations.FindExhaustedActions(ctx, d.maxRetries, req.BatchSize)
	if err != nil {
		return fmt.Errorf("find exhausted actions: %w", err)
	}
	for _, action := range exhausted {
		if run.Cancelled() {
			return ErrCancelled
		}
		stats.ProcessedCount++
		if req.DryRun {
			stats.SkippedCount++
			continue
		}
		if err := d.compensations.MarkPermanentlyFailed(ctx, action.ID); err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("retire action %s: %v", action.ID, err))
			continue
		}
		slog.Warn("compensation action permanently failed",
			"action_id", action.ID, "transaction_id", action.TransactionID, "retries", action.RetryCount)
		stats.SkippedCount++
	}

	cooldownCutoff := d.now().Add(-compensationCooldown)
	retryable, err := d.compensations.FindRetryableActions(ctx, d.maxRetries, cooldownCutoff, req.BatchSize)
	if err != nil {
		return fmt.Errorf("find retryable actions: %w", err)
	}

	run.Progress("retrying compensations", 0, len(retryable))

	for i, action := range retryable {
		if run.Cancelled() {
			return ErrCancelled
		}
		stats.ProcessedCount++
		if req.DryRun {
			stats.CleanedCount++
			continue
		}

		if err := d.attemptCompensation(ctx, action); err != nil {
			if recErr := d.compensations.RecordFailedAttempt(ctx, action.ID); recErr != nil {
				slog.Error("failed to record compensation attempt", "action_id", action.ID, "error", recErr)
			}
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("compensation %s: %v", action.ID, err))
			continue
		}
		if err := d.compensations.MarkResolved(ctx, action.ID); err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("resolve compensation %s: %v", action.ID, err))
			continue
		}
		stats.CleanedCount++
		run.Progress("retrying compensations", i+1, len(retryable))
	}
	return nil
}

// attemptCompensation re-issues the action's specific remedial operation.
func (d *DatabaseCleanup) attemptCompensation(ctx context.Context, action *models.CompensationAction) error {
	switch action.ActionType {
	case models.CompensationActionDelete:
		return d.storage.DeleteObject(ctx, action.TargetKey)
	case models.CompensationActionRollback:
		return d.transactions.CleanupTransaction(ctx, action.TransactionID)
	default:
		return fmt.Errorf("unknown compensation action type %q", action.ActionType)
	}
}

// optimize prunes log-like tables, removes orphaned records in dependency
// order, then runs the best-effort engine maintenance pass. Maintenance
// failures are logged, not counted against the deletion stats.
func (d *DatabaseCleanup) optimize(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	stats := &models.CleanupStats{}
	now := d.now()
	cutoff := now.AddDate(0, 0, -req.RetentionDays)

	tables := req.Tables
	if len(tables) == 0 {
		tables = defaultLogTables
	}

	for _, table := range tables {
		if run.Cancelled() {
			return stats, ErrCancelled
		}
		run.Progress("pruning "+table, stats.ProcessedCount, 0)

		if req.DryRun {
			count, err := d.logTables.CountRowsOlderThan(ctx, table, cutoff)
			if err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("count %s: %v", table, err))
				continue
			}
			stats.ProcessedCount += count
			stats.CleanedCount += count
			continue
		}

		for {
			deleted, err := d.logTables.DeleteRowsOlderThan(ctx, table, cutoff, req.BatchSize)
			if err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("prune %s: %v", table, err))
				break
			}
			stats.ProcessedCount += deleted
			stats.CleanedCount += deleted
			if deleted < req.BatchSize {
				break
			}
			if run.Cancelled() {
				return stats, ErrCancelled
			}
		}
	}

	if !req.DryRun {
		// Content rows first, then unreferenced resource rows.
		contentDeleted, err := d.media.DeleteOrphanContentRecords(ctx, now.Add(-orphanRecordGrace), req.BatchSize)
		if err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("orphan content records: %v", err))
		} else {
			stats.ProcessedCount += contentDeleted
			stats.CleanedCount += contentDeleted
		}

		resourceDeleted, err := d.media.DeleteOrphanResourceRecords(ctx, req.BatchSize)
		if err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("orphan resource records: %v", err))
		} else {
			stats.ProcessedCount += resourceDeleted
			stats.CleanedCount += resourceDeleted
		}

		run.Progress("optimizing tables", stats.ProcessedCount, 0)
		if err := d.maintenance.OptimizeTables(ctx, tables); err != nil {
			slog.Warn("table optimization failed", "error", err)
		}
	}

	return stats, nil
}

func (d *DatabaseCleanup) Estimate(ctx context.Context, req models.TaskRequest) (*models.ImpactEstimate, error) {
	estimate := &models.ImpactEstimate{}
	now := d.now()

	switch req.Type {
	case models.TaskTypeExpiredTransactions:
		count, err := d.transactions.CountExpiredTransactions(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("count expired transactions: %w", err)
		}
		estimate.Items = count
	case models.TaskTypeDatabaseOptimization:
		cutoff := now.AddDate(0, 0, -req.RetentionDays)
		tables := req.Tables
		if len(tables) == 0 {
			tables = defaultLogTables
		}
		for _, table := range tables {
			count, err := d.logTables.CountRowsOlderThan(ctx, table, cutoff)
			if err != nil {
				return nil, fmt.Errorf("count rows in %s: %w", table, err)
			}
			estimate.Items += count
		}
	default:
		return nil, fmt.Errorf("database cleanup cannot estimate task type %s", req.Type)
	}

	estimate.DurationEstimate = time.Duration(estimate.Items) * 10 * time.Millisecond
	return estimate, nil
}
