package db

import (
	"context"
	"errors"
	"time"

	"github.com/mediakeep/sweeper/internal/models"
)

var ErrNotFound = errors.New("not found")

// TransactionRepository reads and mutates upload transaction records.
// CleanupTransaction must remove the transaction's compensation actions and
// mark it cleaned inside one atomic unit of work.
type TransactionRepository interface {
	FindExpiredTransactions(ctx context.Context, before time.Time, limit int) ([]*models.UploadTransaction, error)
	CleanupTransaction(ctx context.Context, transactionID string) error
	CountExpiredTransactions(ctx context.Context, before time.Time) (int, error)
}

// CompensationRepository manages the compensation action queue.
type CompensationRepository interface {
	FindRetryableActions(ctx context.Context, maxRetries int, attemptedBefore time.Time, limit int) ([]*models.CompensationAction, error)
	FindExhaustedActions(ctx context.Context, maxRetries int, limit int) ([]*models.CompensationAction, error)
	MarkResolved(ctx context.Context, actionID string) error
	RecordFailedAttempt(ctx context.Context, actionID string) error
	MarkPermanentlyFailed(ctx context.Context, actionID string) error
}

// OrphanFileRegistry is the audit trail for storage objects discovered with
// no referencing media record. Upsert semantics: first sighting sets
// first_seen, later sightings only advance last_seen.
type OrphanFileRegistry interface {
	RecordOrphan(ctx context.Context, info *models.OrphanFileInfo) error
	RemoveOrphan(ctx context.Context, key string) error
	ListOrphans(ctx context.Context, limit int) ([]*models.OrphanFileInfo, error)
}

// ProtectedFileRegistry answers whether a key is excluded from automatic
// deletion.
type ProtectedFileRegistry interface {
	IsProtected(ctx context.Context, key string) (bool, error)
	ListProtectedKeys(ctx context.Context) ([]string, error)
}

// MediaRepository exposes the set of storage keys the media table references.
type MediaRepository interface {
	ReferencedKeys(ctx context.Context) (map[string]struct{}, error)
	DeleteOrphanContentRecords(ctx context.Context, olderThan time.Time, limit int) (int, error)
	DeleteOrphanResourceRecords(ctx context.Context, limit int) (int, error)
}

// LogTableRepository prunes rows from log-like tables keyed by name.
// Implementations must reject table names outside their allow-list.
type LogTableRepository interface {
	DeleteRowsOlderThan(ctx context.Context, table string, cutoff time.Time, limit int) (int, error)
	CountRowsOlderThan(ctx context.Context, table string, cutoff time.Time) (int, error)
}

// MaintenanceRepository runs engine-specific table maintenance. Best effort,
// not part of deletion accounting.
type MaintenanceRepository interface {
	OptimizeTables(ctx context.Context, tables []string) error
}
