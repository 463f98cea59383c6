package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mediakeep/sweeper/internal/db"
	"github.com/mediakeep/sweeper/internal/models"
)

// logTables is the allow-list for name-keyed pruning. Dynamic table names
// never reach the SQL text unless present here.
var logTables = map[string]struct{}{
	"access_logs":      {},
	"audit_logs":       {},
	"job_logs":         {},
	"notification_log": {},
}

// DB implements every repository interface in internal/db against Postgres.
type DB struct {
	conn *sql.DB
}

func New(dbURL string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*DB, error) {
	conn, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetMaxIdleConns(maxIdleConns)
	conn.SetConnMaxLifetime(connMaxLifetime)
	conn.SetConnMaxIdleTime(connMaxIdleTime)

	if err := conn.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) FindExpiredTransactions(ctx context.Context, before time.Time, limit int) ([]*models.UploadTransaction, error) {
	query := `
		SELECT id, media_key, status, created_at, expires_at
		FROM upload_transactions
		WHERE expires_at < $1 AND status NOT IN ('uploaded', 'cleaned')
		ORDER BY expires_at ASC
		LIMIT $2
	`
	rows, err := d.conn.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("find expired transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*models.UploadTransaction, 0)
	for rows.Next() {
		txn := &models.UploadTransaction{}
		if err := rows.Scan(&txn.ID, &txn.MediaKey, &txn.Status, &txn.CreatedAt, &txn.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// CleanupTransaction removes the transaction's compensation actions and marks
// it cleaned in a single database transaction.
func (d *DB) CleanupTransaction(ctx context.Context, transactionID string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM compensation_actions WHERE transaction_id = $1`, transactionID); err != nil {
		return fmt.Errorf("delete compensation actions: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE upload_transactions SET status = 'cleaned' WHERE id = $1`, transactionID)
	if err != nil {
		return fmt.Errorf("mark transaction cleaned: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cleanup transaction: %w", err)
	}
	return nil
}

func (d *DB) CountExpiredTransactions(ctx context.Context, before time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM upload_transactions
		WHERE expires_at < $1 AND status NOT IN ('uploaded', 'cleaned')
	`
	var count int
	if err := d.conn.QueryRowContext(ctx, query, before).Scan(&count); err != nil {
		return 0, fmt.Errorf("count expired transactions: %w", err)
	}
	return count, nil
}

func (d *DB) FindRetryableActions(ctx context.Context, maxRetries int, attemptedBefore time.Time, limit int) ([]*models.CompensationAction, error) {
	query := `
		SELECT id, transaction_id, action_type, target_key, status, retry_count, last_attempt_at, created_at
		FROM compensation_actions
		WHERE status = 'failed'
		  AND retry_count < $1
		  AND (last_attempt_at IS NULL OR last_attempt_at < $2)
		ORDER BY created_at ASC
		LIMIT $3
	`
	rows, err := d.conn.QueryContext(ctx, query, maxRetries, attemptedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("find retryable actions: %w", err)
	}
	defer rows.Close()

	actions := make([]*models.CompensationAction, 0)
	for rows.Next() {
		action := &models.CompensationAction{}
		if err := rows.Scan(
			&action.ID, &action.TransactionID, &action.ActionType, &action.TargetKey,
			&action.Status, &action.RetryCount, &action.LastAttemptAt, &action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan compensation action: %w", err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// FindExhaustedActions returns failed actions whose retry budget is spent.
// Marking them permanently failed removes them from this query, so each is
// reported exactly once.
func (d *DB) FindExhaustedActions(ctx context.Context, maxRetries int, limit int) ([]*models.CompensationAction, error) {
	query := `
		SELECT id, transaction_id, action_type, target_key, status, retry_count, last_attempt_at, created_at
		FROM compensation_actions
		WHERE status = 'failed' AND retry_count >= $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := d.conn.QueryContext(ctx, query, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("find exhausted actions: %w", err)
	}
	defer rows.Close()

	actions := make([]*models.CompensationAction, 0)
	for rows.Next() {
		action := &models.CompensationAction{}
		if err := rows.Scan(
			&action.ID, &action.TransactionID, &action.ActionType, &action.TargetKey,
			&action.Status, &action.RetryCount, &action.LastAttemptAt, &action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan compensation action: %w", err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func (d *DB) MarkResolved(ctx context.Context, actionID string) error {
	query := `
		UPDATE compensation_actions
		SET status = 'resolved', last_attempt_at = NOW()
		WHERE id = $1
	`
	result, err := d.conn.ExecContext(ctx, query, actionID)
	if err != nil {
		return fmt.Errorf("mark action resolved: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (d *DB) RecordFailedAttempt(ctx context.Context, actionID string) error {
	query := `
		UPDATE compensation_actions
		SET retry_count = retry_count + 1, last_attempt_at = NOW()
		WHERE id = $1
	`
	result, err := d.conn.ExecContext(ctx, query, actionID)
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (d *DB) MarkPermanentlyFailed(ctx context.Context, actionID string) error {
	query := `
		UPDATE compensation_actions
		SET status = 'permanently_failed', last_attempt_at = NOW()
		WHERE id = $1
	`
	result, err := d.conn.ExecContext(ctx, query, actionID)
	if err != nil {
		return fmt.Errorf("mark action permanently failed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrNotFound
	}
	return nil
}

// RecordOrphan upserts a sighting: first sighting sets first_seen, later
// sightings advance last_seen and the current metadata.
func (d *DB) RecordOrphan(ctx context.Context, info *models.OrphanFileInfo) error {
	query := `
		INSERT INTO orphan_files (key, size, last_modified, retention_expiry, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE
		SET size = EXCLUDED.size,
		    last_modified = EXCLUDED.last_modified,
		    retention_expiry = EXCLUDED.retention_expiry,
		    last_seen = NOW()
	`
	_, err := d.conn.ExecContext(ctx, query, info.Key, info.Size, info.LastModified, info.RetentionExpiry)
	if err != nil {
		return fmt.Errorf("record orphan: %w", err)
	}
	return nil
}

func (d *DB) RemoveOrphan(ctx context.Context, key string) error {
	_, err := d.conn.ExecContext(ctx, `DELETE FROM orphan_files WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("remove orphan: %w", err)
	}
	return nil
}

func (d *DB) ListOrphans(ctx context.Context, limit int) ([]*models.OrphanFileInfo, error) {
	query := `
		SELECT key, size, last_modified, retention_expiry, first_seen, last_seen
		FROM orphan_files
		ORDER BY first_seen ASC
		LIMIT $1
	`
	rows, err := d.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	defer rows.Close()

	orphans := make([]*models.OrphanFileInfo, 0)
	for rows.Next() {
		info := &models.OrphanFileInfo{}
		if err := rows.Scan(&info.Key, &info.Size, &info.LastModified, &info.RetentionExpiry, &info.FirstSeen, &info.LastSeen); err != nil {
			return nil, fmt.Errorf("scan orphan: %w", err)
		}
		orphans = append(orphans, info)
	}
	return orphans, rows.Err()
}

func (d *DB) IsProtected(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := d.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM protected_files WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check protected: %w", err)
	}
	return exists, nil
}

func (d *DB) ListProtectedKeys(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT key FROM protected_files`)
	if err != nil {
		return nil, fmt.Errorf("list protected keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan protected key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (d *DB) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT storage_key FROM media_files WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("query referenced keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan referenced key: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// DeleteOrphanContentRecords removes content rows referencing no media file,
// respecting a short grace window for in-flight uploads.
func (d *DB) DeleteOrphanContentRecords(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	query := `
		DELETE FROM content_records
		WHERE id IN (
			SELECT c.id FROM content_records c
			LEFT JOIN media_files m ON m.id = c.media_file_id
			WHERE m.id IS NULL AND c.created_at < $1
			LIMIT $2
		)
	`
	result, err := d.conn.ExecContext(ctx, query, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("delete orphan content records: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (d *DB) DeleteOrphanResourceRecords(ctx context.Context, limit int) (int, error) {
	query := `
		DELETE FROM media_files
		WHERE id IN (
			SELECT m.id FROM media_files m
			LEFT JOIN content_records c ON c.media_file_id = m.id
			WHERE c.id IS NULL AND m.deleted_at IS NOT NULL
			LIMIT $1
		)
	`
	result, err := d.conn.ExecContext(ctx, query, limit)
	if err != nil {
		return 0, fmt.Errorf("delete orphan resource records: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (d *DB) DeleteRowsOlderThan(ctx context.Context, table string, cutoff time.Time, limit int) (int, error) {
	if _, ok := logTables[table]; !ok {
		return 0, fmt.Errorf("table %q is not a known log table", table)
	}
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id IN (SELECT id FROM %s WHERE created_at < $1 LIMIT $2)
	`, table, table)
	result, err := d.conn.ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", table, err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (d *DB) CountRowsOlderThan(ctx context.Context, table string, cutoff time.Time) (int, error) {
	if _, ok := logTables[table]; !ok {
		return 0, fmt.Errorf("table %q is not a known log table", table)
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE created_at < $1`, table)
	var count int
	if err := d.conn.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

func (d *DB) OptimizeTables(ctx context.Context, tables []string) error {
	for _, table := range tables {
		if _, ok := logTables[table]; !ok && !coreTable(table) {
			return fmt.Errorf("table %q is not eligible for optimization", table)
		}
		if _, err := d.conn.ExecContext(ctx, fmt.Sprintf(`VACUUM ANALYZE %s`, table)); err != nil {
			return fmt.Errorf("vacuum %s: %w", table, err)
		}
	}
	return nil
}

func coreTable(table string) bool {
	switch table {
	case "upload_transactions", "compensation_actions", "media_files", "content_records", "orphan_files":
		return true
	}
	return false
}
