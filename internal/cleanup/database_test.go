package cleanup_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mediakeep/sweeper/internal/cleanup"
	"github.com/mediakeep/sweeper/internal/models"
)

var _ = Describe("DatabaseCleanup", func() {
	const maxRetries = 3

	var (
		ctx           context.Context
		transactions  *MockTransactionRepo
		compensations *MockCompensationRepo
		media         *MockMediaRepo
		logTables     *MockLogTableRepo
		maintenance   *MockMaintenanceRepo
		store         *MockStorage
		handler       *cleanup.DatabaseCleanup
		run           *recordingRun
	)

	BeforeEach(func() {
		ctx = context.Background()
		transactions = NewMockTransactionRepo()
		compensations = NewMockCompensationRepo()
		media = NewMockMediaRepo()
		logTables = NewMockLogTableRepo()
		maintenance = NewMockMaintenanceRepo()
		store = NewMockStorage()
		handler = cleanup.NewDatabaseCleanup(transactions, compensations, media, logTables, maintenance, store, maxRetries)
		run = &recordingRun{}
	})

	Describe("expired transaction cleanup", func() {
		BeforeEach(func() {
			transactions.expired = []*models.UploadTransaction{
				{ID: "txn-1", MediaKey: "media/a.mp4", Status: models.TransactionStatusPending},
				{ID: "txn-2", MediaKey: "media/b.mp4", Status: models.TransactionStatusFailed},
			}
		})

		It("should clean every expired transaction", func() {
			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:      models.TaskTypeExpiredTransactions,
				BatchSize: 50,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(2))
			Expect(transactions.cleaned).To(ConsistOf("txn-1", "txn-2"))
		})

		It("should continue when one transaction fails to clean", func() {
			transactions.cleanupErrs["txn-1"] = errors.New("deadlock detected")

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:      models.TaskTypeExpiredTransactions,
				BatchSize: 50,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.FailedCount).To(Equal(1))
			Expect(stats.CleanedCount).To(Equal(1))
			Expect(transactions.cleaned).To(ConsistOf("txn-2"))
		})

		It("should not touch anything in dry-run mode", func() {
			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:      models.TaskTypeExpiredTransactions,
				BatchSize: 50,
				DryRun:    true,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(2))
			Expect(transactions.cleaned).To(BeEmpty())
		})
	})

	Describe("compensation retry sweep", func() {
		It("should resolve a delete action once the object is removed", func() {
			compensations.retryable = []*models.CompensationAction{
				{ID: "comp-1", TransactionID: "txn-1", ActionType: models.CompensationActionDelete, TargetKey: "media/a.mp4", RetryCount: 1},
			}

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:      models.TaskTypeExpiredTransactions,
				BatchSize: 50,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.deleted).To(ConsistOf("media/a.mp4"))
			Expect(compensations.resolved).To(ConsistOf("comp-1"))
			Expect(stats.CleanedCount).To(Equal(1))
		})

		It("should record a failed attempt when the remedial operation fails", func() {
			compensations.retryable = []*models.CompensationAction{
				{ID: "comp-1", TransactionID: "txn-1", ActionType: models.CompensationActionDelete, TargetKey: "media/a.mp4", RetryCount: 1},
			}
			store.deleteErrs["media/a.mp4"] = errors.New("connection refused")

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:      models.TaskTypeExpiredTransactions,
				BatchSize: 50,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(compensations.failedAttempts).To(ConsistOf("comp-1"))
			Expect(compensations.resolved).To(BeEmpty())
			Expect(stats.FailedCount).To(Equal(1))
		})

		It("should re-run the transaction cleanup for rollback actions", func() {
			compensations.retryable = []*models.CompensationAction{
				{ID: "comp-2", TransactionID: "txn-9", ActionType: models.CompensationActionRollback, RetryCount: 2},
			}

			_, err := handler.Execute(ctx, models.TaskRequest{
				Type:      models.TaskTypeExpiredTransactions,
				BatchSize: 50,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(transactions.cleaned).To(ContainElement("txn-9"))
			Expect(compensations.resolved).To(ConsistOf("comp-2"))
		})

		It("should retire exhausted actions without attempting them", func() {
			compensations.exhausted = []*models.CompensationAction{
				{ID: "comp-3", TransactionID: "txn-1", ActionType: models.CompensationActionDelete, TargetKey: "media/x.mp4", RetryCount: maxRetries},
			}

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:      models.TaskTypeExpiredTransactions,
				BatchSize: 50,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(compensations.permanentlyFailed).To(ConsistOf("comp-3"))
			Expect(store.deleted).To(BeEmpty())
			Expect(stats.SkippedCount).To(Equal(1))
		})

		It("should leave exhausted actions untouched in dry-run mode", func() {
			compensations.exhausted = []*models.CompensationAction{
				{ID: "comp-3", RetryCount: maxRetries},
			}

			_, err := handler.Execute(ctx, models.TaskRequest{
				Type:      models.TaskTypeExpiredTransactions,
				BatchSize: 50,
				DryRun:    true,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(compensations.permanentlyFailed).To(BeEmpty())
		})
	})

	Describe("database optimization", func() {
		It("should prune log tables in batches until drained", func() {
			logTables.rows["access_logs"] = 25
			logTables.rows["audit_logs"] = 5

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeDatabaseOptimization,
				RetentionDays: 90,
				BatchSize:     10,
				Tables:        []string{"access_logs", "audit_logs"},
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(30))
			// 25 rows at batch size 10 means three delete calls.
			Expect(logTables.deleteCalls).To(Equal([]string{
				"access_logs", "access_logs", "access_logs", "audit_logs",
			}))
		})

		It("should remove orphaned records and run table maintenance", func() {
			media.contentDeleted = 4
			media.resourceDeleted = 2

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeDatabaseOptimization,
				RetentionDays: 90,
				BatchSize:     100,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(6))
			Expect(maintenance.optimized).To(HaveLen(1))
		})

		It("should only count in dry-run mode", func() {
			logTables.rows["access_logs"] = 12

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeDatabaseOptimization,
				RetentionDays: 90,
				BatchSize:     10,
				Tables:        []string{"access_logs"},
				DryRun:        true,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(12))
			Expect(logTables.deleteCalls).To(BeEmpty())
			Expect(maintenance.optimized).To(BeEmpty())
		})
	})

	Describe("Estimate", func() {
		It("should preview the expired transaction count", func() {
			transactions.count = 17

			estimate, err := handler.Estimate(ctx, models.TaskRequest{
				Type: models.TaskTypeExpiredTransactions,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(estimate.Items).To(Equal(17))
			Expect(transactions.cleaned).To(BeEmpty())
		})

		It("should sum prunable rows across log tables", func() {
			logTables.rows["access_logs"] = 10
			logTables.rows["audit_logs"] = 15

			estimate, err := handler.Estimate(ctx, models.TaskRequest{
				Type:          models.TaskTypeDatabaseOptimization,
				RetentionDays: 90,
				Tables:        []string{"access_logs", "audit_logs"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(estimate.Items).To(Equal(25))
		})
	})

	It("should refuse task types outside its domain", func() {
		_, err := handler.Execute(ctx, models.TaskRequest{Type: models.TaskTypeLogCleanup}, run)
		Expect(err).To(HaveOccurred())
	})

	It("should stop the sweep at a batch boundary when cancelled", func() {
		transactions.expired = []*models.UploadTransaction{{ID: "txn-1"}}
		run.cancelled = true

		_, err := handler.Execute(ctx, models.TaskRequest{
			Type:      models.TaskTypeExpiredTransactions,
			BatchSize: 50,
		}, run)
		Expect(err).To(MatchError(cleanup.ErrCancelled))
		Expect(transactions.cleaned).To(BeEmpty())
	})
})
