package taskman_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mediakeep/sweeper/internal/models"
	"github.com/mediakeep/sweeper/internal/taskman"
)

func completedResult(taskType models.TaskType, id string) models.CleanupResult {
	now := time.Now()
	return models.CleanupResult{
		ID:          id,
		TaskType:    taskType,
		Status:      models.ResultStatusCompleted,
		StartedAt:   now.Add(-time.Minute),
		CompletedAt: now,
		Duration:    time.Minute,
	}
}

var _ = Describe("Manager", func() {
	var manager *taskman.Manager

	BeforeEach(func() {
		manager = taskman.NewManager(0)
	})

	Describe("TryStart", func() {
		It("should claim the slot for a task type", func() {
			run, ok := manager.TryStart(models.TaskTypeOrphanFiles)
			Expect(ok).To(BeTrue())
			Expect(run).NotTo(BeNil())
			Expect(manager.IsRunning(models.TaskTypeOrphanFiles)).To(BeTrue())
		})

		It("should reject a second start of the same type", func() {
			_, ok := manager.TryStart(models.TaskTypeOrphanFiles)
			Expect(ok).To(BeTrue())

			_, ok = manager.TryStart(models.TaskTypeOrphanFiles)
			Expect(ok).To(BeFalse())
		})

		It("should allow different types to run side by side", func() {
			_, ok := manager.TryStart(models.TaskTypeOrphanFiles)
			Expect(ok).To(BeTrue())
			_, ok = manager.TryStart(models.TaskTypeCacheCleanup)
			Expect(ok).To(BeTrue())

			Expect(manager.RunningTasks()).To(ConsistOf(
				models.TaskTypeOrphanFiles, models.TaskTypeCacheCleanup))
		})
	})

	Describe("Finish", func() {
		It("should release the slot and record the result", func() {
			_, ok := manager.TryStart(models.TaskTypeTempFiles)
			Expect(ok).To(BeTrue())

			manager.Finish(models.TaskTypeTempFiles, completedResult(models.TaskTypeTempFiles, "r1"))

			Expect(manager.IsRunning(models.TaskTypeTempFiles)).To(BeFalse())
			Expect(manager.History(0)).To(HaveLen(1))

			_, ok = manager.TryStart(models.TaskTypeTempFiles)
			Expect(ok).To(BeTrue())
		})
	})

	Describe("RequestCancel", func() {
		It("should flag the run and mark progress as cancelling", func() {
			run, ok := manager.TryStart(models.TaskTypeSessionCleanup)
			Expect(ok).To(BeTrue())
			Expect(run.Cancelled()).To(BeFalse())

			Expect(manager.RequestCancel(models.TaskTypeSessionCleanup)).To(BeTrue())
			Expect(run.Cancelled()).To(BeTrue())

			progress, ok := manager.GetProgress(models.TaskTypeSessionCleanup)
			Expect(ok).To(BeTrue())
			Expect(progress.Status).To(Equal(models.ProgressStatusCancelling))
		})

		It("should return false when nothing is running", func() {
			Expect(manager.RequestCancel(models.TaskTypeSessionCleanup)).To(BeFalse())
		})
	})

	Describe("progress tracking", func() {
		It("should expose step, counters and percent through GetProgress", func() {
			run, ok := manager.TryStart(models.TaskTypeLogCleanup)
			Expect(ok).To(BeTrue())

			run.Progress("compressing", 25, 100)

			progress, ok := manager.GetProgress(models.TaskTypeLogCleanup)
			Expect(ok).To(BeTrue())
			Expect(progress.CurrentStep).To(Equal("compressing"))
			Expect(progress.ItemsProcessed).To(Equal(25))
			Expect(progress.EstimatedTotal).To(Equal(100))
			Expect(progress.Percent).To(BeNumerically("~", 25.0, 0.001))
		})

		It("should drop progress once the task finishes", func() {
			_, ok := manager.TryStart(models.TaskTypeLogCleanup)
			Expect(ok).To(BeTrue())
			manager.Finish(models.TaskTypeLogCleanup, completedResult(models.TaskTypeLogCleanup, "r1"))

			_, ok = manager.GetProgress(models.TaskTypeLogCleanup)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("History", func() {
		It("should return newest results first", func() {
			for i := 0; i < 3; i++ {
				_, ok := manager.TryStart(models.TaskTypeCacheCleanup)
				Expect(ok).To(BeTrue())
				manager.Finish(models.TaskTypeCacheCleanup,
					completedResult(models.TaskTypeCacheCleanup, fmt.Sprintf("r%d", i)))
			}

			history := manager.History(2)
			Expect(history).To(HaveLen(2))
			Expect(history[0].ID).To(Equal("r2"))
			Expect(history[1].ID).To(Equal("r1"))
		})

		It("should evict the oldest entries past the limit", func() {
			bounded := taskman.NewManager(5)
			for i := 0; i < 8; i++ {
				_, ok := bounded.TryStart(models.TaskTypeTempFiles)
				Expect(ok).To(BeTrue())
				bounded.Finish(models.TaskTypeTempFiles,
					completedResult(models.TaskTypeTempFiles, fmt.Sprintf("r%d", i)))
			}

			history := bounded.History(0)
			Expect(history).To(HaveLen(5))
			Expect(history[0].ID).To(Equal("r7"))
			Expect(history[4].ID).To(Equal("r3"))
		})
	})

	Describe("Snapshot", func() {
		It("should aggregate success rate, duration and bytes freed", func() {
			results := []models.CleanupResult{
				completedResult(models.TaskTypeOrphanFiles, "r1"),
				completedResult(models.TaskTypeOrphanFiles, "r2"),
				completedResult(models.TaskTypeCacheCleanup, "r3"),
			}
			results[0].Stats.BytesFreed = 1 << 20
			results[1].Stats.BytesFreed = 2 << 20
			results[2].Status = models.ResultStatusFailed

			for _, result := range results {
				_, ok := manager.TryStart(result.TaskType)
				Expect(ok).To(BeTrue())
				manager.Finish(result.TaskType, result)
			}

			stats := manager.Snapshot()
			Expect(stats.TotalExecuted).To(Equal(3))
			Expect(stats.SuccessRate).To(BeNumerically("~", 2.0/3.0, 0.001))
			Expect(stats.AverageDuration).To(Equal(time.Minute))
			Expect(stats.TotalBytesFreed).To(Equal(int64(3 << 20)))
			Expect(stats.MostFrequentTask).To(Equal(models.TaskTypeOrphanFiles))
			Expect(stats.Uptime).To(BeNumerically(">", 0))
		})

		It("should return zero values with no history", func() {
			stats := manager.Snapshot()
			Expect(stats.TotalExecuted).To(BeZero())
			Expect(stats.SuccessRate).To(BeZero())
		})
	})

	Describe("SuccessRateFor", func() {
		It("should compute the per-type rate", func() {
			for i, status := range []models.ResultStatus{
				models.ResultStatusCompleted,
				models.ResultStatusFailed,
			} {
				result := completedResult(models.TaskTypeLogCleanup, fmt.Sprintf("r%d", i))
				result.Status = status
				_, ok := manager.TryStart(models.TaskTypeLogCleanup)
				Expect(ok).To(BeTrue())
				manager.Finish(models.TaskTypeLogCleanup, result)
			}

			rate, ok := manager.SuccessRateFor(models.TaskTypeLogCleanup)
			Expect(ok).To(BeTrue())
			Expect(rate).To(BeNumerically("~", 0.5, 0.001))

			_, ok = manager.SuccessRateFor(models.TaskTypeCacheCleanup)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("RecentErrors", func() {
		It("should flatten failed results newest first", func() {
			first := completedResult(models.TaskTypeTempFiles, "r1")
			first.Status = models.ResultStatusFailed
			first.Error = "first failure"

			second := completedResult(models.TaskTypeTempFiles, "r2")
			second.Status = models.ResultStatusFailed
			second.Error = "second failure"
			second.Stats.Errors = []string{"delete temp/a: denied"}

			for _, result := range []models.CleanupResult{first, second} {
				_, ok := manager.TryStart(result.TaskType)
				Expect(ok).To(BeTrue())
				manager.Finish(result.TaskType, result)
			}

			errs := manager.RecentErrors(10)
			Expect(errs).To(Equal([]string{
				"second failure",
				"delete temp/a: denied",
				"first failure",
			}))
		})
	})

	Describe("FailedEligibleForRetry", func() {
		It("should return recent failures whose type is idle", func() {
			failed := completedResult(models.TaskTypeCacheCleanup, "r1")
			failed.Status = models.ResultStatusFailed
			_, ok := manager.TryStart(models.TaskTypeCacheCleanup)
			Expect(ok).To(BeTrue())
			manager.Finish(models.TaskTypeCacheCleanup, failed)

			eligible := manager.FailedEligibleForRetry(time.Hour)
			Expect(eligible).To(HaveLen(1))
			Expect(eligible[0].ID).To(Equal("r1"))
		})

		It("should skip failures whose type is running again", func() {
			failed := completedResult(models.TaskTypeCacheCleanup, "r1")
			failed.Status = models.ResultStatusFailed
			_, ok := manager.TryStart(models.TaskTypeCacheCleanup)
			Expect(ok).To(BeTrue())
			manager.Finish(models.TaskTypeCacheCleanup, failed)

			_, ok = manager.TryStart(models.TaskTypeCacheCleanup)
			Expect(ok).To(BeTrue())

			Expect(manager.FailedEligibleForRetry(time.Hour)).To(BeEmpty())
		})
	})
})
