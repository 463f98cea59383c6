package cleanup_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mediakeep/sweeper/internal/cleanup"
	"github.com/mediakeep/sweeper/internal/models"
)

func writeLogFile(dir, name string, age time.Duration) string {
	path := filepath.Join(dir, name)
	content := strings.Repeat("level=info msg=\"request served\"\n", 400)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

	modTime := time.Now().Add(-age)
	Expect(os.Chtimes(path, modTime, modTime)).To(Succeed())
	return path
}

var _ = Describe("LogCleanup", func() {
	var (
		ctx     context.Context
		dir     string
		handler *cleanup.LogCleanup
		run     *recordingRun
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		handler = cleanup.NewLogCleanup(dir)
		run = &recordingRun{}
	})

	Describe("deletion", func() {
		It("should delete files past retention and keep the rest", func() {
			oldPath := writeLogFile(dir, "app.log", 40*24*time.Hour)
			freshPath := writeLogFile(dir, "fresh.log", 24*time.Hour)

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(1))
			Expect(stats.SkippedCount).To(Equal(1))
			Expect(stats.BytesFreed).To(BeNumerically(">", 0))
			Expect(oldPath).NotTo(BeAnExistingFile())
			Expect(freshPath).To(BeAnExistingFile())
		})

		It("should ignore files that are not logs", func() {
			path := filepath.Join(dir, "notes.txt")
			Expect(os.WriteFile(path, []byte("keep me"), 0o644)).To(Succeed())
			modTime := time.Now().Add(-40 * 24 * time.Hour)
			Expect(os.Chtimes(path, modTime, modTime)).To(Succeed())

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.ProcessedCount).To(BeZero())
			Expect(path).To(BeAnExistingFile())
		})

		It("should filter by name patterns when given", func() {
			errorPath := writeLogFile(dir, "error.log", 40*24*time.Hour)
			accessPath := writeLogFile(dir, "access.log", 40*24*time.Hour)

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
				Patterns:      []string{"error"},
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(1))
			Expect(errorPath).NotTo(BeAnExistingFile())
			Expect(accessPath).To(BeAnExistingFile())
		})

		It("should walk nested directories", func() {
			nested := filepath.Join(dir, "service-a")
			Expect(os.MkdirAll(nested, 0o755)).To(Succeed())
			nestedPath := writeLogFile(nested, "worker.log", 40*24*time.Hour)

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(1))
			Expect(nestedPath).NotTo(BeAnExistingFile())
		})
	})

	Describe("compression", func() {
		It("should gzip aged logs in place and report the bytes saved", func() {
			oldPath := writeLogFile(dir, "app.log", 40*24*time.Hour)

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
				CompressOld:   true,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(1))
			Expect(stats.BytesFreed).To(BeNumerically(">", 0))
			Expect(oldPath).NotTo(BeAnExistingFile())
			Expect(oldPath + ".gz").To(BeAnExistingFile())
		})

		It("should not recompress gzipped logs", func() {
			path := writeLogFile(dir, "app.log.gz", 40*24*time.Hour)

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
				CompressOld:   true,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			// Already compressed files fall through to deletion.
			Expect(stats.CleanedCount).To(Equal(1))
			Expect(path).NotTo(BeAnExistingFile())
			Expect(path + ".gz").NotTo(BeAnExistingFile())
		})
	})

	Describe("archival", func() {
		It("should move aged logs into a dated archive directory", func() {
			oldPath := writeLogFile(dir, "app.log", 40*24*time.Hour)
			archiveDir := GinkgoT().TempDir()

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
				ArchivePath:   archiveDir,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(1))
			Expect(oldPath).NotTo(BeAnExistingFile())

			dateDir := filepath.Join(archiveDir, time.Now().Format("2006-01-02"))
			Expect(filepath.Join(dateDir, "app.log")).To(BeAnExistingFile())
		})

		It("should compress archived logs when both options are set", func() {
			writeLogFile(dir, "app.log", 40*24*time.Hour)
			archiveDir := GinkgoT().TempDir()

			_, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
				ArchivePath:   archiveDir,
				CompressOld:   true,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			dateDir := filepath.Join(archiveDir, time.Now().Format("2006-01-02"))
			Expect(filepath.Join(dateDir, "app.log.gz")).To(BeAnExistingFile())
			Expect(filepath.Join(dateDir, "app.log")).NotTo(BeAnExistingFile())
		})
	})

	Describe("dry-run", func() {
		It("should report without touching the filesystem", func() {
			oldPath := writeLogFile(dir, "app.log", 40*24*time.Hour)

			stats, err := handler.Execute(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
				DryRun:        true,
			}, run)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.CleanedCount).To(Equal(1))
			Expect(stats.BytesFreed).To(BeNumerically(">", 0))
			Expect(oldPath).To(BeAnExistingFile())
		})
	})

	Describe("Estimate", func() {
		It("should count eligible files and their sizes", func() {
			writeLogFile(dir, "app.log", 40*24*time.Hour)
			writeLogFile(dir, "fresh.log", 24*time.Hour)

			estimate, err := handler.Estimate(ctx, models.TaskRequest{
				Type:          models.TaskTypeLogCleanup,
				RetentionDays: 30,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(estimate.Items).To(Equal(1))
			Expect(estimate.Bytes).To(BeNumerically(">", 0))
		})
	})

	It("should refuse task types outside its domain", func() {
		_, err := handler.Execute(ctx, models.TaskRequest{Type: models.TaskTypeCacheCleanup}, run)
		Expect(err).To(HaveOccurred())
	})

	It("should stop at the batch boundary when cancelled", func() {
		writeLogFile(dir, "app.log", 40*24*time.Hour)
		run.cancelled = true

		_, err := handler.Execute(ctx, models.TaskRequest{
			Type:          models.TaskTypeLogCleanup,
			RetentionDays: 30,
		}, run)
		Expect(err).To(MatchError(cleanup.ErrCancelled))
	})
})
