package config_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mediakeep/sweeper/internal/config"
	"github.com/mediakeep/sweeper/internal/models"
)

func validConfig() config.Config {
	return config.Config{
		MaxConcurrentTasks: 2,
		DefaultTimeout:     10 * time.Minute,
		RetryDelay:         5 * time.Minute,
		StorageEndpoint:    "localhost:9000",
		StorageAccessKey:   "access",
		StorageSecretKey:   "secret",
		StorageBucket:      "media",
		DatabaseURL:        "postgres://localhost:5432/sweeper",
		Tasks:              config.DefaultTaskConfigs(),
	}
}

var _ = Describe("Manager", func() {
	var manager *config.Manager

	BeforeEach(func() {
		var err error
		manager, err = config.NewManager(validConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewManager", func() {
		Context("when the config is invalid", func() {
			It("should reject a non-positive concurrency limit", func() {
				cfg := validConfig()
				cfg.MaxConcurrentTasks = 0

				_, err := config.NewManager(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("max_concurrent_tasks"))
			})

			It("should reject missing storage credentials", func() {
				cfg := validConfig()
				cfg.StorageAccessKey = ""

				_, err := config.NewManager(cfg)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("GetConfig", func() {
		It("should return a copy that does not alias the live task map", func() {
			snapshot := manager.GetConfig()
			snapshot.Tasks[models.TaskTypeOrphanFiles] = models.TaskConfig{}

			current, err := manager.GetTaskConfig(models.TaskTypeOrphanFiles)
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Enabled).To(BeTrue())
		})
	})

	Describe("UpdateConfig", func() {
		It("should apply only the set fields", func() {
			limit := 5
			Expect(manager.UpdateConfig(config.GlobalUpdate{MaxConcurrentTasks: &limit})).To(Succeed())

			cfg := manager.GetConfig()
			Expect(cfg.MaxConcurrentTasks).To(Equal(5))
			Expect(cfg.DefaultTimeout).To(Equal(10 * time.Minute))
		})

		It("should reject an invalid update and keep the previous config", func() {
			limit := -1
			err := manager.UpdateConfig(config.GlobalUpdate{MaxConcurrentTasks: &limit})
			Expect(err).To(HaveOccurred())
			Expect(manager.GetConfig().MaxConcurrentTasks).To(Equal(2))
		})
	})

	Describe("UpdateTaskConfig", func() {
		It("should merge set fields over the stored policy", func() {
			retention := 14
			dryRun := true
			err := manager.UpdateTaskConfig(models.TaskTypeOrphanFiles, config.TaskConfigUpdate{
				RetentionDays: &retention,
				DryRun:        &dryRun,
			})
			Expect(err).NotTo(HaveOccurred())

			cfg, err := manager.GetTaskConfig(models.TaskTypeOrphanFiles)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.RetentionDays).To(Equal(14))
			Expect(cfg.DryRun).To(BeTrue())
			Expect(cfg.MaxRetries).To(Equal(3))
		})

		It("should return ErrUnknownTaskType for an unknown type", func() {
			err := manager.UpdateTaskConfig("defrag_floppy", config.TaskConfigUpdate{})
			Expect(err).To(MatchError(config.ErrUnknownTaskType))
		})

		It("should reject an invalid schedule and keep the previous config", func() {
			schedule := "every full moon"
			err := manager.UpdateTaskConfig(models.TaskTypeCacheCleanup, config.TaskConfigUpdate{
				Schedule: &schedule,
			})
			Expect(err).To(HaveOccurred())

			cfg, err := manager.GetTaskConfig(models.TaskTypeCacheCleanup)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Schedule).To(Equal("15 * * * *"))
		})

		It("should reject a non-positive timeout", func() {
			timeout := time.Duration(0)
			err := manager.UpdateTaskConfig(models.TaskTypeLogCleanup, config.TaskConfigUpdate{
				Timeout: &timeout,
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("EnableTask and DisableTask", func() {
		It("should toggle the enabled flag", func() {
			Expect(manager.DisableTask(models.TaskTypeTempFiles)).To(Succeed())
			cfg, _ := manager.GetTaskConfig(models.TaskTypeTempFiles)
			Expect(cfg.Enabled).To(BeFalse())

			Expect(manager.EnableTask(models.TaskTypeTempFiles)).To(Succeed())
			cfg, _ = manager.GetTaskConfig(models.TaskTypeTempFiles)
			Expect(cfg.Enabled).To(BeTrue())
		})
	})

	Describe("ExportConfig and ImportConfig", func() {
		It("should round-trip the configuration through YAML", func() {
			retention := 21
			Expect(manager.UpdateTaskConfig(models.TaskTypeLogCleanup, config.TaskConfigUpdate{
				RetentionDays: &retention,
			})).To(Succeed())

			exported, err := manager.ExportConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(exported).To(ContainSubstring("log_cleanup"))

			other, err := config.NewManager(validConfig())
			Expect(err).NotTo(HaveOccurred())

			validationErrs, err := other.ImportConfig(exported)
			Expect(err).NotTo(HaveOccurred())
			Expect(validationErrs).To(BeEmpty())

			cfg, err := other.GetTaskConfig(models.TaskTypeLogCleanup)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.RetentionDays).To(Equal(21))
		})

		It("should reject an unparseable document", func() {
			_, err := manager.ImportConfig(":\n  - not yaml")
			Expect(err).To(HaveOccurred())
		})

		It("should keep the previous config when the import fails validation", func() {
			exported, err := manager.ExportConfig()
			Expect(err).NotTo(HaveOccurred())

			broken := strings.Replace(exported, "max_concurrent_tasks: 2", "max_concurrent_tasks: 0", 1)
			validationErrs, err := manager.ImportConfig(broken)
			Expect(err).To(HaveOccurred())
			Expect(validationErrs).NotTo(BeEmpty())
			Expect(manager.GetConfig().MaxConcurrentTasks).To(Equal(2))
		})
	})

	Describe("ValidateConfig", func() {
		It("should report the live config as valid", func() {
			result := manager.ValidateConfig()
			Expect(result.Valid).To(BeTrue())
			Expect(result.Errors).To(BeEmpty())
		})
	})
})
