package cleanup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediakeep/sweeper/internal/models"
)

// LogCleanup deletes, compresses or archives log files in a directory tree
// once they age past retention.
type LogCleanup struct {
	dir string
	now func() time.Time
}

func NewLogCleanup(dir string) *LogCleanup {
	return &LogCleanup{dir: dir, now: time.Now}
}

func (l *LogCleanup) Execute(ctx context.Context, req models.TaskRequest, run Run) (*models.CleanupStats, error) {
	if req.Type != models.TaskTypeLogCleanup {
		return nil, fmt.Errorf("log cleanup cannot handle task type %s", req.Type)
	}

	stats := &models.CleanupStats{}
	now := l.now()

	files, err := l.collectLogFiles(req.Patterns)
	if err != nil {
		return nil, fmt.Errorf("scan log directory: %w", err)
	}

	run.Progress("scanning log files", 0, len(files))

	for i, file := range files {
		if run.Cancelled() {
			return stats, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.ProcessedCount++

		info, err := os.Stat(file)
		if err != nil {
			stats.FailedCount++
			stats.Errors = append(stats.Errors, fmt.Sprintf("stat %s: %v", file, err))
			continue
		}

		if !RetentionEligible(info.ModTime(), now, req.RetentionDays) {
			stats.SkippedCount++
			continue
		}

		if req.DryRun {
			stats.CleanedCount++
			stats.BytesFreed += info.Size()
			continue
		}

		switch {
		case req.ArchivePath != "":
			if err := l.archive(file, req.ArchivePath, req.CompressOld, now); err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("archive %s: %v", file, err))
				continue
			}
			stats.CleanedCount++
		case req.CompressOld && !strings.HasSuffix(file, ".gz"):
			freed, err := l.compress(file)
			if err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("compress %s: %v", file, err))
				continue
			}
			stats.CleanedCount++
			stats.BytesFreed += freed
		default:
			if err := os.Remove(file); err != nil {
				stats.FailedCount++
				stats.Errors = append(stats.Errors, fmt.Sprintf("delete %s: %v", file, err))
				continue
			}
			stats.CleanedCount++
			stats.BytesFreed += info.Size()
		}

		run.Progress("processing log files", i+1, len(files))
	}

	return stats, nil
}

// collectLogFiles walks the log directory for log-like files. Patterns, when
// given, are name substrings (a "level" filter heuristic, not a parsed log
// format).
func (l *LogCleanup) collectLogFiles(patterns []string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(l.dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if !isLogFile(entry.Name()) {
			return nil
		}
		if len(patterns) > 0 && !matchesAny(entry.Name(), patterns) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func isLogFile(name string) bool {
	return strings.HasSuffix(name, ".log") ||
		strings.HasSuffix(name, ".log.gz") ||
		strings.Contains(name, ".log.")
}

func matchesAny(name string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// compress streams the file through gzip and removes the original. Returns
// the bytes saved.
func (l *LogCleanup) compress(path string) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return 0, err
	}

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return 0, err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(path + ".gz")
		return 0, err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(path + ".gz")
		return 0, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path + ".gz")
		return 0, err
	}

	dstInfo, err := os.Stat(path + ".gz")
	if err != nil {
		return 0, err
	}
	if err := os.Remove(path); err != nil {
		return 0, err
	}

	return srcInfo.Size() - dstInfo.Size(), nil
}

// archive renames the file into a dated directory under archivePath,
// optionally compressing it afterwards.
func (l *LogCleanup) archive(path, archivePath string, compressAfter bool, now time.Time) error {
	dateDir := filepath.Join(archivePath, now.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return err
	}

	target := filepath.Join(dateDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return err
	}

	if compressAfter && !strings.HasSuffix(target, ".gz") {
		if _, err := l.compress(target); err != nil {
			return err
		}
	}
	return nil
}

func (l *LogCleanup) Estimate(ctx context.Context, req models.TaskRequest) (*models.ImpactEstimate, error) {
	if req.Type != models.TaskTypeLogCleanup {
		return nil, fmt.Errorf("log cleanup cannot estimate task type %s", req.Type)
	}

	estimate := &models.ImpactEstimate{}
	now := l.now()

	files, err := l.collectLogFiles(req.Patterns)
	if err != nil {
		return nil, fmt.Errorf("scan log directory: %w", err)
	}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if RetentionEligible(info.ModTime(), now, req.RetentionDays) {
			estimate.Items++
			estimate.Bytes += info.Size()
		}
	}

	estimate.DurationEstimate = time.Duration(estimate.Items) * 20 * time.Millisecond
	return estimate, nil
}
