package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ExportJSON renders the report as indented JSON.
func ExportJSON(report *CleanupReport) ([]byte, error) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export report: %w", err)
	}
	return out, nil
}

// ExportCSV renders the report as flat delimited text, one row per result.
func ExportCSV(report *CleanupReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "task_type", "status", "started_at", "completed_at", "duration_ms",
		"processed", "cleaned", "failed", "skipped", "bytes_freed", "error",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, result := range report.Results {
		row := []string{
			result.ID,
			string(result.TaskType),
			string(result.Status),
			result.StartedAt.Format(time.RFC3339),
			result.CompletedAt.Format(time.RFC3339),
			strconv.FormatInt(result.Duration.Milliseconds(), 10),
			strconv.Itoa(result.Stats.ProcessedCount),
			strconv.Itoa(result.Stats.CleanedCount),
			strconv.Itoa(result.Stats.FailedCount),
			strconv.Itoa(result.Stats.SkippedCount),
			strconv.FormatInt(result.Stats.BytesFreed, 10),
			result.Error,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
