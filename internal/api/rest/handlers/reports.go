package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mediakeep/sweeper/internal/report"
	"github.com/mediakeep/sweeper/internal/taskman"
)

type ReportHandler struct {
	reporter *report.Reporter
	manager  *taskman.Manager
}

func NewReportHandler(reporter *report.Reporter, manager *taskman.Manager) *ReportHandler {
	return &ReportHandler{reporter: reporter, manager: manager}
}

// HandleGenerateReport serves GET /reports?period=24h&format=json|csv.
func (h *ReportHandler) HandleGenerateReport(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep := h.reporter.GenerateReport(period)

	if r.URL.Query().Get("format") == "csv" {
		out, err := report.ExportCSV(rep)
		if err != nil {
			slog.Error("report export failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to export report")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
		return
	}

	out, err := report.ExportJSON(rep)
	if err != nil {
		slog.Error("report export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export report")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// HandleTaskTypeReport serves GET /reports/{type}?period=24h.
func (h *ReportHandler) HandleTaskTypeReport(w http.ResponseWriter, r *http.Request) {
	taskType, ok := taskTypeFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}

	period, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.reporter.GenerateTaskTypeReport(taskType, period))
}

func (h *ReportHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, taskman.DefaultHistoryLimit)
	writeJSON(w, http.StatusOK, h.manager.History(limit))
}

func (h *ReportHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Snapshot())
}

func parsePeriod(r *http.Request) (*report.Period, error) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("period must be a positive duration such as 24h")
	}
	now := time.Now()
	return &report.Period{From: now.Add(-d), To: now}, nil
}
