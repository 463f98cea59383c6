package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mediakeep/sweeper/internal/api/rest/dto"
	"github.com/mediakeep/sweeper/internal/config"
)

type ConfigHandler struct {
	cfg *config.Manager
}

func NewConfigHandler(cfg *config.Manager) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.ConfigToResponse(h.cfg.GetConfig()))
}

func (h *ConfigHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateGlobalConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.cfg.UpdateConfig(req.ToUpdate()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.ConfigToResponse(h.cfg.GetConfig()))
}

func (h *ConfigHandler) HandleGetTaskConfig(w http.ResponseWriter, r *http.Request) {
	taskType, ok := taskTypeFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}

	taskCfg, err := h.cfg.GetTaskConfig(taskType)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.TaskConfigToResponse(taskCfg))
}

func (h *ConfigHandler) HandleUpdateTaskConfig(w http.ResponseWriter, r *http.Request) {
	taskType, ok := taskTypeFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}

	var req dto.UpdateTaskConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.cfg.UpdateTaskConfig(taskType, req.ToUpdate()); err != nil {
		if errors.Is(err, config.ErrUnknownTaskType) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskCfg, _ := h.cfg.GetTaskConfig(taskType)
	writeJSON(w, http.StatusOK, dto.TaskConfigToResponse(taskCfg))
}

func (h *ConfigHandler) HandleEnableTask(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *ConfigHandler) HandleDisableTask(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *ConfigHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	taskType, ok := taskTypeFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}

	var err error
	if enabled {
		err = h.cfg.EnableTask(taskType)
	} else {
		err = h.cfg.DisableTask(taskType)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskCfg, _ := h.cfg.GetTaskConfig(taskType)
	writeJSON(w, http.StatusOK, dto.TaskConfigToResponse(taskCfg))
}

func (h *ConfigHandler) HandleValidateConfig(w http.ResponseWriter, r *http.Request) {
	result := h.cfg.ValidateConfig()
	writeJSON(w, http.StatusOK, dto.ValidationResponse{
		Valid:  result.Valid,
		Errors: result.Errors,
	})
}

func (h *ConfigHandler) HandleExportConfig(w http.ResponseWriter, r *http.Request) {
	out, err := h.cfg.ExportConfig()
	if err != nil {
		slog.Error("config export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export config")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func (h *ConfigHandler) HandleImportConfig(w http.ResponseWriter, r *http.Request) {
	var req dto.ImportConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	validationErrs, err := h.cfg.ImportConfig(req.Config)
	if err != nil {
		if len(validationErrs) > 0 {
			writeJSON(w, http.StatusUnprocessableEntity, dto.ValidationResponse{
				Valid:  false,
				Errors: validationErrs,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.ConfigToResponse(h.cfg.GetConfig()))
}
