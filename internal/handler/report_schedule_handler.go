// internal/handler/report_schedule_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/response"
	"github.com/unclebandit/outreach-service/internal/service"
)

// ReportScheduleHandler holds the dependencies for report schedule HTTP handlers
type ReportScheduleHandler struct {
	Service *service.ReportScheduleService
	Logger  *zap.Logger
}

// NewReportScheduleHandler creates a new ReportScheduleHandler
func NewReportScheduleHandler(svc *service.ReportScheduleService, logger *zap.Logger) *ReportScheduleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportScheduleHandler{Service: svc, Logger: logger}
}

// Routes mounts /report-schedules on r.
func (h *ReportScheduleHandler) Routes(r chi.Router) {
	r.Route("/report-schedules", func(r chi.Router) {
		r.Post("/", h.CreateHandler)
		r.Get("/", h.ListHandler)
		r.Post("/sweep", h.SweepHandler)
		r.Get("/{id}", h.GetHandler)
		r.Put("/{id}", h.UpdateHandler)
		r.Delete("/{id}", h.DeleteHandler)
		r.Get("/{id}/logs", h.ListLogsHandler)
	})
}

// CreateHandler handles creating a new report schedule
func (h *ReportScheduleHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var payload model.ReportScheduleConfig
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	cfg, err := h.Service.Create(r.Context(), &payload)
	if err != nil {
		h.fail(w, "create report schedule", err)
		return
	}
	h.Logger.Info("report schedule created",
		zap.String("config_id", cfg.ID),
		zap.String("recipient", cfg.RecipientAddress),
		zap.String("frequency", cfg.Frequency),
	)
	response.Created(w, cfg)
}

// ListHandler returns all schedules, or only enabled ones with ?enabled=true
func (h *ReportScheduleHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	enabledOnly, _ := strconv.ParseBool(r.URL.Query().Get("enabled"))
	configs, err := h.Service.List(r.Context(), enabledOnly)
	if err != nil {
		h.fail(w, "list report schedules", err)
		return
	}
	response.OK(w, configs)
}

func (h *ReportScheduleHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get report schedule", err)
		return
	}
	response.OK(w, cfg)
}

func (h *ReportScheduleHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	var payload model.ReportScheduleConfig
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	cfg, err := h.Service.Update(r.Context(), chi.URLParam(r, "id"), &payload)
	if err != nil {
		h.fail(w, "update report schedule", err)
		return
	}
	response.OK(w, cfg)
}

func (h *ReportScheduleHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete report schedule", err)
		return
	}
	response.NoContent(w)
}

// ListLogsHandler returns the newest dispatch logs of one schedule
func (h *ReportScheduleHandler) ListLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}

	logs, err := h.Service.ListLogs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, "list report logs", err)
		return
	}
	response.OK(w, logs)
}

// SweepHandler runs the scheduler now. Configs that are not due are skipped.
func (h *ReportScheduleHandler) SweepHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.SweepNow(r.Context())
	if err != nil {
		h.fail(w, "sweep report schedules", err)
		return
	}
	response.OK(w, result)
}

func (h *ReportScheduleHandler) fail(w http.ResponseWriter, op string, err error) {
	if response.StatusFor(err) >= http.StatusInternalServerError {
		h.Logger.Error(op, zap.Error(err))
	}
	response.Error(w, err)
}
