// Package handler exposes exam and site lookups plus the admin CRUD used to
// set a session up before registration opens.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"examreg/internal/exam/models"
	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
	"examreg/pkg/httputil"
	"examreg/pkg/sentinel"
)

type ExamStore interface {
	PutExam(ctx context.Context, exam models.Exam) (models.Exam, error)
	PutSite(ctx context.Context, site models.ExamSite) (models.ExamSite, error)
	FindExam(ctx context.Context, examID id.ExamID) (models.Exam, error)
	ListSites(ctx context.Context, examID id.ExamID) ([]models.ExamSite, error)
}

type Handler struct {
	exams  ExamStore
	logger *slog.Logger
}

func New(exams ExamStore, logger *slog.Logger) *Handler {
	return &Handler{exams: exams, logger: logger}
}

// Register wires the read-only exam routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/exams/{id}", h.handleGetExam)
	r.Get("/exams/{id}/sites", h.handleListSites)
}

// RegisterAdmin wires the exam setup routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/exams", h.handleCreateExam)
	r.Post("/exams/{id}/sites", h.handleCreateSite)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathExamID(w, r)
	if !ok {
		return
	}
	exam, err := h.exams.FindExam(r.Context(), examID)
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "exam not found"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleListSites(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathExamID(w, r)
	if !ok {
		return
	}
	sites, err := h.exams.ListSites(r.Context(), examID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sites)
}

type createExamRequest struct {
	Name              string    `json:"name"`
	Type              string    `json:"type"`
	ExamDate          time.Time `json:"exam_date"`
	ExamTime          string    `json:"exam_time"`
	RegistrationStart time.Time `json:"registration_start"`
	RegistrationEnd   time.Time `json:"registration_end"`
	FeeCents          int64     `json:"fee_cents"`
	Status            int       `json:"status"`
	TotalQuota        int       `json:"total_quota"`
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createExamRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	if req.Name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "name is required"))
		return
	}
	if !req.RegistrationEnd.After(req.RegistrationStart) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "registration window must end after it starts"))
		return
	}
	status := models.ExamStatus(req.Status)
	if status == 0 {
		status = models.ExamStatusDraft
	}
	exam, err := h.exams.PutExam(r.Context(), models.Exam{
		Name:              req.Name,
		Type:              req.Type,
		ExamDate:          req.ExamDate,
		ExamTime:          req.ExamTime,
		RegistrationStart: req.RegistrationStart,
		RegistrationEnd:   req.RegistrationEnd,
		FeeCents:          req.FeeCents,
		Status:            status,
		TotalQuota:        req.TotalQuota,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, exam)
}

type createSiteRequest struct {
	Name     string `json:"name"`
	Province string `json:"province"`
	City     string `json:"city"`
	Address  string `json:"address"`
	Capacity int    `json:"capacity"`
}

func (h *Handler) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathExamID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[createSiteRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	if req.Name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "name is required"))
		return
	}
	if req.Capacity <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "capacity must be positive"))
		return
	}
	if _, err := h.exams.FindExam(r.Context(), examID); errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "exam not found"))
		return
	} else if err != nil {
		httputil.WriteError(w, err)
		return
	}
	site, err := h.exams.PutSite(r.Context(), models.ExamSite{
		ExamID:   examID,
		Name:     req.Name,
		Province: req.Province,
		City:     req.City,
		Address:  req.Address,
		Capacity: req.Capacity,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, site)
}

func pathExamID(w http.ResponseWriter, r *http.Request) (id.ExamID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid exam id"))
		return 0, false
	}
	return id.ExamID(n), true
}
