// Package handler is the HTTP surface of the registration workflow. It
// parses requests and maps domain errors; business rules live in the service.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"examreg/internal/registration/models"
	"examreg/internal/registration/service"
	"examreg/internal/registration/store"
	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
	"examreg/pkg/httputil"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register wires the candidate-facing routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registrations", h.handleSubmit)
	r.Get("/registrations/mine", h.handleListMine)
	r.Get("/registrations/{id}", h.handleDetail)
	r.Delete("/registrations/{id}", h.handleCancel)
}

// RegisterAdmin wires the admin routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/registrations", h.handleList)
	r.Get("/registrations/pending", h.handleListPending)
	r.Get("/registrations/stats", h.handleStats)
	r.Post("/registrations/{id}/audit", h.handleAudit)
}

type submitRequest struct {
	ExamID     int64  `json:"exam_id"`
	ExamSiteID int64  `json:"exam_site_id"`
	IDCard     string `json:"id_card"`
	Phone      string `json:"phone"`
	Subject    string `json:"subject"`
	Materials  string `json:"materials"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[submitRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	reg, err := h.svc.Submit(r.Context(), service.SubmitRequest{
		ExamID:     id.ExamID(req.ExamID),
		ExamSiteID: id.ExamSiteID(req.ExamSiteID),
		IDCard:     req.IDCard,
		Phone:      req.Phone,
		Subject:    req.Subject,
		Materials:  req.Materials,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListMine(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	regID, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Detail(r.Context(), regID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	regID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Cancel(r.Context(), regID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type auditRequest struct {
	Decision string `json:"decision"`
	Remark   string `json:"remark"`
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	regID, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[auditRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	var decision models.AuditDecision
	switch req.Decision {
	case "approve":
		decision = models.AuditDecisionApprove
	case "reject":
		decision = models.AuditDecisionReject
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "decision must be approve or reject"))
		return
	}
	reg, err := h.svc.Audit(r.Context(), regID, decision, req.Remark)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), filterFromQuery(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListPending(r.Context(), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), id.ExamID(queryInt64(r, "exam_id")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func filterFromQuery(r *http.Request) store.ListFilter {
	return store.ListFilter{
		ExamID:        id.ExamID(queryInt64(r, "exam_id")),
		UserID:        id.UserID(queryInt64(r, "user_id")),
		AuditStatus:   models.AuditStatus(queryInt(r, "audit_status")),
		PaymentStatus: models.PaymentStatus(queryInt(r, "payment_status")),
		Page:          queryInt(r, "page"),
		PageSize:      queryInt(r, "page_size"),
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (id.RegistrationID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid registration id"))
		return 0, false
	}
	return id.RegistrationID(n), true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func queryInt64(r *http.Request, key string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return n
}
