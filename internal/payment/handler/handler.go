// Package handler is the HTTP surface of the payment workflow.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"examreg/internal/payment/models"
	"examreg/internal/payment/service"
	"examreg/internal/payment/store"
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
	r.Get("/orders/mine", h.handleMyOrders)
	r.Get("/orders/{orderNo}", h.handleDetail)
	r.Post("/orders/{orderNo}/pay", h.handlePay)
	r.Get("/registrations/{id}/order", h.handleOrderForRegistration)
}

// RegisterAdmin wires the admin routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/orders", h.handleList)
	r.Get("/orders/stats", h.handleStats)
	r.Post("/orders/{orderNo}/refund", h.handleRefund)
}

func (h *Handler) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.MyOrders(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Detail(r.Context(), chi.URLParam(r, "orderNo"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

type payRequest struct {
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[payRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	order, err := h.svc.Pay(r.Context(), service.PayRequest{
		OrderNo:       chi.URLParam(r, "orderNo"),
		Method:        req.Method,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) handleOrderForRegistration(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid registration id"))
		return
	}
	order, err := h.svc.OrderForRegistration(r.Context(), id.RegistrationID(n))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[refundRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	order, err := h.svc.Refund(r.Context(), chi.URLParam(r, "orderNo"), req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	atoi := func(key string) int { n, _ := strconv.Atoi(q.Get(key)); return n }
	examID, _ := strconv.ParseInt(q.Get("exam_id"), 10, 64)
	userID, _ := strconv.ParseInt(q.Get("user_id"), 10, 64)

	page, err := h.svc.List(r.Context(), store.ListFilter{
		ExamID:   id.ExamID(examID),
		UserID:   id.UserID(userID),
		Status:   models.OrderStatus(atoi("status")),
		Page:     atoi("page"),
		PageSize: atoi("page_size"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	examID, _ := strconv.ParseInt(r.URL.Query().Get("exam_id"), 10, 64)
	stats, err := h.svc.Stats(r.Context(), id.ExamID(examID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
