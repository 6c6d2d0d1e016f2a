package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/subcool-seeds/cultivai-orders/internal/auth"
	"github.com/subcool-seeds/cultivai-orders/internal/order"
)

// OrderHandler handles HTTP requests for the order payment lifecycle.
type OrderHandler struct {
	svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func orderIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var input order.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.CreateOrder(r.Context(), actor, input)
	if err != nil {
		log.Info().Msgf("Failed to create order: %v", err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, o)
}

// GetOrderByID handles GET /orders/{id}.
func (h *OrderHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	id, ok := orderIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.svc.GetOrder(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

// ListMyOrders handles GET /orders.
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	orders, err := h.svc.ListOrdersForUser(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// GetOrderHistory handles GET /orders/{id}/history.
func (h *OrderHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	id, ok := orderIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	entries, err := h.svc.GetHistory(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, entries)
}

type submitPaymentRequest struct {
	Method   string `json:"method"`
	ProofRef string `json:"proof_ref"`
}

// SubmitPayment handles POST /orders/{id}/payment.
func (h *OrderHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	id, ok := orderIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req submitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.SubmitPayment(r.Context(), actor, id, req.Method, req.ProofRef)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

// ReviewOrder handles POST /admin/orders/{id}/review.
func (h *OrderHandler) ReviewOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	id, ok := orderIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.svc.AutoReview(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

type setStatusRequest struct {
	Status order.Status `json:"status"`
}

// SetOrderStatus handles POST /admin/orders/{id}/status.
func (h *OrderHandler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	id, ok := orderIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.SetStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

// CancelOrder handles POST /admin/orders/{id}/cancel.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	id, ok := orderIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.svc.CancelOrder(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

// ListAllOrders handles GET /admin/orders with an optional ?status= filter.
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var statusFilter *order.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := order.Status(raw)
		statusFilter = &s
	}

	orders, err := h.svc.ListAllOrders(r.Context(), actor, statusFilter)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// SweepStaleOrders handles POST /admin/orders/sweep.
func (h *OrderHandler) SweepStaleOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if !actor.IsAdmin() {
		respondWithServiceError(w, order.ErrUnauthorized)
		return
	}

	count, err := h.svc.SweepStaleOrders(r.Context(), time.Now().UTC())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"cancelled": count})
}
