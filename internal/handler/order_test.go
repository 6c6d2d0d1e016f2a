package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/subcool-seeds/cultivai-orders/internal/auth"
	"github.com/subcool-seeds/cultivai-orders/internal/catalog"
	"github.com/subcool-seeds/cultivai-orders/internal/order"
)

var (
	testUserID  = "123e4567-e89b-12d3-a456-426614174000"
	testAdminID = "323e4567-e89b-12d3-a456-426614174000"
)

type mockOrderService struct {
	CreateOrderFunc       func(ctx context.Context, actor auth.Identity, input order.CreateOrderInput) (*order.Order, error)
	GetOrderFunc          func(ctx context.Context, actor auth.Identity, id int64) (*order.Order, error)
	ListOrdersForUserFunc func(ctx context.Context, actor auth.Identity) ([]order.Order, error)
	ListAllOrdersFunc     func(ctx context.Context, actor auth.Identity, statusFilter *order.Status) ([]order.Order, error)
	SubmitPaymentFunc     func(ctx context.Context, actor auth.Identity, orderID int64, method, proofRef string) (*order.Order, error)
	AutoReviewFunc        func(ctx context.Context, actor auth.Identity, orderID int64) (*order.Order, error)
	SetStatusFunc         func(ctx context.Context, actor auth.Identity, orderID int64, newStatus order.Status) (*order.Order, error)
	CancelOrderFunc       func(ctx context.Context, actor auth.Identity, orderID int64) (*order.Order, error)
	GetHistoryFunc        func(ctx context.Context, actor auth.Identity, orderID int64) ([]order.StatusHistoryEntry, error)
	SweepStaleOrdersFunc  func(ctx context.Context, now time.Time) (int, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, actor auth.Identity, input order.CreateOrderInput) (*order.Order, error) {
	return m.CreateOrderFunc(ctx, actor, input)
}

func (m *mockOrderService) GetOrder(ctx context.Context, actor auth.Identity, id int64) (*order.Order, error) {
	return m.GetOrderFunc(ctx, actor, id)
}

func (m *mockOrderService) ListOrdersForUser(ctx context.Context, actor auth.Identity) ([]order.Order, error) {
	return m.ListOrdersForUserFunc(ctx, actor)
}

func (m *mockOrderService) ListAllOrders(ctx context.Context, actor auth.Identity, statusFilter *order.Status) ([]order.Order, error) {
	return m.ListAllOrdersFunc(ctx, actor, statusFilter)
}

func (m *mockOrderService) SubmitPayment(ctx context.Context, actor auth.Identity, orderID int64, method, proofRef string) (*order.Order, error) {
	return m.SubmitPaymentFunc(ctx, actor, orderID, method, proofRef)
}

func (m *mockOrderService) AutoReview(ctx context.Context, actor auth.Identity, orderID int64) (*order.Order, error) {
	return m.AutoReviewFunc(ctx, actor, orderID)
}

func (m *mockOrderService) SetStatus(ctx context.Context, actor auth.Identity, orderID int64, newStatus order.Status) (*order.Order, error) {
	return m.SetStatusFunc(ctx, actor, orderID, newStatus)
}

func (m *mockOrderService) CancelOrder(ctx context.Context, actor auth.Identity, orderID int64) (*order.Order, error) {
	return m.CancelOrderFunc(ctx, actor, orderID)
}

func (m *mockOrderService) GetHistory(ctx context.Context, actor auth.Identity, orderID int64) ([]order.StatusHistoryEntry, error) {
	return m.GetHistoryFunc(ctx, actor, orderID)
}

func (m *mockOrderService) SweepStaleOrders(ctx context.Context, now time.Time) (int, error) {
	return m.SweepStaleOrdersFunc(ctx, now)
}

func newTestRouter(svc order.Service) *chi.Mux {
	h := NewOrderHandler(svc)
	r := chi.NewRouter()
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{id}", h.GetOrderByID)
	r.Get("/orders/{id}/history", h.GetOrderHistory)
	r.Post("/orders/{id}/payment", h.SubmitPayment)
	r.Post("/admin/orders/{id}/review", h.ReviewOrder)
	r.Post("/admin/orders/sweep", h.SweepStaleOrders)
	return r
}

func asUser(req *http.Request, userID, role string) *http.Request {
	req.Header.Set(auth.HeaderUserID, userID)
	req.Header.Set(auth.HeaderRole, role)
	return req
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		identity       [2]string
		body           string
		createOrder    func(ctx context.Context, actor auth.Identity, input order.CreateOrderInput) (*order.Order, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:     "success",
			identity: [2]string{testUserID, "user"},
			body:     `{"items":[{"product_id":"550e8400-e29b-41d4-a716-446655440001","quantity":2}],"total_amount":42}`,
			createOrder: func(ctx context.Context, actor auth.Identity, input order.CreateOrderInput) (*order.Order, error) {
				return &order.Order{
					ID:          1,
					UserID:      actor.UserID,
					Status:      order.StatusPending,
					Items:       input.Items,
					TotalAmount: input.TotalAmount,
					CreatedAt:   time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
					UpdatedAt:   time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
				}, nil
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `{"id":1,"user_id":"123e4567-e89b-12d3-a456-426614174000","status":"PENDING","items":[{"id":0,"order_id":0,"product_id":"550e8400-e29b-41d4-a716-446655440001","quantity":2}],"total_amount":42,"created_at":"2025-04-16T12:00:00Z","updated_at":"2025-04-16T12:00:00Z"}`,
		},
		{
			name:     "out_of_stock",
			identity: [2]string{testUserID, "user"},
			body:     `{"items":[{"product_id":"550e8400-e29b-41d4-a716-446655440001","quantity":9}],"total_amount":42}`,
			createOrder: func(ctx context.Context, actor auth.Identity, input order.CreateOrderInput) (*order.Order, error) {
				return nil, catalog.ErrOutOfStock
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"error":"not enough stock"}`,
		},
		{
			name:           "invalid_json",
			identity:       [2]string{testUserID, "user"},
			body:           `{invalid json}`,
			createOrder:    nil,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid request body"}`,
		},
		{
			name:           "missing_identity",
			identity:       [2]string{"", ""},
			body:           `{"items":[],"total_amount":0}`,
			createOrder:    nil,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":"missing or invalid caller identity"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockOrderService{CreateOrderFunc: tt.createOrder}
			r := newTestRouter(mockSvc)

			req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(tt.body))
			if tt.identity[0] != "" {
				req = asUser(req, tt.identity[0], tt.identity[1])
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestOrderHandler_GetOrderByID(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		getOrder       func(ctx context.Context, actor auth.Identity, id int64) (*order.Order, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "not_found",
			id:   "99",
			getOrder: func(ctx context.Context, actor auth.Identity, id int64) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"order not found"}`,
		},
		{
			name: "foreign_order_forbidden",
			id:   "1",
			getOrder: func(ctx context.Context, actor auth.Identity, id int64) (*order.Order, error) {
				return nil, order.ErrUnauthorized
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"error":"actor is not allowed to perform this action"}`,
		},
		{
			name:           "invalid_id",
			id:             "abc",
			getOrder:       nil,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid order id"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockOrderService{GetOrderFunc: tt.getOrder}
			r := newTestRouter(mockSvc)

			req := asUser(httptest.NewRequest(http.MethodGet, "/orders/"+tt.id, nil), testUserID, "user")
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestOrderHandler_SubmitPayment(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		submitPayment  func(ctx context.Context, actor auth.Identity, orderID int64, method, proofRef string) (*order.Order, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success",
			body: `{"method":"CashApp","proof_ref":"url1"}`,
			submitPayment: func(ctx context.Context, actor auth.Identity, orderID int64, method, proofRef string) (*order.Order, error) {
				return &order.Order{
					ID:          orderID,
					UserID:      actor.UserID,
					Status:      order.StatusUnderReview,
					Items:       []order.OrderItem{},
					TotalAmount: 42,
					Payment: &order.PaymentConfirmation{
						Method:      method,
						ProofRef:    proofRef,
						SubmittedAt: time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
						SubmittedBy: actor.UserID,
					},
					CreatedAt: time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
					UpdatedAt: time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
				}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"id":1,"user_id":"123e4567-e89b-12d3-a456-426614174000","status":"UNDER_REVIEW","items":[],"total_amount":42,"payment":{"method":"CashApp","proof_ref":"url1","submitted_at":"2025-04-16T12:00:00Z","submitted_by":"123e4567-e89b-12d3-a456-426614174000"},"created_at":"2025-04-16T12:00:00Z","updated_at":"2025-04-16T12:00:00Z"}`,
		},
		{
			name: "invalid_method",
			body: `{"method":"PayPal","proof_ref":"url1"}`,
			submitPayment: func(ctx context.Context, actor auth.Identity, orderID int64, method, proofRef string) (*order.Order, error) {
				return nil, order.ErrInvalidPaymentMethod
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid payment method"}`,
		},
		{
			name: "already_paid",
			body: `{"method":"CashApp","proof_ref":"url1"}`,
			submitPayment: func(ctx context.Context, actor auth.Identity, orderID int64, method, proofRef string) (*order.Order, error) {
				return nil, order.ErrInvalidTransition
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"error":"invalid order status transition"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockOrderService{SubmitPaymentFunc: tt.submitPayment}
			r := newTestRouter(mockSvc)

			req := asUser(httptest.NewRequest(http.MethodPost, "/orders/1/payment", bytes.NewBufferString(tt.body)), testUserID, "user")
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestOrderHandler_ReviewOrder(t *testing.T) {
	mockSvc := &mockOrderService{
		AutoReviewFunc: func(ctx context.Context, actor auth.Identity, orderID int64) (*order.Order, error) {
			return nil, order.ErrMissingProof
		},
	}
	r := newTestRouter(mockSvc)

	req := asUser(httptest.NewRequest(http.MethodPost, "/admin/orders/1/review", nil), testAdminID, "admin")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, `{"error":"no payment proof submitted"}`, w.Body.String())
}

func TestOrderHandler_SweepStaleOrders(t *testing.T) {
	t.Run("admin_gets_count", func(t *testing.T) {
		mockSvc := &mockOrderService{
			SweepStaleOrdersFunc: func(ctx context.Context, now time.Time) (int, error) {
				return 3, nil
			},
		}
		r := newTestRouter(mockSvc)

		req := asUser(httptest.NewRequest(http.MethodPost, "/admin/orders/sweep", nil), testAdminID, "admin")
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `{"cancelled":3}`, w.Body.String())
	})

	t.Run("non_admin_forbidden", func(t *testing.T) {
		mockSvc := &mockOrderService{}
		r := newTestRouter(mockSvc)

		req := asUser(httptest.NewRequest(http.MethodPost, "/admin/orders/sweep", nil), testUserID, "user")
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
