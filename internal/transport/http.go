package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/subcool-seeds/cultivai-orders/internal/handler"
	"github.com/subcool-seeds/cultivai-orders/internal/order"
)

func NewRouter(svc order.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	h := handler.NewOrderHandler(svc)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListMyOrders)
		r.Get("/{id}", h.GetOrderByID)
		r.Get("/{id}/history", h.GetOrderHistory)
		r.Post("/{id}/payment", h.SubmitPayment)
	})

	r.Route("/admin/orders", func(r chi.Router) {
		r.Get("/", h.ListAllOrders)
		r.Post("/sweep", h.SweepStaleOrders)
		r.Post("/{id}/review", h.ReviewOrder)
		r.Post("/{id}/status", h.SetOrderStatus)
		r.Post("/{id}/cancel", h.CancelOrder)
	})

	return r
}
