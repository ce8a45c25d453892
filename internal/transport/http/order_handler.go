package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/pkibridge/internal/broker"
	"github.com/opentrusty/pkibridge/internal/certmanager"
)

// OrderRequest is the body of POST /api/v1/orders and PUT /api/v1/orders/{id}
type OrderRequest struct {
	Meta         certmanager.OrderMeta `json:"meta"`
	GeneratedCSR []byte                `json:"generated_csr,omitempty"`
}

func (req *OrderRequest) requestContext() *certmanager.RequestContext {
	if len(req.GeneratedCSR) == 0 {
		return nil
	}
	return &certmanager.RequestContext{GeneratedCSR: req.GeneratedCSR}
}

// CreateOrder submits a new certificate order
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Meta == nil {
		req.Meta = certmanager.OrderMeta{}
	}

	order, err := h.broker.CreateOrder(r.Context(), req.Meta, req.requestContext())
	h.respondOrder(w, r, http.StatusCreated, order, err)
}

// GetOrder returns the stored state of an order
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.broker.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	h.respondOrder(w, r, http.StatusOK, order, err)
}

// CheckOrder polls the CA for an order's status
func (h *Handler) CheckOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.broker.CheckOrder(r.Context(), chi.URLParam(r, "orderID"))
	h.respondOrder(w, r, http.StatusOK, order, err)
}

// CancelOrder cancels an order's outstanding CA request
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.broker.CancelOrder(r.Context(), chi.URLParam(r, "orderID"))
	h.respondOrder(w, r, http.StatusOK, order, err)
}

// ModifyOrder replaces an order's outstanding CA request
func (h *Handler) ModifyOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Meta) == 0 {
		respondError(w, http.StatusBadRequest, "meta is required")
		return
	}

	order, err := h.broker.ModifyOrder(r.Context(), chi.URLParam(r, "orderID"), req.Meta, req.requestContext())
	h.respondOrder(w, r, http.StatusOK, order, err)
}

// respondOrder writes the order, or the error with the order id when the
// order was recorded before the failure.
func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, status int, order *broker.Order, err error) {
	if err != nil {
		if order != nil {
			w.Header().Set("X-Order-ID", order.ID)
		}
		respondBrokerError(w, r, err)
		return
	}
	respondJSON(w, status, order)
}
