package httppresentation

import (
	"net/http"
	"strings"
	"time"

	appOrder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	appPayment "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	domainAudit "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
	domainOrder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domainPayment "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/shopspring/decimal"
)

type orderItemRequest struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createOrderRequest struct {
	StoreID        string             `json:"store_id"`
	CustomerID     string             `json:"customer_id"`
	Currency       string             `json:"currency"`
	IdempotencyKey string             `json:"idempotency_key"`
	Items          []orderItemRequest `json:"items"`
}

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type proofResponse struct {
	Method        string     `json:"method"`
	TransactionID string     `json:"transaction_id"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	ImageURLs     []string   `json:"image_urls"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	VerifiedBy    string     `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	StoreID          string              `json:"store_id"`
	CustomerID       string              `json:"customer_id"`
	Status           domainOrder.Status  `json:"status"`
	Currency         string              `json:"currency"`
	TotalAmount      string              `json:"total_amount"`
	Items            []orderItemResponse `json:"items"`
	TrackingNumber   string              `json:"tracking_number,omitempty"`
	RejectionReason  string              `json:"rejection_reason,omitempty"`
	CancelReason     string              `json:"cancel_reason,omitempty"`
	PaymentProof     *proofResponse      `json:"payment_proof,omitempty"`
	StockDecremented bool                `json:"stock_decremented"`
	Version          int64               `json:"version"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toOrderResponse(o *domainOrder.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	resp := orderResponse{
		ID:               o.ID,
		StoreID:          o.StoreID,
		CustomerID:       o.CustomerID,
		Status:           o.Status,
		Currency:         o.Currency,
		TotalAmount:      o.TotalAmount.String(),
		Items:            items,
		TrackingNumber:   o.TrackingNumber,
		RejectionReason:  o.RejectionReason,
		CancelReason:     o.CancelReason,
		StockDecremented: o.StockDecremented,
		Version:          o.Version,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if p := o.Proof; p != nil {
		resp.PaymentProof = &proofResponse{
			Method:        p.Method,
			TransactionID: p.TransactionID,
			Amount:        p.Amount.String(),
			Currency:      p.Currency,
			ImageURLs:     p.ImageURLs,
			SubmittedAt:   p.SubmittedAt,
			VerifiedBy:    p.VerifiedBy,
			VerifiedAt:    p.VerifiedAt,
		}
	}
	return resp
}

type auditEntryResponse struct {
	ID        string            `json:"id"`
	ActorID   string            `json:"actor_id"`
	Action    string            `json:"action"`
	Before    string            `json:"before"`
	After     string            `json:"after"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type auditTrailResponse struct {
	OrderID string               `json:"order_id"`
	Entries []auditEntryResponse `json:"entries"`
}

func toAuditTrailResponse(orderID string, entries []domainAudit.Entry) auditTrailResponse {
	out := auditTrailResponse{OrderID: orderID, Entries: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, auditEntryResponse{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    e.Action,
			Before:    e.Before,
			After:     e.After,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

// actor reads the caller identity. Requests without one are rejected.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(headerActorID))
	if id == "" {
		h.writeValidation(w, r, "%s header is required", headerActorID)
		return "", false
	}
	return id, true
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeValidation(w, r, "invalid request body: %v", err)
		return
	}
	customerID := req.CustomerID
	if customerID == "" {
		customerID = actorID
	}
	key := r.Header.Get(headerIdempotencyKey)
	if key == "" {
		key = req.IdempotencyKey
	}
	items := make([]appOrder.CreateOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, appOrder.CreateOrderItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	result, err := h.orders.CreateOrder(r.Context(), appOrder.CreateOrderInput{
		ActorID:        actorID,
		IdempotencyKey: key,
		StoreID:        req.StoreID,
		CustomerID:     customerID,
		Currency:       req.Currency,
		Items:          items,
	})
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		w.Header().Set(headerReplayed, "true")
		status = http.StatusOK
	}
	writeJSON(w, status, toOrderResponse(result.Order))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	o, err := h.orders.Get(r.Context(), r.PathValue("id"), actorID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	entries, err := h.orders.AuditTrail(r.Context(), id, actorID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toAuditTrailResponse(id, entries))
}

type submitProofRequest struct {
	Method        string          `json:"method"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ImageURLs     []string        `json:"image_urls"`
}

func (h *Handler) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req submitProofRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeValidation(w, r, "invalid request body: %v", err)
		return
	}

	result, err := h.payments.SubmitProof(r.Context(), appPayment.SubmitProofInput{
		OrderID: r.PathValue("id"),
		ActorID: actorID,
		Proof: domainPayment.ProofInput{
			Method:        req.Method,
			TransactionID: req.TransactionID,
			Amount:        req.Amount,
			Currency:      req.Currency,
			ImageURLs:     req.ImageURLs,
		},
	})
	if err != nil {
		var current *domainOrder.Order
		if result != nil {
			current = result.Order
		}
		h.writeError(w, r, err, current)
		return
	}
	if result.Replaced {
		w.Header().Set(headerProofReplaced, "true")
	}
	writeJSON(w, http.StatusOK, toOrderResponse(result.Order))
}

type decisionRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (h *Handler) decisionInput(r *http.Request, adminID string, req decisionRequest) appPayment.DecisionInput {
	meta := map[string]string{"request_id": r.Header.Get(headerRequestID)}
	if req.Note != "" {
		meta["note"] = req.Note
	}
	return appPayment.DecisionInput{
		OrderID:  r.PathValue("id"),
		AdminID:  adminID,
		Reason:   req.Reason,
		Metadata: meta,
	}
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeValidation(w, r, "invalid request body: %v", err)
		return
	}
	o, err := h.payments.Approve(r.Context(), h.decisionInput(r, actorID, req))
	h.respondTransition(w, r, o, err)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeValidation(w, r, "invalid request body: %v", err)
		return
	}
	o, err := h.payments.Reject(r.Context(), h.decisionInput(r, actorID, req))
	h.respondTransition(w, r, o, err)
}

type shipRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req shipRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeValidation(w, r, "invalid request body: %v", err)
		return
	}
	o, err := h.orders.Ship(r.Context(), r.PathValue("id"), actorID, req.TrackingNumber)
	h.respondTransition(w, r, o, err)
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	o, err := h.orders.Deliver(r.Context(), r.PathValue("id"), actorID)
	h.respondTransition(w, r, o, err)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeValidation(w, r, "invalid request body: %v", err)
		return
	}
	o, err := h.orders.Cancel(r.Context(), r.PathValue("id"), actorID, req.Reason)
	h.respondTransition(w, r, o, err)
}

// respondTransition writes the updated order, or the error with the order as
// it was before the failed attempt.
func (h *Handler) respondTransition(w http.ResponseWriter, r *http.Request, o *domainOrder.Order, err error) {
	if err != nil {
		h.writeError(w, r, err, o)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type liveSessionRequest struct {
	SessionID  string `json:"session_id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// handleLiveSession is the chat gateway heartbeat: the actor is online on
// session_id until the TTL lapses without another heartbeat.
func (h *Handler) handleLiveSession(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req liveSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeValidation(w, r, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		h.writeValidation(w, r, "session_id is required")
		return
	}
	ttl := h.opts.SessionTTL
	if req.TTLSeconds > 0 {
		ttl = min(time.Duration(req.TTLSeconds)*time.Second, ttl)
	}
	if err := h.sessions.Touch(r.Context(), actorID, req.SessionID, ttl); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
