package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/checkout"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/restock"
)

// SignatureHeader — заголовок с HMAC-подписью webhook-тела.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody ограничивает размер принимаемого webhook-тела.
const maxWebhookBody = 1 << 20

// Handler связывает HTTP-поверхность с сервисами ядра.
type Handler struct {
	Reconciler *checkout.Reconciler
	Orders     *orders.Ledger
	Inventory  *inventory.Ledger
	Restock    *restock.Registry
	Logger     *log.Entry
}

// Register вешает маршруты ядра на роутер.
func (h *Handler) Register(r *chi.Mux) {
	r.Post("/webhooks/payment", h.handleWebhook)
	r.Post("/checkout/sessions", h.createSession)
	r.Get("/stock/availability", h.checkAvailability)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/timeline", h.getTimeline)
	r.Post("/orders/{id}/status", h.transitionOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/refund", h.refundOrder)
	r.Post("/restock/subscriptions", h.subscribeRestock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleWebhook принимает доставку провайдера. Контракт ответов:
// 200 — «принято, не повторять» (включая дубликаты и битые payload),
// 401 — невалидная подпись, 503 — транзиентный отказ, повторить.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	result, err := h.Reconciler.HandleWebhook(body, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
		return
	}

	resp := map[string]any{"outcome": string(result.Outcome)}
	if result.Order.ID != "" {
		resp["order_id"] = result.Order.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type createSessionRequest struct {
	CustomerRef string            `json:"customer_ref"`
	Currency    string            `json:"currency"`
	Items       []lineItemPayload `json:"items"`
}

type lineItemPayload struct {
	SKU        string `json:"sku"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	lines := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.LineItem{SKU: item.SKU, Qty: item.Qty, PriceMinor: item.PriceMinor})
	}

	redirectURL, err := h.Reconciler.CreateSession(req.CustomerRef, req.Currency, lines)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"redirect_url": redirectURL})
}

func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	if sku == "" {
		writeError(w, http.StatusBadRequest, "sku is required")
		return
	}
	qty := int32(1)
	if raw := r.URL.Query().Get("qty"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "qty must be a positive integer")
			return
		}
		qty = int32(parsed)
	}

	variant, err := h.Inventory.CheckAvailability(sku, qty)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sku":       variant.ID,
		"available": true,
		"quantity":  variant.Quantity,
	})
}

type transitionRequest struct {
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	Tracking string `json:"tracking"`
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	order, err := h.Orders.Transition(chi.URLParam(r, "id"), orders.TransitionRequest{
		To:       status,
		Reason:   req.Reason,
		Tracking: req.Tracking,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderPayload(order))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	order, err := h.Orders.Cancel(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderPayload(order))
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	order, err := h.Orders.Refund(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderPayload(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderPayload(order))
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.Orders.Timeline(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	payload := make([]map[string]any, 0, len(events))
	for _, event := range events {
		payload = append(payload, map[string]any{
			"type":     event.Type,
			"reason":   event.Reason,
			"occurred": event.Occurred.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": payload})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	customerRef := r.URL.Query().Get("customer_ref")
	if customerRef == "" {
		writeError(w, http.StatusBadRequest, "customer_ref is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	list, err := h.Orders.ListByCustomer(customerRef, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	payload := make([]map[string]any, 0, len(list))
	for _, order := range list {
		payload = append(payload, orderPayload(order))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": payload})
}

type subscribeRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (h *Handler) subscribeRestock(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	sub, err := h.Restock.Subscribe(domain.RestockSubscription{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"subscription_id": sub.ID,
		"product_id":      sub.ProductID,
		"variant_id":      sub.VariantID,
	})
}

// writeDomainError переводит доменную ошибку в HTTP-статус.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *domain.InsufficientStockError
	var transitionErr *domain.InvalidTransitionError

	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient stock",
			"sku":       stockErr.SKU,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	case errors.As(err, &transitionErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "invalid transition",
			"from":  string(transitionErr.From),
			"to":    string(transitionErr.To),
		})
	case errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSubscriptionExists),
		errors.Is(err, domain.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsStorageUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	case domain.IsVersionConflict(err):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	default:
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if h.Logger != nil {
			h.Logger.WithError(err).Error("unhandled error in http layer")
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrLinesRequired,
		domain.ErrLineSKURequired,
		domain.ErrLineQtyInvalid,
		domain.ErrProductIDRequired,
		domain.ErrSubscriptionEmailRequired,
		domain.ErrUnknownOrderStatus,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func orderPayload(order domain.Order) map[string]any {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"sku":         item.SKU,
			"qty":         item.Qty,
			"price_minor": item.PriceMinor,
			"color":       item.Color,
			"size":        item.Size,
		})
	}

	payload := map[string]any{
		"id":           order.ID,
		"customer_ref": order.CustomerRef,
		"status":       string(order.Status),
		"currency":     order.Currency,
		"amount_minor": order.AmountMinor,
		"payment_ref":  order.PaymentRef,
		"tracking":     order.Tracking,
		"items":        items,
		"created_at":   order.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   order.UpdatedAt.Format(time.RFC3339Nano),
	}
	if order.PaidAt != nil {
		payload["paid_at"] = order.PaidAt.Format(time.RFC3339Nano)
	}
	if order.ShippedAt != nil {
		payload["shipped_at"] = order.ShippedAt.Format(time.RFC3339Nano)
	}
	if order.DeliveredAt != nil {
		payload["delivered_at"] = order.DeliveredAt.Format(time.RFC3339Nano)
	}
	return payload
}
