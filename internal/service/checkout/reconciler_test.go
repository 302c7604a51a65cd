package checkout_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/checkout"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

const testSecret = "whsec_test"

type reconcilerFixture struct {
	reconciler *checkout.Reconciler
	verifier   *checkout.SignatureVerifier
	variants   domain.VariantRepository
	orders     *orders.Ledger
	gateway    *payment.MockGateway
}

func newReconciler(t *testing.T, stock int32) *reconcilerFixture {
	t.Helper()

	variants := memory.NewVariantRepository()
	err := variants.Upsert(domain.Variant{
		ID:        "sku-tee-m",
		ProductID: "prod-tee",
		Color:     "black",
		Size:      "M",
		Quantity:  stock,
	})
	if err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	stockLedger := inventory.NewLedger(variants)
	orderLedger := orders.NewLedger(
		memory.NewOrderRepository(),
		stockLedger,
		memory.NewTimelineRepository(),
		orders.WithDispatcher(notify.NewDispatcher(memory.NewNotificationQueue(), nil)),
	)
	verifier := checkout.NewSignatureVerifier(testSecret, false)
	gateway := payment.NewMockGateway()

	return &reconcilerFixture{
		reconciler: checkout.NewReconciler(
			verifier,
			orderLedger,
			stockLedger,
			memory.NewWebhookEventRepository(),
			checkout.WithGateway(gateway),
		),
		verifier: verifier,
		variants: variants,
		orders:   orderLedger,
		gateway:  gateway,
	}
}

func completedEvent(eventID, paymentRef string, qty int32) []byte {
	payload := map[string]any{
		"id":   eventID,
		"type": "checkout.completed",
		"data": map[string]any{
			"payment_ref":  paymentRef,
			"customer_ref": "cust-1",
			"amount_minor": int64(qty) * 1500,
			"currency":     "USD",
			"customer": map[string]any{
				"name":  "Ivan Petrov",
				"email": "ivan@example.com",
			},
			"shipping_address": map[string]any{
				"line1":   "1 Main St",
				"city":    "Springfield",
				"country": "US",
			},
			"items": []map[string]any{
				{"sku": "sku-tee-m", "qty": qty, "price_minor": 1500},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return body
}

func TestReconciler_HandleWebhookProcessed(t *testing.T) {
	fx := newReconciler(t, 10)

	body := completedEvent("evt_1", "pi_1", 2)
	result, err := fx.reconciler.HandleWebhook(body, fx.verifier.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != domain.WebhookOutcomeProcessed {
		t.Fatalf("expected processed, got %s", result.Outcome)
	}
	if !result.Created {
		t.Fatal("expected created=true")
	}
	if result.Order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", result.Order.Status)
	}

	variant, _ := fx.variants.Get("sku-tee-m")
	if variant.Quantity != 8 {
		t.Fatalf("expected stock 8, got %d", variant.Quantity)
	}
}

func TestReconciler_InvalidSignature(t *testing.T) {
	fx := newReconciler(t, 10)

	body := completedEvent("evt_sig", "pi_sig", 1)
	_, err := fx.reconciler.HandleWebhook(body, "deadbeef")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	// Событие с невалидной подписью не должно ничего менять.
	variant, _ := fx.variants.Get("sku-tee-m")
	if variant.Quantity != 10 {
		t.Fatalf("stock mutated on unverified webhook: %d", variant.Quantity)
	}
}

// Повтор того же event id подтверждается как дубликат без второго заказа.
func TestReconciler_DuplicateEventID(t *testing.T) {
	fx := newReconciler(t, 10)

	body := completedEvent("evt_dup", "pi_dup", 2)
	signature := fx.verifier.Sign(body)

	if _, err := fx.reconciler.HandleWebhook(body, signature); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	result, err := fx.reconciler.HandleWebhook(body, signature)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if result.Outcome != domain.WebhookOutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", result.Outcome)
	}

	variant, _ := fx.variants.Get("sku-tee-m")
	if variant.Quantity != 8 {
		t.Fatalf("stock decremented twice: %d", variant.Quantity)
	}
}

// Провайдер может прислать повтор с новым event id: дедупликацию в этом
// случае обеспечивает единственность payment_ref.
func TestReconciler_DuplicatePaymentRefFreshEventID(t *testing.T) {
	fx := newReconciler(t, 10)

	first := completedEvent("evt_a", "pi_same", 2)
	if _, err := fx.reconciler.HandleWebhook(first, fx.verifier.Sign(first)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	second := completedEvent("evt_b", "pi_same", 2)
	result, err := fx.reconciler.HandleWebhook(second, fx.verifier.Sign(second))
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if result.Outcome != domain.WebhookOutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", result.Outcome)
	}

	list, _ := fx.orders.ListByCustomer("cust-1", 0)
	if len(list) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(list))
	}
	variant, _ := fx.variants.Get("sku-tee-m")
	if variant.Quantity != 8 {
		t.Fatalf("stock decremented twice: %d", variant.Quantity)
	}
}

func TestReconciler_MalformedPayloadAcknowledged(t *testing.T) {
	fx := newReconciler(t, 10)

	body := []byte(`{"id":`)
	result, err := fx.reconciler.HandleWebhook(body, fx.verifier.Sign(body))
	if err != nil {
		t.Fatalf("malformed payload must be acknowledged, got %v", err)
	}
	if result.Outcome != domain.WebhookOutcomeDropped {
		t.Fatalf("expected dropped, got %s", result.Outcome)
	}
}

func TestReconciler_UnhandledEventTypeSkipped(t *testing.T) {
	fx := newReconciler(t, 10)

	body := []byte(`{"id":"evt_other","type":"invoice.paid","data":{}}`)
	result, err := fx.reconciler.HandleWebhook(body, fx.verifier.Sign(body))
	if err != nil {
		t.Fatalf("unhandled type must be acknowledged, got %v", err)
	}
	if result.Outcome != domain.WebhookOutcomeSkipped {
		t.Fatalf("expected skipped, got %s", result.Outcome)
	}
}

func TestReconciler_MissingPaymentRefDropped(t *testing.T) {
	fx := newReconciler(t, 10)

	body := []byte(`{"id":"evt_nor","type":"checkout.completed","data":{"currency":"USD"}}`)
	result, err := fx.reconciler.HandleWebhook(body, fx.verifier.Sign(body))
	if err != nil {
		t.Fatalf("missing payment_ref must be acknowledged, got %v", err)
	}
	if result.Outcome != domain.WebhookOutcomeDropped {
		t.Fatalf("expected dropped, got %s", result.Outcome)
	}
}

// Сток закончился между сессией и webhook: заказ отменяется, доставка
// подтверждается.
func TestReconciler_StockRanOutBeforeWebhook(t *testing.T) {
	fx := newReconciler(t, 1)

	body := completedEvent("evt_late", "pi_late", 5)
	result, err := fx.reconciler.HandleWebhook(body, fx.verifier.Sign(body))
	if err != nil {
		t.Fatalf("expected acknowledged delivery, got %v", err)
	}
	if result.Outcome != domain.WebhookOutcomeDropped {
		t.Fatalf("expected dropped, got %s", result.Outcome)
	}
	if result.Order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled order, got %s", result.Order.Status)
	}
}

func TestReconciler_CreateSession(t *testing.T) {
	fx := newReconciler(t, 10)

	url, err := fx.reconciler.CreateSession("cust-1", "USD", []domain.LineItem{
		{SKU: "sku-tee-m", Qty: 2, PriceMinor: 1500},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, "https://pay.example.com/session/") {
		t.Fatalf("unexpected redirect url: %s", url)
	}

	if fx.gateway.CreateCalls != 1 {
		t.Fatalf("expected 1 gateway call, got %d", fx.gateway.CreateCalls)
	}
	session := fx.gateway.Sessions[0]
	if session.AmountMinor != 3000 {
		t.Fatalf("expected amount 3000, got %d", session.AmountMinor)
	}

	// Пред-проверка read-only: сток не резервируется.
	variant, _ := fx.variants.Get("sku-tee-m")
	if variant.Quantity != 10 {
		t.Fatalf("session creation must not reserve stock: %d", variant.Quantity)
	}
}

func TestReconciler_CreateSessionInsufficientStock(t *testing.T) {
	fx := newReconciler(t, 1)

	_, err := fx.reconciler.CreateSession("cust-1", "USD", []domain.LineItem{
		{SKU: "sku-tee-m", Qty: 3, PriceMinor: 1500},
	})
	if !domain.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *InsufficientStockError, got %T", err)
	}
	if stockErr.Available != 1 {
		t.Fatalf("expected real-time count 1 in error, got %d", stockErr.Available)
	}
	if fx.gateway.CreateCalls != 0 {
		t.Fatalf("gateway must not be called on failed pre-check, got %d calls", fx.gateway.CreateCalls)
	}
}

func TestReconciler_CreateSessionValidation(t *testing.T) {
	fx := newReconciler(t, 10)

	if _, err := fx.reconciler.CreateSession("cust-1", "USD", nil); !errors.Is(err, domain.ErrLinesRequired) {
		t.Fatalf("expected ErrLinesRequired, got %v", err)
	}
}

// Быстрый дедупликатор недоступен — обработка продолжается через
// дедупликацию хранилища.
func TestReconciler_DeduperFailureIsNonFatal(t *testing.T) {
	variants := memory.NewVariantRepository()
	if err := variants.Upsert(domain.Variant{ID: "sku-tee-m", ProductID: "prod-tee", Quantity: 10}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	stockLedger := inventory.NewLedger(variants)
	orderLedger := orders.NewLedger(
		memory.NewOrderRepository(),
		stockLedger,
		memory.NewTimelineRepository(),
	)
	verifier := checkout.NewSignatureVerifier(testSecret, false)
	reconciler := checkout.NewReconciler(
		verifier,
		orderLedger,
		stockLedger,
		memory.NewWebhookEventRepository(),
		checkout.WithDeduper(&failingDeduper{}),
	)

	body := completedEvent("evt_fast", "pi_fast", 1)
	result, err := reconciler.HandleWebhook(body, verifier.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != domain.WebhookOutcomeProcessed {
		t.Fatalf("expected processed despite deduper outage, got %s", result.Outcome)
	}
}

type failingDeduper struct{}

func (f *failingDeduper) Seen(string) (bool, error) {
	return false, fmt.Errorf("redis: connection refused")
}
