package checkout

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
)

// webhookRetention — срок хранения аудиторских записей о событиях.
const webhookRetention = 72 * time.Hour

// Deduper — быстрая (best-effort) проверка «событие уже видели».
// Реализуется поверх Redis; ошибка или отсутствие deduper'а не мешают
// обработке: последней линией дедупликации остаётся уникальность
// payment_ref в хранилище заказов.
type Deduper interface {
	// Seen атомарно регистрирует event id; true — id уже был.
	Seen(eventID string) (bool, error)
}

// Reconciler — входная точка для webhook-событий провайдера и создания
// checkout-сессий. Превращает асинхронный, дублирующийся, неупорядоченный
// поток событий в ровно один заказ на платёжную ссылку.
type Reconciler struct {
	verifier  *SignatureVerifier
	orders    *orders.Ledger
	inventory *inventory.Ledger
	events    domain.WebhookEventRepository
	gateway   domain.PaymentGateway
	deduper   Deduper
	logger    *log.Entry
	metrics   *metrics.CoreMetrics
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics задаёт метрики ядра.
func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithDeduper задаёт быстрый дедупликатор событий.
func WithDeduper(deduper Deduper) Option {
	return func(r *Reconciler) {
		r.deduper = deduper
	}
}

// WithGateway задаёт платёжный шлюз для создания сессий.
func WithGateway(gateway domain.PaymentGateway) Option {
	return func(r *Reconciler) {
		r.gateway = gateway
	}
}

// NewReconciler создаёт reconciler.
func NewReconciler(verifier *SignatureVerifier, orderLedger *orders.Ledger, stock *inventory.Ledger, events domain.WebhookEventRepository, options ...Option) *Reconciler {
	reconciler := &Reconciler{
		verifier:  verifier,
		orders:    orderLedger,
		inventory: stock,
		events:    events,
		logger:    log.WithField("component", "checkout"),
	}
	for _, option := range options {
		option(reconciler)
	}
	return reconciler
}

// CreateSession пред-проверяет остатки по каждой строке (read-only, без
// резервирования) и создаёт сессию у платёжного провайдера. Сток может
// закончиться между созданием сессии и приходом webhook — этот случай
// обрабатывает reconciliation, а не сессия.
func (r *Reconciler) CreateSession(customerRef, currency string, lines []domain.LineItem) (string, error) {
	if errs := domain.ValidateLines(lines); len(errs) != 0 {
		return "", errs[0]
	}

	var amount int64
	for _, line := range lines {
		if _, err := r.inventory.CheckAvailability(line.SKU, line.Qty); err != nil {
			return "", err
		}
		amount += int64(line.Qty) * line.PriceMinor
	}

	session := domain.CheckoutSession{
		ID:          uuid.NewString(),
		CustomerRef: customerRef,
		Currency:    currency,
		AmountMinor: amount,
		Lines:       lines,
		CreatedAt:   time.Now().UTC(),
	}

	if r.gateway == nil {
		return "", errors.New("payment gateway is not configured")
	}
	redirectURL, err := r.gateway.CreateCheckoutSession(session)
	if err != nil {
		return "", err
	}

	r.logger.WithFields(log.Fields{
		"session_id":   session.ID,
		"customer_ref": customerRef,
		"amount_minor": amount,
	}).Info("checkout session created")
	return redirectURL, nil
}

// webhookEnvelope — tagged union событий провайдера на проводе.
type webhookEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type checkoutCompletedData struct {
	PaymentRef  string         `json:"payment_ref"`
	CustomerRef string         `json:"customer_ref"`
	AmountMinor int64          `json:"amount_minor"`
	Currency    string         `json:"currency"`
	Customer    customerData   `json:"customer"`
	Shipping    addressData    `json:"shipping_address"`
	Billing     addressData    `json:"billing_address"`
	Items       []lineItemData `json:"items"`
}

type customerData struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type addressData struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type lineItemData struct {
	SKU        string `json:"sku"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
	Color      string `json:"color"`
	Size       string `json:"size"`
}

// Result — исход обработки webhook-доставки.
type Result struct {
	Outcome domain.WebhookOutcome
	Order   domain.Order
	Created bool
}

// HandleWebhook проверяет подпись, дедуплицирует и сверяет событие.
//
// Контракт с провайдером: ошибка возвращается только когда доставку надо
// повторить (невалидная подпись — 401, транзиентный отказ хранилища —
// non-2xx); все терминальные исходы, включая битый payload и дубликаты,
// подтверждаются без ошибки.
func (r *Reconciler) HandleWebhook(body []byte, signature string) (Result, error) {
	started := time.Now()
	defer func() {
		r.metrics.RecordWebhookDuration(time.Since(started))
	}()

	if err := r.verifier.Verify(body, signature); err != nil {
		r.logger.WithField("signature", signature).Error("webhook signature verification failed")
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeFailed))
		return Result{Outcome: domain.WebhookOutcomeFailed}, err
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ID == "" {
		// Провайдер повторяет доставку на non-2xx, а битый payload от
		// повторов не исправится: подтверждаем и выбрасываем.
		r.logger.WithError(err).Warn("malformed webhook payload, acknowledging and dropping")
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeDropped))
		return Result{Outcome: domain.WebhookOutcomeDropped}, nil
	}

	entry := r.logger.WithFields(log.Fields{
		"event_id":   envelope.ID,
		"event_type": envelope.Type,
	})

	if dup := r.alreadySeen(envelope.ID, entry); dup {
		r.metrics.RecordDuplicateWebhook()
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeDuplicate))
		return Result{Outcome: domain.WebhookOutcomeDuplicate}, nil
	}

	if !isCheckoutCompleted(envelope.Type) {
		entry.Info("webhook event type outside handled family, acknowledging")
		r.record(envelope, "", domain.WebhookOutcomeSkipped)
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeSkipped))
		return Result{Outcome: domain.WebhookOutcomeSkipped}, nil
	}

	var data checkoutCompletedData
	if err := json.Unmarshal(envelope.Data, &data); err != nil || data.PaymentRef == "" {
		entry.WithError(err).Warn("checkout event with malformed data, acknowledging and dropping")
		r.record(envelope, data.PaymentRef, domain.WebhookOutcomeDropped)
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeDropped))
		return Result{Outcome: domain.WebhookOutcomeDropped}, nil
	}

	order, created, err := r.orders.CreateFromWebhook(toOrderInput(data))
	switch {
	case err == nil && created:
		r.record(envelope, data.PaymentRef, domain.WebhookOutcomeProcessed)
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeProcessed))
		entry.WithField("order_id", order.ID).Info("webhook reconciled into order")
		return Result{Outcome: domain.WebhookOutcomeProcessed, Order: order, Created: true}, nil

	case err == nil:
		// Заказ по этой платёжной ссылке уже существует: повторная
		// доставка, «already handled».
		r.record(envelope, data.PaymentRef, domain.WebhookOutcomeDuplicate)
		r.metrics.RecordDuplicateWebhook()
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeDuplicate))
		return Result{Outcome: domain.WebhookOutcomeDuplicate, Order: order}, nil

	case domain.IsInsufficientStock(err):
		// Сток закончился до прихода webhook. Заказ отменён, retry
		// провайдера ничего не изменит: подтверждаем доставку.
		r.record(envelope, data.PaymentRef, domain.WebhookOutcomeDropped)
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeDropped))
		return Result{Outcome: domain.WebhookOutcomeDropped, Order: order, Created: created}, nil

	case isPermanentOrderError(err):
		// Инварианты заказа нарушены в самих данных события: от retry
		// payload не изменится, подтверждаем и выбрасываем.
		entry.WithError(err).Warn("webhook order data violates invariants, acknowledging and dropping")
		r.record(envelope, data.PaymentRef, domain.WebhookOutcomeDropped)
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeDropped))
		return Result{Outcome: domain.WebhookOutcomeDropped}, nil

	default:
		// Транзиентный отказ (хранилище недоступно): аудиторскую запись
		// не пишем, чтобы retry провайдера не был принят за дубликат.
		entry.WithError(err).Error("webhook reconciliation failed, asking provider to retry")
		r.metrics.RecordWebhookEvent(string(domain.WebhookOutcomeFailed))
		return Result{Outcome: domain.WebhookOutcomeFailed}, err
	}
}

// alreadySeen проверяет событие в быстром дедупликаторе и в аудите.
func (r *Reconciler) alreadySeen(eventID string, entry *log.Entry) bool {
	if r.deduper != nil {
		seen, err := r.deduper.Seen(eventID)
		if err != nil {
			entry.WithError(err).Warn("dedup fast path unavailable, falling back to storage")
		} else if seen {
			entry.Info("duplicate webhook delivery (fast path)")
			return true
		}
	}

	if _, err := r.events.Get(eventID); err == nil {
		entry.Info("duplicate webhook delivery")
		return true
	}
	return false
}

// record пишет аудиторскую запись терминального исхода. Отказ записи не
// ломает обработку: дедупликацию гарантирует payment_ref.
func (r *Reconciler) record(envelope webhookEnvelope, paymentRef string, outcome domain.WebhookOutcome) {
	now := time.Now().UTC()
	err := r.events.Record(domain.WebhookRecord{
		EventID:        envelope.ID,
		EventType:      envelope.Type,
		PaymentRef:     paymentRef,
		SignatureValid: true,
		Outcome:        outcome,
		ProcessedAt:    now,
		TTLAt:          now.Add(webhookRetention),
		CreatedAt:      now,
	})
	if err != nil && !errors.Is(err, domain.ErrWebhookEventExists) {
		r.logger.WithError(err).WithField("event_id", envelope.ID).Warn("failed to record webhook event")
	}
}

// isPermanentOrderError отличает нарушение инвариантов данных события от
// транзиентного отказа инфраструктуры.
func isPermanentOrderError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrPaymentRefRequired,
		domain.ErrItemsRequired,
		domain.ErrAmountNegative,
		domain.ErrAmountMismatch,
		domain.ErrItemQtyInvalid,
		domain.ErrItemPriceInvalid,
		domain.ErrLinesRequired,
		domain.ErrLineSKURequired,
		domain.ErrLineQtyInvalid,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isCheckoutCompleted(eventType string) bool {
	switch eventType {
	case "checkout.completed", "checkout.session.completed":
		return true
	}
	return false
}

func toOrderInput(data checkoutCompletedData) orders.CreateOrderInput {
	items := make([]domain.OrderItem, 0, len(data.Items))
	for _, item := range data.Items {
		items = append(items, domain.OrderItem{
			SKU:        item.SKU,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			Color:      item.Color,
			Size:       item.Size,
		})
	}
	return orders.CreateOrderInput{
		PaymentRef:  data.PaymentRef,
		CustomerRef: data.CustomerRef,
		Currency:    data.Currency,
		AmountMinor: data.AmountMinor,
		Customer: domain.CustomerInfo{
			Name:  data.Customer.Name,
			Email: data.Customer.Email,
			Phone: data.Customer.Phone,
		},
		Shipping: toAddress(data.Shipping),
		Billing:  toAddress(data.Billing),
		Items:    items,
	}
}

func toAddress(data addressData) domain.Address {
	return domain.Address{
		Line1:      data.Line1,
		Line2:      data.Line2,
		City:       data.City,
		Region:     data.Region,
		PostalCode: data.PostalCode,
		Country:    data.Country,
	}
}
