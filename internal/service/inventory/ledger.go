package inventory

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Ledger — авторитетный учёт остатков по SKU. Все мутации стока проходят
// через него; атомарность каждой операции обеспечивает хранилище
// (условная одиночная запись), Ledger добавляет low-stock сигналы,
// метрики и логирование.
type Ledger struct {
	variants      domain.VariantRepository
	threshold     int32
	logger        *log.Entry
	metrics       *metrics.CoreMetrics
	kafkaProducer *kafka.Producer // опциональный producer для low-stock сигналов
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics задаёт метрики ядра.
func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithKafkaProducer задаёт producer для публикации low-stock событий.
func WithKafkaProducer(producer *kafka.Producer) Option {
	return func(l *Ledger) {
		l.kafkaProducer = producer
	}
}

// WithThreshold переопределяет порог low-stock сигнала.
func WithThreshold(threshold int32) Option {
	return func(l *Ledger) {
		if threshold > 0 {
			l.threshold = threshold
		}
	}
}

// NewLedger создаёт рабочий экземпляр учёта остатков.
func NewLedger(variants domain.VariantRepository, options ...Option) *Ledger {
	ledger := &Ledger{
		variants:  variants,
		threshold: domain.LowStockThreshold,
		logger:    log.WithField("component", "inventory"),
	}
	for _, option := range options {
		option(ledger)
	}
	return ledger
}

// CheckAvailability проверяет остаток без резервирования. Проверка
// advisory: единственным реальным барьером от oversell остаётся Decrement.
func (l *Ledger) CheckAvailability(skuID string, qty int32) (domain.Variant, error) {
	variant, err := l.variants.Get(skuID)
	if err != nil {
		return domain.Variant{}, err
	}
	if variant.Quantity < qty {
		return domain.Variant{}, &domain.InsufficientStockError{
			SKU:       skuID,
			Requested: qty,
			Available: variant.Quantity,
		}
	}
	return variant, nil
}

// Decrement списывает qty единиц; хранилище перепроверяет остаток в той же
// атомарной операции, что и запись.
func (l *Ledger) Decrement(skuID string, qty int32) (domain.Variant, error) {
	variant, err := l.variants.Decrement(skuID, qty)
	if err != nil {
		if domain.IsInsufficientStock(err) {
			l.metrics.RecordOversellRejection()
			l.logger.WithFields(log.Fields{
				"sku": skuID,
				"qty": qty,
			}).Warn("decrement rejected: insufficient stock")
		}
		return domain.Variant{}, err
	}

	l.signalLowStock(variant)
	return variant, nil
}

// Increment возвращает qty единиц на остаток (отмена/возврат).
func (l *Ledger) Increment(skuID string, qty int32) (domain.Variant, error) {
	return l.variants.Increment(skuID, qty)
}

// DecrementLineItems применяет списания строк заказа целиком или не
// применяет ничего.
func (l *Ledger) DecrementLineItems(lines []domain.LineItem) error {
	if errs := domain.ValidateLines(lines); len(errs) != 0 {
		return errs[0]
	}

	variants, err := l.variants.DecrementLines(lines)
	if err != nil {
		if domain.IsInsufficientStock(err) {
			l.metrics.RecordOversellRejection()
		}
		return err
	}

	for _, variant := range variants {
		l.signalLowStock(variant)
	}
	return nil
}

// IncrementLineItems возвращает остатки по строкам заказа.
func (l *Ledger) IncrementLineItems(lines []domain.LineItem) error {
	if errs := domain.ValidateLines(lines); len(errs) != 0 {
		return errs[0]
	}

	_, err := l.variants.IncrementLines(lines)
	return err
}

// signalLowStock эмитит сигнал для каждого успешного списания, после
// которого остаток оказался на пороге или ниже.
func (l *Ledger) signalLowStock(variant domain.Variant) {
	if variant.Quantity > l.threshold {
		return
	}

	severity := domain.LowStockSeverityFor(variant.Quantity)
	l.metrics.RecordLowStockSignal(string(severity))
	l.logger.WithFields(log.Fields{
		"product_id": variant.ProductID,
		"variant_id": variant.ID,
		"stock":      variant.Quantity,
		"severity":   severity,
	}).Warn("low stock signal")

	if l.kafkaProducer == nil {
		return
	}
	event := kafka.NewLowStockEvent(variant.ProductID, variant.ID, variant.Quantity, string(severity))
	if err := l.kafkaProducer.PublishEvent(kafka.TopicInventoryEvents, variant.ID, event); err != nil {
		// Сигнал best-effort: публикация не влияет на результат списания.
		l.logger.WithError(err).WithField("variant_id", variant.ID).Warn("failed to publish low stock event")
	}
}
