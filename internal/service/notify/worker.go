package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	notifySendAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_notify_send_attempts_total",
		Help: "Total number of notification send attempts grouped by result.",
	}, []string{"result"})
	notifyPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_notify_pending_records",
		Help: "Current number of pending notifications in the queue.",
	})
	notifyOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_notify_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending notification.",
	})
)

// DLQPublisher публикует события в dead-letter topic.
type DLQPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// WorkerOptions задаёт параметры воркера доставки уведомлений.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   DLQPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher DLQPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса очереди.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из очереди.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток доставки перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker доставляет pending-уведомления из очереди через sender.
type Worker struct {
	queue          domain.NotificationQueue
	sender         domain.NotificationSender
	dlqPublisher   DLQPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт воркер доставки уведомлений.
func NewWorker(queue domain.NotificationQueue, sender domain.NotificationSender, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "notify-worker")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		queue:          queue,
		sender:         sender,
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Run запускает периодический polling очереди до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.queue == nil || w.sender == nil {
		w.logger.Warn("notify worker is disabled: queue or sender is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.refreshBacklogMetrics()

	notifications, err := w.queue.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending notifications")
		return
	}
	if len(notifications) == 0 {
		return
	}

	for _, notification := range notifications {
		if ctx.Err() != nil {
			return
		}

		if err := w.sendWithRetry(ctx, notification); err != nil {
			w.logger.WithError(err).WithFields(log.Fields{
				"notification_id": notification.ID,
				"template":        notification.Template,
			}).Error("notification delivery failed after retries")
			notifySendAttempts.WithLabelValues("failed").Inc()

			if dlqErr := w.publishToDLQ(notification, err); dlqErr != nil {
				w.logger.WithError(dlqErr).WithField("notification_id", notification.ID).Warn("failed to publish to DLQ")
				notifySendAttempts.WithLabelValues("dlq_failed").Inc()
			}
			if markErr := w.queue.MarkFailed(notification.ID); markErr != nil {
				w.logger.WithError(markErr).WithField("notification_id", notification.ID).Warn("failed to mark notification as failed")
			}
			continue
		}

		if err := w.queue.MarkSent(notification.ID); err != nil {
			w.logger.WithError(err).WithField("notification_id", notification.ID).Warn("failed to mark notification as sent")
		}
	}

	w.refreshBacklogMetrics()
}

func (w *Worker) sendWithRetry(ctx context.Context, notification domain.Notification) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.sender.Send(notification)
		if err == nil {
			notifySendAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		notifySendAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("send failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) refreshBacklogMetrics() {
	stats, err := w.queue.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect notification backlog stats")
		return
	}

	notifyPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		notifyOldestPendingAge.Set(0)
		return
	}

	age := time.Since(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	notifyOldestPendingAge.Set(age)
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return w.retryBaseDelay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) publishToDLQ(notification domain.Notification, sendErr error) error {
	if w.dlqPublisher == nil {
		return nil
	}

	event := map[string]any{
		"notification_id":  notification.ID,
		"channel":          notification.Channel,
		"template":         notification.Template,
		"recipient":        notification.Recipient,
		"payload":          json.RawMessage(notification.Payload),
		"send_error":       sendErr.Error(),
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := w.dlqPublisher.PublishEvent(kafka.TopicDeadLetterQueue, notification.ID, event); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}

	return nil
}
