package restock

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval  = 15 * time.Minute
	defaultSweepBatchSize = 500
)

var (
	restockSweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_restock_sweep_runs_total",
		Help: "Total number of restock sweep runs grouped by result.",
	}, []string{"result"})
	restockSweepLastNotified = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_restock_sweep_last_notified",
		Help: "Number of subscribers notified during the last sweep run.",
	})
)

// SweepOptions задаёт параметры воркера рассылки restock-уведомлений.
type SweepOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
}

// SweepOption настраивает SweepWorker.
type SweepOption func(*SweepOptions)

// WithSweepLogger задаёт logger для воркера.
func WithSweepLogger(logger *log.Entry) SweepOption {
	return func(opts *SweepOptions) {
		opts.Logger = logger
	}
}

// WithSweepInterval задаёт интервал между sweep-циклами. Периодичность —
// вопрос политики (ежедневно или чаще), не корректности.
func WithSweepInterval(interval time.Duration) SweepOption {
	return func(opts *SweepOptions) {
		opts.Interval = interval
	}
}

// WithSweepBatchSize задаёт число подписок на один цикл.
func WithSweepBatchSize(batchSize int) SweepOption {
	return func(opts *SweepOptions) {
		opts.BatchSize = batchSize
	}
}

// SweepWorker периодически запускает sweep реестра подписок.
type SweepWorker struct {
	registry  *Registry
	logger    *log.Entry
	interval  time.Duration
	batchSize int
}

// NewSweepWorker создаёт воркер рассылки restock-уведомлений.
func NewSweepWorker(registry *Registry, options ...SweepOption) *SweepWorker {
	opts := SweepOptions{
		Interval:  defaultSweepInterval,
		BatchSize: defaultSweepBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "restock-sweep-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}

	return &SweepWorker{
		registry:  registry,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодические sweep'ы до отмены ctx.
func (w *SweepWorker) Run(ctx context.Context) {
	if w.registry == nil {
		w.logger.Warn("restock sweep worker is disabled: registry is nil")
		return
	}

	w.sweep()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *SweepWorker) sweep() {
	notified, err := w.registry.SweepOnce(w.batchSize)
	if err != nil {
		restockSweepRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("restock sweep run failed")
		return
	}

	restockSweepRunsTotal.WithLabelValues("ok").Inc()
	restockSweepLastNotified.Set(float64(notified))
	if notified > 0 {
		w.logger.WithField("notified", notified).Info("restock sweep completed")
	}
}
