package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/httpx"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/redisx"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/checkout"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/restock"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

// notifyBacklogThreshold — порог pending-уведомлений, после которого
// health-проверка очереди переходит в degraded.
const notifyBacklogThreshold = 1000

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	// Kafka опционален: без brokers события ядра просто не публикуются.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)

	coreMetrics := metrics.NewCoreMetrics()
	dispatcher := notify.NewDispatcher(deps.Queue, logger.WithField("layer", "notify"))

	stockOpts := []inventory.Option{
		inventory.WithLogger(logger.WithField("layer", "inventory")),
		inventory.WithMetrics(coreMetrics),
	}
	if kafkaProducer != nil {
		stockOpts = append(stockOpts, inventory.WithKafkaProducer(kafkaProducer))
	}
	stock := inventory.NewLedger(deps.Variants, stockOpts...)

	orderOpts := []orders.Option{
		orders.WithLogger(logger.WithField("layer", "orders")),
		orders.WithMetrics(coreMetrics),
		orders.WithDispatcher(dispatcher),
	}
	if kafkaProducer != nil {
		orderOpts = append(orderOpts, orders.WithKafkaProducer(kafkaProducer))
	}
	orderLedger := orders.NewLedger(deps.Orders, stock, deps.Timeline, orderOpts...)

	if cfg.WebhookSecret == "" && !cfg.AllowUnverifiedWebhooks {
		logger.Warn("webhook secret is empty, incoming webhooks will be rejected")
	}
	verifier := checkout.NewSignatureVerifier(cfg.WebhookSecret, cfg.AllowUnverifiedWebhooks)

	reconcilerOpts := []checkout.Option{
		checkout.WithLogger(logger.WithField("layer", "checkout")),
		checkout.WithMetrics(coreMetrics),
		checkout.WithGateway(payment.NewMockGateway()),
	}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redisx.New(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		reconcilerOpts = append(reconcilerOpts, checkout.WithDeduper(redisx.NewDeduper(redisClient)))
		logger.WithField("addr", cfg.RedisAddr).Info("redis deduper initialized")
	}
	reconciler := checkout.NewReconciler(verifier, orderLedger, stock, deps.Webhooks, reconcilerOpts...)

	registryOpts := []restock.Option{
		restock.WithLogger(logger.WithField("layer", "restock")),
		restock.WithMetrics(coreMetrics),
		restock.WithDispatcher(dispatcher),
	}
	if kafkaProducer != nil {
		registryOpts = append(registryOpts, restock.WithKafkaProducer(kafkaProducer))
	}
	registry := restock.NewRegistry(deps.Restock, deps.Variants, registryOpts...)

	// Фоновые воркеры: доставка уведомлений, retention webhook-журнала,
	// sweep подписок на поступление.
	sender := notify.NewRouter(map[domain.NotificationChannel]domain.NotificationSender{
		domain.NotificationChannelEmail: notify.NewLogSender(domain.NotificationChannelEmail, logger.WithField("sender", "email")),
		domain.NotificationChannelSMS:   notify.NewLogSender(domain.NotificationChannelSMS, logger.WithField("sender", "sms")),
		domain.NotificationChannelPush:  notify.NewLogSender(domain.NotificationChannelPush, logger.WithField("sender", "push")),
	})
	notifyOpts := []notify.Option{
		notify.WithLogger(logger.WithField("worker", "notify")),
		notify.WithPollInterval(cfg.NotifyPollInterval),
	}
	if kafkaProducer != nil {
		notifyOpts = append(notifyOpts, notify.WithDLQPublisher(kafkaProducer))
	}
	notifyWorker := notify.NewWorker(deps.Queue, sender, notifyOpts...)
	go notifyWorker.Run(ctx)

	cleanupWorker := checkout.NewCleanupWorker(deps.Webhooks,
		checkout.WithCleanupLogger(logger.WithField("worker", "webhook-cleanup")),
		checkout.WithCleanupInterval(cfg.CleanupInterval),
	)
	go cleanupWorker.Run(ctx)

	sweepWorker := restock.NewSweepWorker(registry,
		restock.WithSweepLogger(logger.WithField("worker", "restock-sweep")),
		restock.WithSweepInterval(cfg.RestockSweepInterval),
	)
	go sweepWorker.Run(ctx)

	healthHandler := healthcheck.NewHandler(version.Get().String())
	if store != nil {
		healthHandler.Register("postgres", healthcheck.NewPingChecker(0, store.Ping))
	}
	if redisClient != nil {
		healthHandler.Register("redis", healthcheck.NewPingChecker(0, func(pingCtx context.Context) error {
			return redisClient.Ping(pingCtx).Err()
		}))
	}
	healthHandler.Register("notify-backlog", healthcheck.NewBacklogChecker(notifyBacklogThreshold, func() (int, error) {
		stats, err := deps.Queue.Stats()
		return stats.PendingCount, err
	}))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	router := httpx.NewRouter()
	apiHandler := &httpx.Handler{
		Reconciler: reconciler,
		Orders:     orderLedger,
		Inventory:  stock,
		Restock:    registry,
		Logger:     logger.WithField("layer", "http"),
	}
	apiHandler.Register(router)

	apiSrv := &http.Server{Addr: cfg.APIAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.APIAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus
// вместе с health-эндпоинтами.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.Readiness)
	mux.HandleFunc("/livez", healthcheck.Liveness)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
