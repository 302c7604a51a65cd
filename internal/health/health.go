package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status — итоговое состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check — результат одной проверки.
type Check struct {
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — агрегированный ответ /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Build         string           `json:"build,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker выполняет проверку одного компонента.
type Checker interface {
	Check() Check
}

// CheckerFunc адаптирует функцию к интерфейсу Checker.
type CheckerFunc func() Check

func (f CheckerFunc) Check() Check { return f() }

// Handler собирает зарегистрированные проверки и отдаёт агрегированный
// статус. Unhealthy любой проверки опускает общий статус до unhealthy,
// degraded — до degraded.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	build    string
	started  time.Time
}

// NewHandler создаёт handler; build попадает в ответ как строка сборки.
func NewHandler(build string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		build:    build,
		started:  time.Now(),
	}
}

// Register добавляет проверку под именем компонента.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	return checkers
}

// ServeHTTP — /healthz: полный отчёт по всем проверкам.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]Check)
	overall := StatusHealthy

	for name, checker := range h.snapshot() {
		check := checker.Check()
		checks[name] = check

		switch check.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Checks:        checks,
		Build:         h.build,
		Timestamp:     time.Now(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	})
}

// Readiness — /readyz: 503, пока хотя бы одна проверка unhealthy.
// Degraded не снимает трафик: сервис работает, но требует внимания.
func (h *Handler) Readiness(w http.ResponseWriter, _ *http.Request) {
	for _, checker := range h.snapshot() {
		if checker.Check().Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Liveness — /livez: процесс жив, всегда 200.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// NewPingChecker оборачивает ping внешней зависимости (PostgreSQL, Redis)
// в Checker с таймаутом.
func NewPingChecker(timeout time.Duration, ping func(ctx context.Context) error) Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return CheckerFunc(func() Check {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		err := ping(ctx)
		check := Check{Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		}
		return check
	})
}

// NewBacklogChecker следит за размером очереди: при backlog выше порога
// компонент считается degraded, при ошибке чтения — unhealthy.
func NewBacklogChecker(threshold int, pending func() (int, error)) Checker {
	return CheckerFunc(func() Check {
		start := time.Now()
		count, err := pending()
		check := Check{Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}

		switch {
		case err != nil:
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		case count > threshold:
			check.Status = StatusDegraded
			check.Message = "backlog above threshold"
		}
		return check
	})
}
