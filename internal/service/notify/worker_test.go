package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	queue := &stubQueue{
		pending: []domain.Notification{
			{
				ID:        "ntf-1",
				Channel:   domain.NotificationChannelEmail,
				Template:  domain.TemplateOrderReceived,
				Recipient: "buyer@example.com",
				Payload:   []byte(`{"order_id":"order-1"}`),
			},
		},
	}
	sender := &stubSender{}

	worker := NewWorker(
		queue,
		sender,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := len(queue.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if queue.sentIDs[0] != "ntf-1" {
		t.Fatalf("expected sent id ntf-1, got %s", queue.sentIDs[0])
	}
	if got := len(queue.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
	if got := sender.calls(); got != 1 {
		t.Fatalf("expected 1 send call, got %d", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	queue := &stubQueue{
		pending: []domain.Notification{
			{
				ID:        "ntf-2",
				Channel:   domain.NotificationChannelEmail,
				Template:  domain.TemplateOrderCanceled,
				Recipient: "buyer@example.com",
				Payload:   []byte(`{"order_id":"order-2"}`),
			},
		},
	}
	sender := &stubSender{err: errors.New("smtp down")}
	dlq := &stubDLQ{}

	worker := NewWorker(
		queue,
		sender,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := sender.calls(); got != 3 {
		t.Fatalf("expected 3 send attempts, got %d", got)
	}
	if got := len(queue.sentIDs); got != 0 {
		t.Fatalf("expected 0 sent marks, got %d", got)
	}
	if got := len(queue.failedIDs); got != 1 {
		t.Fatalf("expected 1 failed mark, got %d", got)
	}
	if queue.failedIDs[0] != "ntf-2" {
		t.Fatalf("expected failed id ntf-2, got %s", queue.failedIDs[0])
	}
	if got := dlq.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	queue := &stubQueue{
		pending: []domain.Notification{
			{
				ID:        "ntf-3",
				Channel:   domain.NotificationChannelEmail,
				Template:  domain.TemplateOrderShipped,
				Recipient: "buyer@example.com",
				Payload:   []byte(`{"order_id":"order-3"}`),
			},
		},
	}
	sender := &stubSender{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	worker := NewWorker(
		queue,
		sender,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := sender.calls(); got != 3 {
		t.Fatalf("expected 3 send attempts, got %d", got)
	}
	if got := len(queue.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if got := len(queue.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	queue := &stubQueue{}
	sender := &stubSender{}

	worker := NewWorker(
		queue,
		sender,
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubQueue struct {
	pending   []domain.Notification
	sentIDs   []string
	failedIDs []string
}

func (s *stubQueue) Enqueue(n domain.Notification) (domain.Notification, error) {
	return n, nil
}

func (s *stubQueue) PullPending(limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.Notification(nil), s.pending...), nil
	}
	return append([]domain.Notification(nil), s.pending[:limit]...), nil
}

func (s *stubQueue) Stats() (domain.NotificationStats, error) {
	stats := domain.NotificationStats{
		PendingCount: len(s.pending),
	}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubQueue) MarkSent(id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubQueue) MarkFailed(id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubSender struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
}

func (s *stubSender) Send(_ domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}

	return s.err
}

func (s *stubSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

type stubDLQ struct {
	mu        sync.Mutex
	callCount int
}

func (s *stubDLQ) PublishEvent(_ string, _ string, _ interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount++
	return nil
}

func (s *stubDLQ) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.NotificationQueue = (*stubQueue)(nil)
var _ domain.NotificationSender = (*stubSender)(nil)
var _ DLQPublisher = (*stubDLQ)(nil)
