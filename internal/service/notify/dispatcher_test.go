package notify

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func TestDispatcher_DispatchEnqueues(t *testing.T) {
	t.Parallel()

	queue := memory.NewNotificationQueue()
	dispatcher := NewDispatcher(queue, nil)

	result := dispatcher.Dispatch(
		domain.NotificationChannelEmail,
		domain.TemplateOrderReceived,
		"buyer@example.com",
		map[string]any{"order_id": "order-1"},
	)
	if !result.Enqueued {
		t.Fatal("expected notification to be enqueued")
	}
	if result.NotificationID == "" {
		t.Fatal("expected non-empty notification id")
	}

	pending := queue.AllPending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending notification, got %d", len(pending))
	}
	if pending[0].Recipient != "buyer@example.com" {
		t.Fatalf("unexpected recipient: %s", pending[0].Recipient)
	}
}

// Отказ очереди не должен превращаться в ошибку для вызывающего кода.
func TestDispatcher_QueueFailureNeverPropagates(t *testing.T) {
	t.Parallel()

	dispatcher := NewDispatcher(&failingQueue{}, nil)

	result := dispatcher.Dispatch(
		domain.NotificationChannelEmail,
		domain.TemplateOrderReceived,
		"buyer@example.com",
		nil,
	)
	if result.Enqueued {
		t.Fatal("expected dispatch to report not enqueued")
	}
}

func TestDispatcher_EmptyRecipientSkipped(t *testing.T) {
	t.Parallel()

	queue := memory.NewNotificationQueue()
	dispatcher := NewDispatcher(queue, nil)

	result := dispatcher.Dispatch(domain.NotificationChannelEmail, domain.TemplateOrderReceived, "", nil)
	if result.Enqueued {
		t.Fatal("expected dispatch without recipient to be skipped")
	}
	if got := len(queue.AllPending()); got != 0 {
		t.Fatalf("expected empty queue, got %d", got)
	}
}

func TestDispatcher_DispatchBackInStockPrefersEmail(t *testing.T) {
	t.Parallel()

	queue := memory.NewNotificationQueue()
	dispatcher := NewDispatcher(queue, nil)

	dispatcher.DispatchBackInStock(domain.RestockSubscription{
		ID:        "sub-1",
		ProductID: "prod-tee",
		Email:     "buyer@example.com",
		Phone:     "+15550000001",
	})
	dispatcher.DispatchBackInStock(domain.RestockSubscription{
		ID:        "sub-2",
		ProductID: "prod-tee",
		Phone:     "+15550000002",
	})

	pending := queue.AllPending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending notifications, got %d", len(pending))
	}
	channelByRecipient := map[string]domain.NotificationChannel{}
	for _, n := range pending {
		channelByRecipient[n.Recipient] = n.Channel
	}
	if channelByRecipient["buyer@example.com"] != domain.NotificationChannelEmail {
		t.Fatalf("expected email channel for sub with email, got %s", channelByRecipient["buyer@example.com"])
	}
	if channelByRecipient["+15550000002"] != domain.NotificationChannelSMS {
		t.Fatalf("expected sms fallback for phone-only sub, got %s", channelByRecipient["+15550000002"])
	}
}

func TestRouter_UnknownChannel(t *testing.T) {
	t.Parallel()

	router := NewRouter(map[domain.NotificationChannel]domain.NotificationSender{
		domain.NotificationChannelEmail: NewMockSender(),
	})

	err := router.Send(domain.Notification{Channel: domain.NotificationChannelPush})
	if err == nil {
		t.Fatal("expected error for unregistered channel")
	}
}

func TestMockSender_FailFirst(t *testing.T) {
	t.Parallel()

	sender := NewMockSender()
	sender.SendErr = errors.New("transient")
	sender.FailFirst = 2

	n := domain.Notification{ID: "ntf-1", Channel: domain.NotificationChannelEmail}
	if err := sender.Send(n); err == nil {
		t.Fatal("expected first send to fail")
	}
	if err := sender.Send(n); err == nil {
		t.Fatal("expected second send to fail")
	}
	if err := sender.Send(n); err != nil {
		t.Fatalf("expected third send to succeed, got %v", err)
	}
	if len(sender.Sent) != 1 {
		t.Fatalf("expected 1 delivered notification, got %d", len(sender.Sent))
	}
}

type failingQueue struct{}

func (f *failingQueue) Enqueue(domain.Notification) (domain.Notification, error) {
	return domain.Notification{}, errors.New("queue unavailable")
}
func (f *failingQueue) PullPending(int) ([]domain.Notification, error) { return nil, nil }
func (f *failingQueue) Stats() (domain.NotificationStats, error)      { return domain.NotificationStats{}, nil }
func (f *failingQueue) MarkSent(string) error                         { return nil }
func (f *failingQueue) MarkFailed(string) error                       { return nil }

var _ domain.NotificationQueue = (*failingQueue)(nil)
