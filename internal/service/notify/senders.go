package notify

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Router выбирает sender по каналу уведомления.
type Router struct {
	senders map[domain.NotificationChannel]domain.NotificationSender
}

// NewRouter создаёт router с переданными sender'ами по каналам.
func NewRouter(senders map[domain.NotificationChannel]domain.NotificationSender) *Router {
	if senders == nil {
		senders = map[domain.NotificationChannel]domain.NotificationSender{}
	}
	return &Router{senders: senders}
}

// Send маршрутизирует уведомление в sender его канала.
func (r *Router) Send(n domain.Notification) error {
	sender, ok := r.senders[n.Channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %q", n.Channel)
	}
	return sender.Send(n)
}

var _ domain.NotificationSender = (*Router)(nil)

// LogSender пишет уведомление в лог вместо внешнего провайдера. Продовый
// SMTP/SMS-шлюз подставляется той же ролью NotificationSender.
type LogSender struct {
	channel domain.NotificationChannel
	logger  *log.Entry
}

// NewLogSender создаёт sender, логирующий доставку для канала.
func NewLogSender(channel domain.NotificationChannel, logger *log.Entry) *LogSender {
	if logger == nil {
		logger = log.WithField("component", "notify-sender")
	}
	return &LogSender{channel: channel, logger: logger}
}

// Send логирует уведомление и всегда возвращает nil.
func (s *LogSender) Send(n domain.Notification) error {
	s.logger.WithFields(log.Fields{
		"channel":   s.channel,
		"template":  n.Template,
		"recipient": n.Recipient,
	}).Info("notification delivered")
	return nil
}

var _ domain.NotificationSender = (*LogSender)(nil)

// MockSender — конфигурируемая заглушка NotificationSender для тестов.
type MockSender struct {
	SendErr error
	// FailFirst задаёт число первых вызовов, завершающихся SendErr;
	// последующие проходят успешно.
	FailFirst int

	SendCalls int
	Sent      []domain.Notification
}

// NewMockSender возвращает mock с успешным сценарием по умолчанию.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send возвращает настроенный результат и запоминает уведомления.
func (m *MockSender) Send(n domain.Notification) error {
	m.SendCalls++
	if m.SendErr != nil && (m.FailFirst == 0 || m.SendCalls <= m.FailFirst) {
		return m.SendErr
	}
	m.Sent = append(m.Sent, n)
	return nil
}

var _ domain.NotificationSender = (*MockSender)(nil)
