package payment

import (
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локальной разработки без реального провайдера.
type MockGateway struct {
	RedirectURL string
	CreateErr   error

	CreateCalls int
	Sessions    []domain.CheckoutSession
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateCheckoutSession возвращает настроенный результат и запоминает сессии.
func (m *MockGateway) CreateCheckoutSession(session domain.CheckoutSession) (string, error) {
	m.CreateCalls++
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.Sessions = append(m.Sessions, session)
	if m.RedirectURL != "" {
		return m.RedirectURL, nil
	}
	return fmt.Sprintf("https://pay.example.com/session/%s", session.ID), nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
