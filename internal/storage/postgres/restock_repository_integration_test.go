package postgres

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestRestockRepository_PostgresCreateAndConflict(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewRestockRepository(store)

	sub, err := repo.CreateActive(domain.RestockSubscription{
		ProductID: "prod-1",
		VariantID: "sku-blue-m",
		Email:     "shopper@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("subscription id must be assigned")
	}

	_, err = repo.CreateActive(domain.RestockSubscription{
		ProductID: "prod-1",
		VariantID: "sku-blue-m",
		Email:     "shopper@example.com",
	})
	if !errors.Is(err, domain.ErrSubscriptionExists) {
		t.Fatalf("expected ErrSubscriptionExists, got %v", err)
	}

	// Вариантная и продуктовая подписки того же клиента не конфликтуют.
	if _, err := repo.CreateActive(domain.RestockSubscription{
		ProductID: "prod-1",
		Email:     "shopper@example.com",
	}); err != nil {
		t.Fatalf("product-wide subscription must coexist: %v", err)
	}
}

func TestRestockRepository_PostgresMarkNotifiedOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewRestockRepository(store)

	sub, err := repo.CreateActive(domain.RestockSubscription{
		ProductID: "prod-2",
		Email:     "one@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	const sweepers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	now := time.Now().UTC()
	for i := 0; i < sweepers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.MarkNotified(sub.ID, now)
			if err != nil {
				t.Errorf("mark notified: %v", err)
				return
			}
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}

	stored, err := repo.Get(sub.ID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if !stored.Notified || stored.NotifiedAt == nil {
		t.Fatalf("subscription must be notified with timestamp: %+v", stored)
	}

	active, err := repo.ListActive(10)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("notified subscription must leave the active set, got %d", len(active))
	}

	// После уведомления constraint отпускает ключ: повторная подписка проходит.
	if _, err := repo.CreateActive(domain.RestockSubscription{
		ProductID: "prod-2",
		Email:     "one@example.com",
	}); err != nil {
		t.Fatalf("re-subscribe after notify: %v", err)
	}

	if _, err := repo.MarkNotified("missing-sub", now); !errors.Is(err, domain.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}
