package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestWebhookEventRepository_PostgresRecordAndDedup(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewWebhookEventRepository(store)

	rec := domain.WebhookRecord{
		EventID:        "evt_1",
		EventType:      "checkout.completed",
		PaymentRef:     "pay_1",
		SignatureValid: true,
		Outcome:        domain.WebhookOutcomeProcessed,
	}
	if err := repo.Record(rec); err != nil {
		t.Fatalf("record event: %v", err)
	}
	if err := repo.Record(rec); !errors.Is(err, domain.ErrWebhookEventExists) {
		t.Fatalf("expected ErrWebhookEventExists, got %v", err)
	}

	stored, err := repo.Get("evt_1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if stored.Outcome != domain.WebhookOutcomeProcessed || stored.PaymentRef != "pay_1" {
		t.Fatalf("unexpected stored record: %+v", stored)
	}
	if stored.TTLAt.IsZero() {
		t.Fatal("ttl must be defaulted on record")
	}

	if _, err := repo.Get("evt_missing"); !errors.Is(err, domain.ErrWebhookEventNotFound) {
		t.Fatalf("expected ErrWebhookEventNotFound, got %v", err)
	}

	if err := repo.Record(domain.WebhookRecord{}); !errors.Is(err, domain.ErrWebhookEventIDRequired) {
		t.Fatalf("expected ErrWebhookEventIDRequired, got %v", err)
	}
}

func TestWebhookEventRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewWebhookEventRepository(store)

	now := time.Now().UTC()
	seed := []domain.WebhookRecord{
		{EventID: "evt_old_1", Outcome: domain.WebhookOutcomeProcessed, TTLAt: now.Add(-2 * time.Hour)},
		{EventID: "evt_old_2", Outcome: domain.WebhookOutcomeDuplicate, TTLAt: now.Add(-time.Minute)},
		{EventID: "evt_live", Outcome: domain.WebhookOutcomeProcessed, TTLAt: now.Add(time.Hour)},
	}
	for _, rec := range seed {
		if err := repo.Record(rec); err != nil {
			t.Fatalf("record %s: %v", rec.EventID, err)
		}
	}

	// Батч размером 1 удаляет самую старую запись первой.
	deleted, err := repo.DeleteExpired(now, 1)
	if err != nil {
		t.Fatalf("delete expired batch: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	if _, err := repo.Get("evt_old_1"); !errors.Is(err, domain.ErrWebhookEventNotFound) {
		t.Fatalf("oldest record must be deleted first, got %v", err)
	}

	deleted, err = repo.DeleteExpired(now, 0)
	if err != nil {
		t.Fatalf("delete expired rest: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 more deleted, got %d", deleted)
	}

	if _, err := repo.Get("evt_live"); err != nil {
		t.Fatalf("live record must survive cleanup: %v", err)
	}
}
