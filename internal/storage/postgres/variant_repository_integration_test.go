package postgres

import (
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestVariantRepository_PostgresDecrementIncrement(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewVariantRepository(store)

	seed := domain.Variant{ID: "sku-blue-m", ProductID: "prod-1", Color: "blue", Size: "M", Quantity: 10}
	if err := repo.Upsert(seed); err != nil {
		t.Fatalf("upsert variant: %v", err)
	}

	variant, err := repo.Decrement("sku-blue-m", 3)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if variant.Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", variant.Quantity)
	}

	if _, err := repo.Decrement("sku-blue-m", 8); !domain.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	var stockErr *domain.InsufficientStockError
	_, err = repo.Decrement("sku-blue-m", 8)
	if !errors.As(err, &stockErr) || stockErr.Available != 7 {
		t.Fatalf("expected available=7 in error, got %v", err)
	}

	if _, err := repo.Decrement("missing-sku", 1); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}

	variant, err = repo.Increment("sku-blue-m", 5)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if variant.Quantity != 12 {
		t.Fatalf("expected quantity 12 after increment, got %d", variant.Quantity)
	}
}

func TestVariantRepository_PostgresDecrementLinesAllOrNothing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewVariantRepository(store)

	if err := repo.Upsert(domain.Variant{ID: "sku-a", ProductID: "prod-1", Quantity: 10}); err != nil {
		t.Fatalf("upsert sku-a: %v", err)
	}
	if err := repo.Upsert(domain.Variant{ID: "sku-b", ProductID: "prod-1", Quantity: 1}); err != nil {
		t.Fatalf("upsert sku-b: %v", err)
	}

	_, err := repo.DecrementLines([]domain.LineItem{
		{SKU: "sku-a", Qty: 5},
		{SKU: "sku-b", Qty: 2},
	})
	if !domain.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	// Нехватка по sku-b не должна была тронуть sku-a.
	variant, err := repo.Get("sku-a")
	if err != nil {
		t.Fatalf("get sku-a: %v", err)
	}
	if variant.Quantity != 10 {
		t.Fatalf("expected sku-a untouched at 10, got %d", variant.Quantity)
	}
}

func TestVariantRepository_PostgresConcurrentNoOversell(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewVariantRepository(store)

	if err := repo.Upsert(domain.Variant{ID: "sku-hot", ProductID: "prod-hot", Quantity: 50}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	const workers = 100
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Decrement("sku-hot", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 50 {
		t.Fatalf("expected exactly 50 successful decrements, got %d", succeeded)
	}

	variant, err := repo.Get("sku-hot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if variant.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", variant.Quantity)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
}
