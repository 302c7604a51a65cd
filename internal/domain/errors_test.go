package domain_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestInsufficientStockError(t *testing.T) {
	base := &domain.InsufficientStockError{SKU: "sku-7", Requested: 5, Available: 3}
	wrapped := fmt.Errorf("decrement: %w", base)

	if !domain.IsInsufficientStock(wrapped) {
		t.Fatal("expected wrapped error to be recognized")
	}

	var target *domain.InsufficientStockError
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to extract the typed error")
	}
	if target.Available != 3 {
		t.Fatalf("expected available=3, got %d", target.Available)
	}
	if !strings.Contains(base.Error(), "available 3") {
		t.Fatalf("expected message to carry the current stock, got %q", base.Error())
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := domain.NextStatus(domain.OrderStatusPending, domain.OrderStatusShipped)
	if !domain.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	var target *domain.InvalidTransitionError
	if !errors.As(err, &target) {
		t.Fatal("expected errors.As to extract the typed error")
	}
	if target.From != domain.OrderStatusPending || target.To != domain.OrderStatusShipped {
		t.Fatalf("unexpected transition in error: %+v", target)
	}
}

func TestStorageUnavailableError(t *testing.T) {
	root := errors.New("connection refused")
	err := &domain.StorageUnavailableError{Op: "insert order", Err: root}

	if !domain.IsStorageUnavailable(fmt.Errorf("create: %w", err)) {
		t.Fatal("expected wrapped error to be recognized")
	}
	if !errors.Is(err, root) {
		t.Fatal("expected Unwrap to expose the root cause")
	}
}

func TestIsVersionConflict(t *testing.T) {
	if !domain.IsVersionConflict(fmt.Errorf("save: %w", domain.ErrOrderVersionConflict)) {
		t.Fatal("expected wrapped version conflict to be recognized")
	}
	if domain.IsVersionConflict(domain.ErrOrderNotFound) {
		t.Fatal("not found must not be a version conflict")
	}
}
