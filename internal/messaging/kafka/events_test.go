package kafka

import (
	"encoding/json"
	"testing"
)

func TestNewLowStockEvent(t *testing.T) {
	event := NewLowStockEvent("prod-1", "sku-1", 3, "warning")
	if event.EventType != EventTypeLowStock {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["event_type"] != "inventory.low_stock" {
		t.Fatalf("unexpected wire event type: %v", decoded["event_type"])
	}
	if decoded["stock"].(float64) != 3 {
		t.Fatalf("unexpected stock: %v", decoded["stock"])
	}
}

func TestNewOrderEvent(t *testing.T) {
	event := NewOrderEvent(EventTypeOrderCreated, "order-1", "customer-1", "pending", map[string]interface{}{
		"payment_ref": "pi_1",
	})
	if event.OrderID != "order-1" || event.Status != "pending" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Metadata["payment_ref"] != "pi_1" {
		t.Fatal("expected metadata to be preserved")
	}
}

func TestNewRestockEvent(t *testing.T) {
	event := NewRestockEvent("sub-1", "prod-1", "")
	if event.EventType != EventTypeRestockNotified {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Пустой variant_id не должен попадать в wire-формат.
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["variant_id"]; ok {
		t.Fatal("expected empty variant_id to be omitted")
	}
}
