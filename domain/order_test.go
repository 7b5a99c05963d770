package domain

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, valid := range []string{"PENDING", "CONFIRMED", "PROCESSING", "SHIPPED", "DELIVERED", "CANCELLED"} {
		if _, ok := ParseOrderStatus(valid); !ok {
			t.Fatalf("expected %q to parse", valid)
		}
	}
	for _, invalid := range []string{"", "pending", "REFUNDED", "Delivered", "UNKNOWN"} {
		if _, ok := ParseOrderStatus(invalid); ok {
			t.Fatalf("expected %q to be rejected", invalid)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderPending:    false,
		OrderConfirmed:  false,
		OrderProcessing: false,
		OrderShipped:    false,
		OrderDelivered:  true,
		OrderCancelled:  true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}
