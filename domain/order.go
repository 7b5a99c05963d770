package domain

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderPending:    {},
	OrderConfirmed:  {},
	OrderProcessing: {},
	OrderShipped:    {},
	OrderDelivered:  {},
	OrderCancelled:  {},
}

// ParseOrderStatus maps a raw string to a member of the status enumeration.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(raw)
	_, ok := validOrderStatuses[s]
	return s, ok
}

// IsTerminal reports whether no further transition is permitted out of s.
// DELIVERED and CANCELLED lock the order permanently, including re-entry
// into the same state.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Order is a customer purchase tracked through the status lifecycle.
// Line items are immutable after creation; only Status, CancellationReason
// and CancelledAt change, and only through the lifecycle engine.
type Order struct {
	ID                 int64       `db:"id" json:"id"`
	CustomerID         int64       `db:"customer_id" json:"customer_id"`
	Status             OrderStatus `db:"status" json:"status"`
	TotalAmount        float64     `db:"total_amount" json:"total_amount"`
	CancellationReason *string     `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *string     `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          string      `db:"created_at" json:"created_at"`
	UpdatedAt          string      `db:"updated_at" json:"updated_at"`
	Items              []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem is one medicine line in an order. UnitPrice is snapshotted at
// order creation and never recomputed from the live medicine price.
type OrderItem struct {
	ID         int64   `db:"id" json:"id"`
	OrderID    int64   `db:"order_id" json:"order_id"`
	MedicineID int64   `db:"medicine_id" json:"medicine_id"`
	Quantity   int64   `db:"quantity" json:"quantity"`
	UnitPrice  float64 `db:"unit_price" json:"unit_price"`
	Subtotal   float64 `db:"subtotal" json:"subtotal"`
}
