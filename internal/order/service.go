package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sudeshabasnet/MediTrack-sub001/domain"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/notify"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/obs"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/stock"
)

var (
	// ErrNotFound is returned when the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrOrderLocked is returned when the order is in a terminal state and
	// no further transition is permitted.
	ErrOrderLocked = errors.New("order is in a terminal state")
	// ErrInvalidStatus is returned when the requested status is not a
	// member of the status enumeration.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrForbidden is returned when the actor's role may not drive
	// transitions.
	ErrForbidden = errors.New("actor role may not change order status")
	// ErrInvalidInput is returned for malformed order contents.
	ErrInvalidInput = errors.New("invalid input")
)

// Actor is the already-resolved identity invoking a transition.
type Actor struct {
	UserID int64
	Role   string
}

// LineInput is one requested order line at checkout.
type LineInput struct {
	MedicineID int64
	Quantity   int64
}

// TransitionReceipt reports the outcome of an accepted transition.
type TransitionReceipt struct {
	Status        domain.OrderStatus `json:"status"`
	StockRestored bool               `json:"stock_restored"`
}

// Notifier accepts a notification for asynchronous delivery.
type Notifier interface {
	Enqueue(n notify.Notification) bool
}

// Service is the order aggregate plus its lifecycle engine. All status
// mutations go through Transition; line items are immutable after Create.
type Service struct {
	db       *sqlx.DB
	ledger   *stock.Ledger
	notifier Notifier
	locks    *orderLocks
}

// NewService constructs the order service.
func NewService(db *sqlx.DB, ledger *stock.Ledger, notifier Notifier) *Service {
	return &Service{db: db, ledger: ledger, notifier: notifier, locks: newOrderLocks()}
}

// Create checks out a cart: it snapshots unit prices, reserves stock for
// every line and persists the order with status PENDING, all inside one
// transaction. Any line failing reservation aborts the whole order.
func (s *Service) Create(ctx context.Context, customerID int64, items []LineInput) (*domain.Order, error) {
	if customerID <= 0 || len(items) == 0 {
		return nil, ErrInvalidInput
	}
	for _, item := range items {
		if item.MedicineID <= 0 || item.Quantity <= 0 {
			return nil, ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin checkout: %w", err)
	}
	defer tx.Rollback()

	lines := make([]domain.OrderItem, 0, len(items))
	var total float64
	for _, item := range items {
		var unitPrice float64
		err := tx.GetContext(ctx, &unitPrice,
			`SELECT unit_price FROM medicines WHERE id = ?`, item.MedicineID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load medicine price: %w", err)
		}
		if err := s.ledger.ReserveTx(ctx, tx, item.MedicineID, item.Quantity); err != nil {
			return nil, err
		}
		subtotal := float64(item.Quantity) * unitPrice
		total += subtotal
		lines = append(lines, domain.OrderItem{
			MedicineID: item.MedicineID,
			Quantity:   item.Quantity,
			UnitPrice:  unitPrice,
			Subtotal:   subtotal,
		})
	}

	var orderID int64
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO orders (customer_id, status, total_amount) VALUES (?, ?, ?) RETURNING id`,
		customerID, domain.OrderPending, total).Scan(&orderID)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	for i := range lines {
		lines[i].OrderID = orderID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, medicine_id, quantity, unit_price, subtotal) VALUES (?, ?, ?, ?, ?)`,
			orderID, lines[i].MedicineID, lines[i].Quantity, lines[i].UnitPrice, lines[i].Subtotal); err != nil {
			return nil, fmt.Errorf("save order items: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("finalize checkout: %w", err)
	}
	return s.Get(ctx, orderID)
}

// Get loads an order with its line items.
func (s *Service) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	var o domain.Order
	err := s.db.GetContext(ctx, &o,
		`SELECT id, customer_id, status, total_amount, cancellation_reason, cancelled_at, created_at, updated_at
         FROM orders WHERE id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if err := s.db.SelectContext(ctx, &o.Items,
		`SELECT id, order_id, medicine_id, quantity, unit_price, subtotal FROM order_items WHERE order_id = ? ORDER BY id`,
		orderID); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return &o, nil
}

// CurrentStatus returns the order's status.
func (s *Service) CurrentStatus(ctx context.Context, orderID int64) (domain.OrderStatus, error) {
	var status domain.OrderStatus
	err := s.db.GetContext(ctx, &status, `SELECT status FROM orders WHERE id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load order status: %w", err)
	}
	return status, nil
}

// List returns all orders, newest first, without line items.
func (s *Service) List(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.db.SelectContext(ctx, &orders,
		`SELECT id, customer_id, status, total_amount, cancellation_reason, cancelled_at, created_at, updated_at
         FROM orders ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Transition validates and applies a status change. Calls for the same
// order are serialized on a per-order lock; the terminal check runs under
// that lock and is re-asserted by the guarded UPDATE, so a cancel can never
// restore stock twice. On any error no state is mutated.
func (s *Service) Transition(ctx context.Context, orderID int64, requested string, actor Actor, reason string) (TransitionReceipt, error) {
	target, ok := domain.ParseOrderStatus(requested)
	if !ok {
		return TransitionReceipt{}, fmt.Errorf("%w: %q", ErrInvalidStatus, requested)
	}
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSupplier {
		return TransitionReceipt{}, ErrForbidden
	}

	entry := s.locks.acquire(orderID)
	defer s.locks.release(orderID, entry)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return TransitionReceipt{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	var current struct {
		CustomerID int64              `db:"customer_id"`
		Status     domain.OrderStatus `db:"status"`
	}
	err = tx.GetContext(ctx, &current, `SELECT customer_id, status FROM orders WHERE id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return TransitionReceipt{}, ErrNotFound
	}
	if err != nil {
		return TransitionReceipt{}, fmt.Errorf("load order: %w", err)
	}
	if current.Status.IsTerminal() {
		return TransitionReceipt{}, fmt.Errorf("%w: cannot change status of a %s order", ErrOrderLocked, current.Status)
	}

	// Any non-terminal status may move to any other, including backwards.
	// Only the terminal lock is strictly enforced.
	restored := false
	if target == domain.OrderCancelled {
		if err := s.cancelTx(ctx, tx, orderID, reason); err != nil {
			return TransitionReceipt{}, err
		}
		restored = true
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP
             WHERE id = ? AND status NOT IN (?, ?)`,
			target, orderID, domain.OrderDelivered, domain.OrderCancelled)
		if err != nil {
			return TransitionReceipt{}, fmt.Errorf("update order status: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return TransitionReceipt{}, fmt.Errorf("update order status: %w", err)
		} else if affected == 0 {
			return TransitionReceipt{}, fmt.Errorf("%w: cannot change status of a terminal order", ErrOrderLocked)
		}
	}

	recipient := s.recipientTx(ctx, tx, current.CustomerID)

	if err := tx.Commit(); err != nil {
		return TransitionReceipt{}, fmt.Errorf("commit transition: %w", err)
	}

	// Fire-and-forget, after the authoritative state is committed. A full
	// queue or dispatch failure never rolls back the transition.
	if s.notifier != nil {
		if !s.notifier.Enqueue(notify.New(orderID, target, recipient)) {
			obs.Logger.Warn("order notification not enqueued", "order_id", orderID, "status", string(target))
		}
	}

	return TransitionReceipt{Status: target, StockRestored: restored}, nil
}

// cancelTx restores every line's quantity exactly once and flips the order
// to CANCELLED, all in the caller's transaction.
func (s *Service) cancelTx(ctx context.Context, tx *sqlx.Tx, orderID int64, reason string) error {
	var items []domain.OrderItem
	if err := tx.SelectContext(ctx, &items,
		`SELECT id, order_id, medicine_id, quantity, unit_price, subtotal FROM order_items WHERE order_id = ? ORDER BY id`,
		orderID); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	for _, item := range items {
		if err := s.ledger.RestoreTx(ctx, tx, item.MedicineID, item.Quantity); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, cancellation_reason = ?, cancelled_at = ?, updated_at = CURRENT_TIMESTAMP
         WHERE id = ? AND status NOT IN (?, ?)`,
		domain.OrderCancelled, nullIfEmpty(reason), now, orderID, domain.OrderDelivered, domain.OrderCancelled)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: cannot change status of a terminal order", ErrOrderLocked)
	}
	return nil
}

// recipientTx resolves the customer contact for notifications. Best effort:
// a missing user yields an empty recipient, never an error.
func (s *Service) recipientTx(ctx context.Context, tx *sqlx.Tx, customerID int64) string {
	var email string
	if err := tx.GetContext(ctx, &email, `SELECT email FROM users WHERE id = ?`, customerID); err != nil {
		return ""
	}
	return email
}

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
