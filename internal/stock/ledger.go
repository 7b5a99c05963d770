package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sudeshabasnet/MediTrack-sub001/domain"
)

var (
	// ErrInsufficientStock is returned when a reservation asks for more
	// units than the medicine currently has.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotFound is returned when the medicine does not exist.
	ErrNotFound = errors.New("medicine not found")
	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Ledger owns the per-medicine stock counter and its derived status.
// Check-and-decrement happens in a single conditional UPDATE, so the stock
// counter can never go negative under concurrent reserve/restore calls.
type Ledger struct {
	db *sqlx.DB
}

// NewLedger constructs a Ledger on top of the medicines table.
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// Level is the read contract for dashboards: the raw counter plus the
// status derived from it.
type Level struct {
	MedicineID   int64              `json:"medicine_id"`
	CurrentStock int64              `json:"current_stock"`
	Status       domain.StockStatus `json:"status"`
}

// Reserve decrements the medicine's stock by qty in its own transaction.
func (l *Ledger) Reserve(ctx context.Context, medicineID, qty int64) error {
	return l.inTx(ctx, func(tx *sqlx.Tx) error {
		return l.ReserveTx(ctx, tx, medicineID, qty)
	})
}

// Restore increments the medicine's stock by qty in its own transaction.
// No upper bound is modeled; invoking it at most once per cancelled order
// is the caller's responsibility.
func (l *Ledger) Restore(ctx context.Context, medicineID, qty int64) error {
	return l.inTx(ctx, func(tx *sqlx.Tx) error {
		return l.RestoreTx(ctx, tx, medicineID, qty)
	})
}

// ReserveTx is Reserve running inside a caller-owned transaction, used by
// the checkout pipeline so that a multi-line order reserves all-or-nothing.
func (l *Ledger) ReserveTx(ctx context.Context, tx *sqlx.Tx, medicineID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE medicines SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND stock >= ?`,
		qty, medicineID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if affected == 0 {
		if exists, err := l.existsTx(ctx, tx, medicineID); err != nil {
			return err
		} else if !exists {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}
	return l.refreshStatusTx(ctx, tx, medicineID)
}

// RestoreTx is Restore running inside a caller-owned transaction, used by
// the lifecycle engine so restoration commits atomically with the
// CANCELLED status flip.
func (l *Ledger) RestoreTx(ctx context.Context, tx *sqlx.Tx, medicineID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE medicines SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		qty, medicineID)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return l.refreshStatusTx(ctx, tx, medicineID)
}

// StatusOf derives the medicine's stock status. Pure read, no side effects.
func (l *Ledger) StatusOf(ctx context.Context, medicineID int64) (domain.StockStatus, error) {
	level, err := l.Level(ctx, medicineID)
	if err != nil {
		return "", err
	}
	return level.Status, nil
}

// Level returns the current stock counter together with the derived status.
func (l *Ledger) Level(ctx context.Context, medicineID int64) (Level, error) {
	var row struct {
		Stock         int64 `db:"stock"`
		MinStockLevel int64 `db:"min_stock_level"`
	}
	err := l.db.GetContext(ctx, &row,
		`SELECT stock, min_stock_level FROM medicines WHERE id = ?`, medicineID)
	if errors.Is(err, sql.ErrNoRows) {
		return Level{}, ErrNotFound
	}
	if err != nil {
		return Level{}, fmt.Errorf("load stock level: %w", err)
	}
	return Level{
		MedicineID:   medicineID,
		CurrentStock: row.Stock,
		Status:       domain.StockStatusFor(row.Stock, row.MinStockLevel),
	}, nil
}

// Alerts lists medicines whose derived status is LOW_STOCK or OUT_OF_STOCK.
func (l *Ledger) Alerts(ctx context.Context) ([]domain.Medicine, error) {
	var medicines []domain.Medicine
	err := l.db.SelectContext(ctx, &medicines,
		`SELECT id, name, generic_name, manufacturer, unit_price, stock, min_stock_level, stock_status, created_at, updated_at
         FROM medicines WHERE stock <= min_stock_level ORDER BY stock ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list stock alerts: %w", err)
	}
	return medicines, nil
}

func (l *Ledger) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stock transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stock transaction: %w", err)
	}
	return nil
}

func (l *Ledger) existsTx(ctx context.Context, tx *sqlx.Tx, medicineID int64) (bool, error) {
	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM medicines WHERE id = ?`, medicineID); err != nil {
		return false, fmt.Errorf("check medicine: %w", err)
	}
	return count > 0, nil
}

// refreshStatusTx recomputes and persists the derived status after a
// successful counter mutation.
func (l *Ledger) refreshStatusTx(ctx context.Context, tx *sqlx.Tx, medicineID int64) error {
	var row struct {
		Stock         int64 `db:"stock"`
		MinStockLevel int64 `db:"min_stock_level"`
	}
	if err := tx.GetContext(ctx, &row,
		`SELECT stock, min_stock_level FROM medicines WHERE id = ?`, medicineID); err != nil {
		return fmt.Errorf("reload stock: %w", err)
	}
	status := domain.StockStatusFor(row.Stock, row.MinStockLevel)
	if _, err := tx.ExecContext(ctx,
		`UPDATE medicines SET stock_status = ? WHERE id = ?`, status, medicineID); err != nil {
		return fmt.Errorf("persist stock status: %w", err)
	}
	return nil
}
