package stock

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/sudeshabasnet/MediTrack-sub001/domain"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/database"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/migrations"
)

func setup(t *testing.T) (*sqlx.DB, *Ledger) {
	t.Helper()
	db := database.Connect(":memory:")
	t.Cleanup(func() { db.Close() })
	migrations.Run(db)
	return db, NewLedger(db)
}

func addMedicine(t *testing.T, db *sqlx.DB, name string, price float64, stock, minLevel int64) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(
		`INSERT INTO medicines (name, unit_price, stock, min_stock_level, stock_status) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		name, price, stock, minLevel, domain.StockStatusFor(stock, minLevel)).Scan(&id)
	if err != nil {
		t.Fatalf("insert medicine: %v", err)
	}
	return id
}

func TestReserveDecrementsStock(t *testing.T) {
	ctx := context.Background()
	db, ledger := setup(t)
	id := addMedicine(t, db, "Paracetamol", 10, 20, 5)

	if err := ledger.Reserve(ctx, id, 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	level, err := ledger.Level(ctx, id)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if level.CurrentStock != 17 {
		t.Fatalf("stock = %d, want 17", level.CurrentStock)
	}
	if level.Status != domain.StockAvailable {
		t.Fatalf("status = %s, want %s", level.Status, domain.StockAvailable)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	ctx := context.Background()
	db, ledger := setup(t)
	id := addMedicine(t, db, "Ibuprofen", 5, 2, 1)

	err := ledger.Reserve(ctx, id, 3)
	if err != ErrInsufficientStock {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Failed reservation must not touch the counter.
	level, _ := ledger.Level(ctx, id)
	if level.CurrentStock != 2 {
		t.Fatalf("stock mutated on failed reserve: %d", level.CurrentStock)
	}
}

func TestReserveUnknownMedicine(t *testing.T) {
	ctx := context.Background()
	_, ledger := setup(t)
	if err := ledger.Reserve(ctx, 9999, 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := ledger.Restore(ctx, 9999, 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	db, ledger := setup(t)
	id := addMedicine(t, db, "Aspirin", 4, 10, 2)
	for _, qty := range []int64{0, -1} {
		if err := ledger.Reserve(ctx, id, qty); err != ErrInvalidQuantity {
			t.Fatalf("reserve %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
		if err := ledger.Restore(ctx, id, qty); err != ErrInvalidQuantity {
			t.Fatalf("restore %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
}

func TestStatusFlipsAtThreshold(t *testing.T) {
	ctx := context.Background()
	db, ledger := setup(t)
	id := addMedicine(t, db, "Amoxicillin", 12, 11, 10)

	status, err := ledger.StatusOf(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.StockAvailable {
		t.Fatalf("status = %s, want %s", status, domain.StockAvailable)
	}

	// 11 -> 10 crosses the threshold.
	if err := ledger.Reserve(ctx, id, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	status, _ = ledger.StatusOf(ctx, id)
	if status != domain.StockLow {
		t.Fatalf("status = %s, want %s", status, domain.StockLow)
	}

	// 10 -> 0 empties the shelf.
	if err := ledger.Reserve(ctx, id, 10); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	status, _ = ledger.StatusOf(ctx, id)
	if status != domain.StockOutOfStock {
		t.Fatalf("status = %s, want %s", status, domain.StockOutOfStock)
	}
}

func TestRestoreReserveRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, ledger := setup(t)
	id := addMedicine(t, db, "Cetirizine", 3, 7, 5)

	before, err := ledger.Level(ctx, id)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if err := ledger.Restore(ctx, id, 4); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := ledger.Reserve(ctx, id, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	after, err := ledger.Level(ctx, id)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if after.CurrentStock != before.CurrentStock || after.Status != before.Status {
		t.Fatalf("round trip changed level: before %+v, after %+v", before, after)
	}
}

func TestConcurrentReserveNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	db, ledger := setup(t)
	id := addMedicine(t, db, "Insulin", 50, 5, 2)

	const callers = 12
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.Reserve(ctx, id, 1)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch err {
		case nil:
			succeeded++
		case ErrInsufficientStock:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 5 {
		t.Fatalf("succeeded = %d, want 5", succeeded)
	}

	level, err := ledger.Level(ctx, id)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if level.CurrentStock != 0 {
		t.Fatalf("stock = %d, want 0", level.CurrentStock)
	}
	if level.Status != domain.StockOutOfStock {
		t.Fatalf("status = %s, want %s", level.Status, domain.StockOutOfStock)
	}
}

func TestAlertsListsLowAndOutOfStock(t *testing.T) {
	ctx := context.Background()
	db, ledger := setup(t)
	addMedicine(t, db, "Plenty", 1, 100, 5)
	lowID := addMedicine(t, db, "Scarce", 1, 3, 5)
	outID := addMedicine(t, db, "Gone", 1, 0, 5)

	alerts, err := ledger.Alerts(ctx)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d entries, want 2", len(alerts))
	}
	seen := map[int64]domain.StockStatus{}
	for _, m := range alerts {
		seen[m.ID] = m.StockStatus
	}
	if seen[lowID] != domain.StockLow {
		t.Fatalf("low medicine status = %s", seen[lowID])
	}
	if seen[outID] != domain.StockOutOfStock {
		t.Fatalf("out medicine status = %s", seen[outID])
	}
}
