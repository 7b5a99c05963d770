package domain

// StockStatus is the availability classification derived from a medicine's
// stock counter and its minimum stock level.
type StockStatus string

const (
	StockAvailable  StockStatus = "AVAILABLE"
	StockLow        StockStatus = "LOW_STOCK"
	StockOutOfStock StockStatus = "OUT_OF_STOCK"
)

// StockStatusFor derives the stock status from the current stock and the
// configured minimum level. The persisted stock_status column is always
// recomputed from these two values and never edited independently.
func StockStatusFor(stock, minStockLevel int64) StockStatus {
	switch {
	case stock == 0:
		return StockOutOfStock
	case stock <= minStockLevel:
		return StockLow
	default:
		return StockAvailable
	}
}

type Medicine struct {
	ID            int64       `db:"id" json:"id"`
	Name          string      `db:"name" json:"name"`
	GenericName   string      `db:"generic_name" json:"generic_name"`
	Manufacturer  string      `db:"manufacturer" json:"manufacturer"`
	UnitPrice     float64     `db:"unit_price" json:"unit_price"`
	Stock         int64       `db:"stock" json:"stock"`
	MinStockLevel int64       `db:"min_stock_level" json:"min_stock_level"`
	StockStatus   StockStatus `db:"stock_status" json:"stock_status"`
	CreatedAt     string      `db:"created_at" json:"created_at"`
	UpdatedAt     string      `db:"updated_at" json:"updated_at"`
}
