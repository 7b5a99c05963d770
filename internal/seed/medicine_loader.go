package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/sudeshabasnet/MediTrack-sub001/domain"
)

// LoadMedicines ingests the CSV catalog into the medicines table, ignoring
// duplicates. Expected columns: name, generic_name, manufacturer,
// unit_price, stock, min_stock_level.
func LoadMedicines(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load medicine catalog %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read medicine header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start medicine transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO medicines (name, generic_name, manufacturer, unit_price, stock, min_stock_level, stock_status) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("unable to prepare medicine insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read medicine row: %v", err)
			continue
		}
		if len(record) < 6 {
			continue
		}
		name := strings.TrimSpace(record[0])
		generic := strings.TrimSpace(record[1])
		manufacturer := strings.TrimSpace(record[2])
		if name == "" {
			continue
		}
		unitPrice, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
		if err != nil || unitPrice < 0 {
			continue
		}
		stock, err := strconv.ParseInt(strings.TrimSpace(record[4]), 10, 64)
		if err != nil || stock < 0 {
			continue
		}
		minLevel, err := strconv.ParseInt(strings.TrimSpace(record[5]), 10, 64)
		if err != nil || minLevel < 0 {
			continue
		}

		status := domain.StockStatusFor(stock, minLevel)
		if _, err := stmt.Exec(name, generic, manufacturer, unitPrice, stock, minLevel, status); err != nil {
			log.Printf("unable to insert medicine %s: %v", name, err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit medicine seed: %v", err)
	} else {
		log.Printf("seeded medicine catalog with %d rows", rows)
	}
}
