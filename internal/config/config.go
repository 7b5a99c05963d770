package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds application configuration values.
type Config struct {
	Secret       string
	DatabaseDSN  string
	HTTPPort     string
	NotifyBuffer int
	MedicineCSV  string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "meditrack.db"
	}

	buffer := 64
	if raw := os.Getenv("NOTIFY_BUFFER"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			log.Printf("invalid NOTIFY_BUFFER value %q, defaulting to %d", raw, buffer)
		} else {
			buffer = parsed
		}
	}

	csvPath := os.Getenv("MEDICINE_CSV")
	if csvPath == "" {
		csvPath = "assets/medicine.csv"
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	return Config{
		Secret:       secret,
		DatabaseDSN:  dsn,
		HTTPPort:     port,
		NotifyBuffer: buffer,
		MedicineCSV:  csvPath,
	}
}
