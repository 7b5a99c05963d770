package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECRET", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("NOTIFY_BUFFER", "")
	t.Setenv("MEDICINE_CSV", "")

	cfg := Load()
	if cfg.Secret != "dev_secret" {
		t.Fatalf("secret = %q", cfg.Secret)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("port = %q", cfg.HTTPPort)
	}
	if cfg.DatabaseDSN != "meditrack.db" {
		t.Fatalf("dsn = %q", cfg.DatabaseDSN)
	}
	if cfg.NotifyBuffer != 64 {
		t.Fatalf("buffer = %d", cfg.NotifyBuffer)
	}
	if cfg.MedicineCSV != "assets/medicine.csv" {
		t.Fatalf("csv = %q", cfg.MedicineCSV)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SECRET", "s3cret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_DSN", ":memory:")
	t.Setenv("NOTIFY_BUFFER", "128")

	cfg := Load()
	if cfg.Secret != "s3cret" || cfg.HTTPPort != "9090" || cfg.DatabaseDSN != ":memory:" || cfg.NotifyBuffer != 128 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")
	t.Setenv("NOTIFY_BUFFER", "-3")

	cfg := Load()
	if cfg.HTTPPort != "8080" {
		t.Fatalf("port = %q, want fallback 8080", cfg.HTTPPort)
	}
	if cfg.NotifyBuffer != 64 {
		t.Fatalf("buffer = %d, want fallback 64", cfg.NotifyBuffer)
	}
}
