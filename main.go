package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/sudeshabasnet/MediTrack-sub001/internal/api"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/config"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/database"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/migrations"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/notify"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/obs"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/order"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/seed"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/stock"
)

func main() {
	_ = godotenv.Load()
	obs.InitLogger()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.LoadMedicines(db, cfg.MedicineCSV)

	queue := notify.NewQueue(notify.LogDispatcher{}, cfg.NotifyBuffer)
	queue.Start(context.Background())
	defer queue.Close()

	ledger := stock.NewLedger(db)
	orders := order.NewService(db, ledger, queue)
	handler := api.New(db, cfg.Secret, orders, ledger)

	log.Printf("MediTrack inventory server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
