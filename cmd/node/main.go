package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pairbook/pairbook/params"
	"github.com/pairbook/pairbook/pkg/api"
	"github.com/pairbook/pairbook/pkg/assets"
	"github.com/pairbook/pairbook/pkg/delegation"
	"github.com/pairbook/pairbook/pkg/events"
	"github.com/pairbook/pairbook/pkg/storage"
	"github.com/pairbook/pairbook/pkg/util"
	"github.com/pairbook/pairbook/pkg/venue"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Durable storage (base venue only) ----
	store, err := storage.NewStore(filepath.Join(cfg.Node.DataDir, "ledgers.db"))
	if err != nil {
		sugar.Fatalw("storage_init_failed", "err", err)
	}
	defer store.Close()

	// ---- Event publishing (optional) ----
	var pub events.Publisher = events.Nop{}
	if len(cfg.Events.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Events.KafkaBrokers)
		sugar.Infow("kafka_publisher_enabled", "brokers", cfg.Events.KafkaBrokers)
	}
	defer pub.Close()

	clock := util.RealClock{}

	// ---- Venues ----
	baseBank := assets.NewMemoryBank()
	ephBank := assets.NewMemoryBank()

	base := venue.New(venue.Base, baseBank, clock, sugar)
	base.SetStore(store)
	base.SetPublisher(pub)
	eph := venue.New(venue.Ephemeral, ephBank, clock, sugar)

	// Reload persisted ledgers into the base venue.
	ledgers, err := store.LoadAllLedgers()
	if err != nil {
		sugar.Fatalw("ledger_reload_failed", "err", err)
	}
	for _, l := range ledgers {
		base.Install(l)
	}
	sugar.Infow("ledgers_loaded", "count", len(ledgers))

	// ---- Delegation lifecycle ----
	mgr := delegation.NewManager(base, eph, baseBank, ephBank, clock, sugar)
	mgr.SetStore(store)
	mgr.SetPublisher(pub)

	records, err := store.LoadAllRecords()
	if err != nil {
		sugar.Fatalw("record_reload_failed", "err", err)
	}
	for _, r := range records {
		mgr.Restore(r)
	}
	sugar.Infow("delegation_records_loaded", "count", len(records))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	arbiter := delegation.NewArbiter(mgr, sugar)
	go arbiter.Run(ctx)

	// ---- API ----
	server := api.NewServer(base, eph, mgr, sugar)
	go func() {
		if err := server.Start(ctx, cfg.Node.Listen); err != nil {
			sugar.Fatalw("api_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
}
