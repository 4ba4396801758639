// Command econsim runs the calendar-driven market simulation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/talgya/mini-economy/internal/agents"
	"github.com/talgya/mini-economy/internal/api"
	"github.com/talgya/mini-economy/internal/banking"
	"github.com/talgya/mini-economy/internal/cache"
	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/config"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/engine"
	"github.com/talgya/mini-economy/internal/metrics"
	"github.com/talgya/mini-economy/internal/persistence"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Metrics ───────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ── Simulation ────────────────────────────────────────────────────
	currency := economy.Currency(cfg.Currency)
	bank := banking.NewBank(logger)
	sim := engine.NewSimulation(engine.Options{
		Start:      clock.Instant{Year: cfg.StartYear, Month: time.January, Day: 1, Hour: 0},
		Seed:       cfg.Seed,
		Settlement: bank,
		Logger:     logger,
		Metrics:    m,
	})
	runID := sim.RunID.String()

	pop := agents.NewPopulation(sim, bank, logger)
	if err := pop.Spawn(agents.SpawnConfig{
		Firms:         cfg.Firms,
		Households:    cfg.Households,
		Dealers:       cfg.Dealers,
		Currency:      currency,
		StartingMoney: cfg.StartingMoney,
	}); err != nil {
		slog.Error("failed to spawn population", "error", err)
		os.Exit(1)
	}
	slog.Info("economy ready",
		"run_id", runID,
		"seed", cfg.Seed,
		"start", sim.Now().String(),
		"agents", pop.Living(),
		"subscriptions", sim.Calendar.Len(),
	)

	// ── Trade journal ─────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	sim.OnFill(func(r engine.FillRecord) { db.RecordFill(runID, r) })
	if err := db.SaveMeta(runID, "seed", fmt.Sprint(cfg.Seed)); err != nil {
		slog.Error("failed to save run metadata", "error", err)
	}

	// ── Quote cache ───────────────────────────────────────────────────
	var publisher cache.Publisher = cache.Nop{}
	if cfg.RedisURL != "" {
		rp, err := cache.NewRedisPublisher(cfg.RedisURL, cfg.RedisPassword, cfg.QuoteTTL(), logger)
		if err != nil {
			slog.Warn("redis unavailable, quote cache disabled", "error", err)
		} else {
			publisher = rp
		}
	}
	defer publisher.Close()

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(sim)
	eng.SetSpeed(cfg.Speed)
	eng.SetInterval(cfg.Interval())

	eng.OnDay = func(now clock.Instant) {
		sim.LogDailyReport(now)
		if err := db.JournalDay(sim); err != nil {
			slog.Error("daily journal failed", "error", err)
		}
		pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
		defer pcancel()
		if err := publisher.Publish(pctx, sim.Quotes()); err != nil {
			slog.Warn("quote publish failed", "error", err)
		}
	}
	eng.OnYear = sim.LogYearlySnapshot

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("ECONSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Eng:      eng,
		Pop:      pop,
		Bank:     bank,
		DB:       db,
		Gatherer: reg,
		Currency: currency,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
		Logger:   logger,
	}
	if err := apiServer.Start(); err != nil {
		slog.Error("failed to start API", "error", err)
		os.Exit(1)
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nEconomy is open: %d agents trading in %s.\n", pop.Living(), currency)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx, cfg.RunHours)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("API shutdown failed", "error", err)
	}
	if err := db.SaveMeta(runID, "last_instant", sim.Now().String()); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Printf("Simulation stopped at %s. Journal saved to %s.\n", sim.Now(), cfg.DBPath)
}
