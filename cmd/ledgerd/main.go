// Command ledgerd runs the custodial ledger engine's background
// components: the Deferred Scheduler, the Liquidity Monitor, and the
// Invariant Auditor. The Transaction Group Builder and Blockchain
// Reconciler are library entry points other processes (an API layer, a
// chain-watcher) call directly; this binary only owns the timer-driven
// loops (spec.md §1's explicit non-goal: no HTTP surface here).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ledgercore/internal/audit"
	"ledgercore/internal/config"
	"ledgercore/internal/ledger/builder"
	"ledgercore/internal/ledger/invariant"
	"ledgercore/internal/ledger/liquidity"
	"ledgercore/internal/ledger/rate"
	"ledgercore/internal/ledger/report"
	"ledgercore/internal/ledger/scheduler"
	"ledgercore/internal/ledger/store"
	"ledgercore/pkg/bus"
	"ledgercore/pkg/logger"
	"ledgercore/pkg/utils"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		panic(err)
	}
	defer func() { _ = db.Close() }()

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		panic(err)
	}
	defer func() { _ = rdb.Close() }()

	liquidityFloors, err := cfg.LiquidityFloorDecimals()
	if err != nil {
		log.Error("invalid liquidity floors", "err", err)
		panic(err)
	}
	feesFloors, err := cfg.FeesFloorDecimals()
	if err != nil {
		log.Error("invalid fees floors", "err", err)
		panic(err)
	}

	ledgerStore := store.NewPostgres(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	events := bus.NewRedisPublisher(rdb)

	// Rates/exchange/chain collaborators are out of scope for this engine
	// (spec.md §1): production wiring injects the real price feed, signer,
	// and exchange client here. rate.MemoryRateSource is the teacher's
	// "not intended for production" reference implementation, standing in
	// until those collaborators are wired.
	rates := rate.NewMemoryRateSource()

	b := builder.New(ledgerStore, rates, nil, nil, events, auditSvc)
	reportSvc := report.NewService(ledgerStore)

	sched := scheduler.New(ledgerStore, b, auditSvc, events, cfg.Scheduler.TickInterval)

	limiter := &liquidity.RedisLimiter{Client: rdb}
	monitor := liquidity.New(ledgerStore, nil, auditSvc, events, limiter, liquidityFloors, feesFloors)

	auditor := invariant.New(ledgerStore, reportSvc, nil, auditSvc, cfg.Ledger.SuspendOnInvariantViolation)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); sched.Run(runCtx) }()
	go func() { defer wg.Done(); monitor.Run(runCtx) }()
	go func() { defer wg.Done(); auditor.Run(runCtx, cfg.Ledger.SupportedCurrencies) }()

	log.Info("ledgerd started", "env", cfg.App.Env, "currencies", cfg.Ledger.SupportedCurrencies)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("shutdown signal received", "signal", sig.String())

	cancel()
	wg.Wait()
	_ = logger.ShutdownFlush(ctx, 0)
}
