// Command eventbus runs the ingest plane: the mTLS gRPC bus, the WAL, the
// telemetry store consumer, and the correlation engine, plus the plain-HTTP
// ops surface for liveness and Prometheus scrapes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/bus"
	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/internal/correlate"
	"github.com/Vardhan-225/Amoskys-sub000/internal/logging"
	"github.com/Vardhan-225/Amoskys-sub000/internal/store"
	"github.com/Vardhan-225/Amoskys-sub000/internal/wal"
)

// storePruneEvery is the telemetry store retention sweep cadence. Only the
// WAL pruner cadence is configurable.
const storePruneEvery = time.Hour

func main() {
	configPath := flag.String("config", "", "path to YAML config file (built-in defaults when empty)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("event bus exited", "err", err)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := bus.NewMetrics(reg)

	w, err := wal.Open(cfg.WAL.Path, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	trust, err := config.LoadTrustMap(cfg.Trust.MapPath)
	if err != nil {
		return err
	}
	if trust.Len() > 0 {
		logger.Infow("trust map loaded", "agents", trust.Len())
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Catch the store up with whatever the WAL admitted while this process
	// was down, then prime the correlation windows from the same records.
	backfilled, err := st.Backfill(ctx, w)
	if err != nil {
		return fmt.Errorf("backfill store: %w", err)
	}
	if backfilled > 0 {
		logger.Infow("store backfilled from wal", "records", backfilled)
	}

	engine := correlate.NewEngine(st, cfg.Correlate.Window(), correlate.NewMetrics(reg), logger)
	if err := engine.Replay(ctx, w); err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}

	state := bus.NewState(cfg, w, trust, metrics, logger)
	server, err := bus.NewServer(cfg, state, logger)
	if err != nil {
		return err
	}
	ops := bus.NewOpsServer(cfg.Server.OpsPort, reg, logger)

	storeCh, unsubStore := w.Subscribe(cfg.Correlate.FanoutBuffer)
	engineCh, unsubEngine := w.Subscribe(cfg.Correlate.FanoutBuffer)

	fatal := make(chan error, 2)
	var wg conc.WaitGroup
	wg.Go(func() { w.RunPruner(ctx, cfg.WAL.PruneInterval(), cfg.WAL.Retention()) })
	wg.Go(func() { st.RunConsumer(ctx, storeCh) })
	wg.Go(func() { st.RunPruner(ctx, cfg.Store.Retention(), storePruneEvery) })
	wg.Go(func() { engine.Run(ctx, engineCh) })
	if interval := cfg.Correlate.RescanInterval(); interval > 0 {
		wg.Go(func() { engine.RunRescan(ctx, interval) })
	}
	wg.Go(func() {
		if err := ops.Start(); err != nil {
			fatal <- fmt.Errorf("ops endpoint: %w", err)
		}
	})
	wg.Go(func() {
		if err := server.ListenAndServe(); err != nil {
			fatal <- fmt.Errorf("grpc serve: %w", err)
		}
	})

	logger.Infow("event bus started",
		"grpc_port", cfg.Server.Port,
		"ops_port", cfg.Server.OpsPort,
		"wal", cfg.WAL.Path,
		"store", cfg.Store.DSN,
		"client_auth", cfg.TLS.RequireClientAuth)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Infow("shutdown signal received")
	case runErr = <-fatal:
	}

	server.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("ops shutdown", "err", err)
	}
	stop()
	unsubStore()
	unsubEngine()
	wg.Wait()
	return runErr
}
