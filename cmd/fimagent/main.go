// Command fimagent watches the configured filesystem roots for integrity
// changes against a persisted baseline. --baseline-only records the current
// state without shipping anything; --scan-once runs a single diff cycle.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vardhan-225/Amoskys-sub000/internal/agent"
	"github.com/Vardhan-225/Amoskys-sub000/internal/agent/collectors"
	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/internal/logging"
	"github.com/Vardhan-225/Amoskys-sub000/internal/queue"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

const drainTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file (built-in defaults when empty)")
	interval := flag.Duration("interval", 0, "scan interval override")
	scanOnce := flag.Bool("scan-once", false, "run one diff cycle, drain the queue, and exit")
	baselineOnly := flag.Bool("baseline-only", false, "record the baseline and exit without shipping")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "fimagent"
	}
	if *interval > 0 {
		cfg.FIM.IntervalSeconds = int(interval.Seconds())
	}
	// The runtime ticks the collector; FIM scans follow the FIM cadence, not
	// the generic agent one.
	cfg.Agent.IntervalSeconds = cfg.FIM.IntervalSeconds

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fim := collectors.NewFIMCollector(cfg.FIM, logger)

	if *baselineOnly {
		if err := fim.Baseline(ctx); err != nil {
			logger.Fatalw("baseline scan failed", "err", err)
		}
		logger.Infow("baseline recorded",
			"path", cfg.FIM.BaselinePath, "roots", cfg.FIM.Roots)
		return
	}

	client, err := agent.Dial(cfg.Agent.BusAddress, cfg.TLS)
	if err != nil {
		logger.Fatalw("dial bus", "addr", cfg.Agent.BusAddress, "err", err)
	}
	defer client.Close()

	q, err := queue.Open(filepath.Join(cfg.Queue.Dir, cfg.Agent.Name+".db"),
		cfg.Queue.MaxBytes, cfg.Queue.MaxRetries, logger)
	if err != nil {
		logger.Fatalw("open queue", "err", err)
	}
	defer q.Close()

	metrics := agent.NewMetrics(prometheus.NewRegistry())
	shipper := agent.NewShipper(q, client.PublishUniversal, cfg.Agent.RatePerSec, metrics, logger)

	rt, err := agent.NewRuntime(cfg.Agent, pb.DeviceTelemetry_ENDPOINT, shipper,
		[]agent.Collector{fim}, metrics, logger)
	if err != nil {
		logger.Fatalw("build runtime", "err", err)
	}

	logger.Infow("fimagent started",
		"bus", cfg.Agent.BusAddress,
		"roots", cfg.FIM.Roots,
		"baseline", cfg.FIM.BaselinePath,
		"interval", cfg.FIM.Interval())

	if *scanOnce {
		if err := rt.RunOnce(ctx); err != nil {
			logger.Fatalw("diff cycle failed", "err", err)
		}
		if err := shipper.DrainParked(ctx, drainTimeout); err != nil {
			logger.Fatalw("queue drain failed", "err", err)
		}
		return
	}

	if err := rt.Run(ctx); err != nil {
		logger.Fatalw("fimagent stopped", "err", err)
	}
	logger.Infow("fimagent stopped")
}
