// Command flowagent ships network flows from a JSON-lines flow export and
// runs the network detections over them: C2 heuristics, beaconing, and
// exfiltration volume. The --legacy flag keeps old deployments on the
// per-flow Publish service.
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
	interval := flag.Duration("interval", 0, "collection interval override")
	scanOnce := flag.Bool("scan-once", false, "run one collection cycle, drain the queue, and exit")
	flowLog := flag.String("flow-log", "/var/log/amoskys/flows.jsonl", "JSON-lines flow export to tail")
	legacy := flag.Bool("legacy", false, "publish through the legacy per-flow service")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "flowagent"
	}
	if *interval > 0 {
		cfg.Agent.IntervalSeconds = int(interval.Seconds())
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flow, err := collectors.NewFlowCollector(*flowLog, logger)
	if err != nil {
		logger.Fatalw("flow collector", "path", *flowLog, "err", err)
	}
	defer flow.Close()

	client, err := agent.Dial(cfg.Agent.BusAddress, cfg.TLS)
	if err != nil {
		logger.Fatalw("dial bus", "addr", cfg.Agent.BusAddress, "err", err)
	}
	defer client.Close()

	publish := client.PublishUniversal
	if *legacy {
		publish = client.PublishLegacy
	}

	q, err := queue.Open(filepath.Join(cfg.Queue.Dir, cfg.Agent.Name+".db"),
		cfg.Queue.MaxBytes, cfg.Queue.MaxRetries, logger)
	if err != nil {
		logger.Fatalw("open queue", "err", err)
	}
	defer q.Close()

	metrics := agent.NewMetrics(prometheus.NewRegistry())
	shipper := agent.NewShipper(q, publish, cfg.Agent.RatePerSec, metrics, logger)

	rt, err := agent.NewRuntime(cfg.Agent, pb.DeviceTelemetry_NETWORK, shipper,
		[]agent.Collector{flow}, metrics, logger)
	if err != nil {
		logger.Fatalw("build runtime", "err", err)
	}
	rt.SetLegacyFlows(*legacy)

	logger.Infow("flowagent started",
		"bus", cfg.Agent.BusAddress,
		"flow_log", *flowLog,
		"interval", cfg.Agent.Interval(),
		"legacy", *legacy)

	if *scanOnce {
		if err := rt.RunOnce(ctx); err != nil {
			logger.Fatalw("collection cycle failed", "err", err)
		}
		if err := shipper.DrainParked(ctx, drainTimeout); err != nil {
			logger.Fatalw("queue drain failed", "err", err)
		}
		return
	}

	if err := rt.Run(ctx); err != nil {
		logger.Fatalw("flowagent stopped", "err", err)
	}
	logger.Infow("flowagent stopped")
}
