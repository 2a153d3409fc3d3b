// Command hostagent collects endpoint telemetry: process starts, resolver
// queries, kernel audit records, and USB peripheral changes. Events ship to
// the event bus over mTLS with a durable local queue behind them.
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
	procRoot := flag.String("proc", "/proc", "procfs mount to scan")
	sysRoot := flag.String("sys", "/sys/bus/usb/devices", "sysfs USB device directory to scan")
	auditLog := flag.String("audit-log", "/var/log/audit/audit.log", "kernel audit log to tail")
	dnsLog := flag.String("dns-log", "/var/log/dnsmasq.log", "resolver query log to tail")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "hostagent"
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

	audit, err := collectors.NewAuditCollector(*auditLog, logger)
	if err != nil {
		logger.Fatalw("audit collector", "path", *auditLog, "err", err)
	}
	defer audit.Close()
	dns, err := collectors.NewDNSCollector(*dnsLog, logger)
	if err != nil {
		logger.Fatalw("dns collector", "path", *dnsLog, "err", err)
	}
	defer dns.Close()

	cols := []agent.Collector{
		collectors.NewProcessCollector(*procRoot, logger),
		dns,
		audit,
		collectors.NewPeripheralCollector(*sysRoot, logger),
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

	rt, err := agent.NewRuntime(cfg.Agent, pb.DeviceTelemetry_ENDPOINT, shipper, cols, metrics, logger)
	if err != nil {
		logger.Fatalw("build runtime", "err", err)
	}

	logger.Infow("hostagent started",
		"bus", cfg.Agent.BusAddress,
		"interval", cfg.Agent.Interval(),
		"scan_once", *scanOnce)

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
		logger.Fatalw("hostagent stopped", "err", err)
	}
	logger.Infow("hostagent stopped")
}
