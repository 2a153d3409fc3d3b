// Command loadtest hammers the bus with synthetic envelopes and reports the
// ACK status mix and publish latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Vardhan-225/Amoskys-sub000/internal/agent"
	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// loadConfig holds the generator parameters.
type loadConfig struct {
	Envelopes      int
	Concurrency    int
	Universal      bool
	ReportInterval time.Duration
}

// loadStats tracks the ACK mix and latency distribution.
type loadStats struct {
	Published     uint64
	OK            uint64
	Retry         uint64
	Invalid       uint64
	Unauthorized  uint64
	TransportErrs uint64

	TotalDuration time.Duration
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
	P95Latency    time.Duration
	P99Latency    time.Duration
	Throughput    float64
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file (built-in defaults when empty)")
	busAddr := flag.String("bus", "", "bus address override (host:port)")
	envelopes := flag.Int("envelopes", 1000, "number of envelopes to publish")
	concurrency := flag.Int("concurrency", 10, "number of concurrent publishers")
	universal := flag.Bool("universal", false, "publish universal telemetry batches instead of legacy flows")
	reportInterval := flag.Duration("report", 5*time.Second, "progress reporting interval")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	addr := cfg.Agent.BusAddress
	if *busAddr != "" {
		addr = *busAddr
	}

	client, err := agent.Dial(addr, cfg.TLS)
	if err != nil {
		log.Fatalf("dial bus %s: %v", addr, err)
	}
	defer client.Close()

	lc := loadConfig{
		Envelopes:      *envelopes,
		Concurrency:    *concurrency,
		Universal:      *universal,
		ReportInterval: *reportInterval,
	}
	fmt.Printf("Publishing %d envelopes to %s (%d workers, universal=%v)\n",
		lc.Envelopes, addr, lc.Concurrency, lc.Universal)

	stats := runLoad(client, lc)
	printResults(stats)
}

func runLoad(client *agent.Client, lc loadConfig) *loadStats {
	publish := client.PublishLegacy
	if lc.Universal {
		publish = client.PublishUniversal
	}

	stats := &loadStats{MinLatency: time.Hour}
	var latencies []time.Duration
	var latenciesMu sync.Mutex

	jobs := make(chan int, lc.Envelopes)
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reportProgress(ctx, stats, lc.ReportInterval)

	start := time.Now()
	for i := 0; i < lc.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for n := range jobs {
				publishOne(ctx, publish, lc.Universal, workerID, n, stats, &latencies, &latenciesMu)
			}
		}(i)
	}

	for i := 0; i < lc.Envelopes; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	stats.TotalDuration = time.Since(start)
	stats.Throughput = float64(stats.Published) / stats.TotalDuration.Seconds()

	latenciesMu.Lock()
	if len(latencies) > 0 {
		stats.AvgLatency = average(latencies)
		stats.P95Latency = percentile(latencies, 95)
		stats.P99Latency = percentile(latencies, 99)
	}
	latenciesMu.Unlock()
	return stats
}

func publishOne(
	ctx context.Context,
	publish agent.PublishFunc,
	universal bool,
	workerID, n int,
	stats *loadStats,
	latencies *[]time.Duration,
	latenciesMu *sync.Mutex,
) {
	identity := fmt.Sprintf("loadtest-%d", workerID)
	var raw []byte
	if universal {
		raw = universalEnvelope(identity, n)
	} else {
		raw = flowEnvelope(identity, n)
	}

	start := time.Now()
	ack, err := publish(ctx, raw)
	latency := time.Since(start)

	atomic.AddUint64(&stats.Published, 1)
	if err != nil {
		atomic.AddUint64(&stats.TransportErrs, 1)
		return
	}
	switch ack.Status {
	case agent.AckOK:
		atomic.AddUint64(&stats.OK, 1)
	case agent.AckRetry:
		atomic.AddUint64(&stats.Retry, 1)
	case agent.AckInvalid:
		atomic.AddUint64(&stats.Invalid, 1)
	case agent.AckUnauthorized:
		atomic.AddUint64(&stats.Unauthorized, 1)
	}

	latenciesMu.Lock()
	*latencies = append(*latencies, latency)
	if latency > stats.MaxLatency {
		stats.MaxLatency = latency
	}
	if latency < stats.MinLatency {
		stats.MinLatency = latency
	}
	latenciesMu.Unlock()
}

func flowEnvelope(identity string, n int) []byte {
	now := uint64(time.Now().UnixNano())
	env := &pb.Envelope{
		Version:        pb.WireVersion,
		TsNs:           now,
		IdempotencyKey: uuid.NewString(),
		SourceIdentity: identity,
		Payload: &pb.Envelope_Flow{Flow: &pb.FlowEvent{
			SrcIp:       "10.0.0.2",
			SrcPort:     uint32(40000 + n%20000),
			DstIp:       "203.0.113.50",
			DstPort:     443,
			Protocol:    "tcp",
			Direction:   pb.FlowEvent_OUTBOUND,
			BytesIn:     4096,
			BytesOut:    512,
			PacketCount: 12,
			StartTsNs:   now - uint64(time.Second),
			EndTsNs:     now,
		}},
	}
	raw, _ := env.MarshalWire()
	return raw
}

func universalEnvelope(identity string, n int) []byte {
	now := uint64(time.Now().UnixNano())
	env := &pb.UniversalEnvelope{
		Version:        pb.WireVersion,
		TsNs:           now,
		IdempotencyKey: uuid.NewString(),
		SourceIdentity: identity,
		Telemetry: &pb.DeviceTelemetry{
			DeviceId:       identity,
			DeviceType:     pb.DeviceTelemetry_ENDPOINT,
			CollectionTsNs: now,
			Events: []*pb.TelemetryEvent{{
				EventId:   uuid.NewString(),
				EventType: pb.TelemetryEvent_SECURITY,
				Severity:  pb.TelemetryEvent_INFO,
				EventTsNs: now,
				Body: &pb.TelemetryEvent_Security{Security: &pb.SecurityEvent{
					Service:  "loadtest",
					Action:   "probe",
					SourceIp: fmt.Sprintf("10.1.%d.%d", n/250%250, n%250),
				}},
			}},
		},
	}
	raw, _ := env.MarshalWire()
	return raw
}

func reportProgress(ctx context.Context, stats *loadStats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Printf("progress: published=%d ok=%d retry=%d invalid=%d unauthorized=%d transport_errs=%d\n",
				atomic.LoadUint64(&stats.Published),
				atomic.LoadUint64(&stats.OK),
				atomic.LoadUint64(&stats.Retry),
				atomic.LoadUint64(&stats.Invalid),
				atomic.LoadUint64(&stats.Unauthorized),
				atomic.LoadUint64(&stats.TransportErrs))
		case <-ctx.Done():
			return
		}
	}
}

func printResults(stats *loadStats) {
	separator := "================================================================================"
	divider := "--------------------------------------------------------------------------------"

	fmt.Println("\n" + separator)
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println(separator)
	fmt.Printf("Envelopes published:    %d\n", stats.Published)
	fmt.Printf("OK:                     %d (%.2f%%)\n", stats.OK, pct(stats.OK, stats.Published))
	fmt.Printf("RETRY:                  %d (%.2f%%)\n", stats.Retry, pct(stats.Retry, stats.Published))
	fmt.Printf("INVALID:                %d (%.2f%%)\n", stats.Invalid, pct(stats.Invalid, stats.Published))
	fmt.Printf("UNAUTHORIZED:           %d (%.2f%%)\n", stats.Unauthorized, pct(stats.Unauthorized, stats.Published))
	fmt.Printf("Transport errors:       %d (%.2f%%)\n", stats.TransportErrs, pct(stats.TransportErrs, stats.Published))
	fmt.Println(divider)
	fmt.Printf("Total duration:         %v\n", stats.TotalDuration)
	fmt.Printf("Throughput:             %.2f envelopes/sec\n", stats.Throughput)
	fmt.Println(divider)
	fmt.Printf("Latency (min):          %v\n", stats.MinLatency)
	fmt.Printf("Latency (avg):          %v\n", stats.AvgLatency)
	fmt.Printf("Latency (p95):          %v\n", stats.P95Latency)
	fmt.Printf("Latency (p99):          %v\n", stats.P99Latency)
	fmt.Printf("Latency (max):          %v\n", stats.MaxLatency)
	fmt.Println(separator)
}

func pct(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func average(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}

func percentile(latencies []time.Duration, p int) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * float64(p) / 100.0)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
