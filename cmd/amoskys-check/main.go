// Command amoskys-check is the pre-flight diagnostic for a deployment: it
// probes the ops endpoint, the Prometheus scrape, and the bus publish path,
// and exits non-zero when anything fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Vardhan-225/Amoskys-sub000/internal/agent"
	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

type component struct {
	name  string
	check func(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file (built-in defaults when empty)")
	opsBase := flag.String("ops", "", "ops endpoint base URL (default http://localhost:<ops_port>)")
	busAddr := flag.String("bus", "", "bus address override (host:port)")
	timeout := flag.Duration("timeout", 5*time.Second, "per-check timeout")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ops := *opsBase
	if ops == "" {
		ops = fmt.Sprintf("http://localhost:%d", cfg.Server.OpsPort)
	}
	bus := *busAddr
	if bus == "" {
		bus = cfg.Agent.BusAddress
	}

	fmt.Println("\033[96mAMOSKYS Pre-Flight Diagnostic\033[0m")
	fmt.Println("---------------------------------------------------------")

	components := []component{
		{"Ops liveness (/healthz)", checkHealthz(ops)},
		{"Metrics scrape (/metrics)", checkMetrics(ops)},
		{"Bus publish path (gRPC/mTLS)", checkBus(bus, cfg.TLS)},
	}

	failed := 0
	for _, c := range components {
		fmt.Printf("Checking %-32s ", c.name+"...")
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		err := c.check(ctx)
		cancel()
		if err != nil {
			fmt.Println("\033[31m[FAIL]\033[0m")
			fmt.Printf("  >> %v\n", err)
			failed++
		} else {
			fmt.Println("\033[32m[OK]\033[0m")
		}
	}

	fmt.Println("---------------------------------------------------------")
	if failed > 0 {
		fmt.Printf("\033[31m%d of %d checks failed.\033[0m\n", failed, len(components))
		os.Exit(1)
	}
	fmt.Println("\033[96mStatus: ready for agent traffic.\033[0m")
}

func checkHealthz(base string) func(context.Context) error {
	return func(ctx context.Context) error {
		body, err := httpGet(ctx, base+"/healthz")
		if err != nil {
			return err
		}
		if strings.TrimSpace(body) != "ok" {
			return fmt.Errorf("unexpected body %q", body)
		}
		return nil
	}
}

func checkMetrics(base string) func(context.Context) error {
	return func(ctx context.Context) error {
		body, err := httpGet(ctx, base+"/metrics")
		if err != nil {
			return err
		}
		for _, series := range []string{"bus_publish_total", "bus_inflight_requests"} {
			if !strings.Contains(body, series) {
				return fmt.Errorf("series %s missing from scrape", series)
			}
		}
		return nil
	}
}

// checkBus publishes a payload-less probe envelope. A healthy bus answers
// INVALID without persisting anything, which proves TLS, admission, and the
// ACK path end to end.
func checkBus(addr string, tlsCfg config.TLSConfig) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := agent.Dial(addr, tlsCfg)
		if err != nil {
			return err
		}
		defer client.Close()

		env := &pb.Envelope{
			Version:        pb.WireVersion,
			TsNs:           uint64(time.Now().UnixNano()),
			IdempotencyKey: uuid.NewString(),
			SourceIdentity: "amoskys-check",
		}
		raw, err := env.MarshalWire()
		if err != nil {
			return err
		}

		ack, err := client.PublishLegacy(ctx, raw)
		if err != nil {
			return fmt.Errorf("publish probe: %w", err)
		}
		if ack.Status != agent.AckInvalid {
			return fmt.Errorf("probe expected INVALID, got %s (%s)", ack.Status, ack.Reason)
		}
		return nil
	}
}

func httpGet(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return string(body), nil
}
