package collectors

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/detect"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// dnsQueryPattern matches dnsmasq-style resolver logs:
//
//	... query[A] host.example.test from 192.168.1.50
var dnsQueryPattern = regexp.MustCompile(`query\[([A-Z]+)\]\s+(\S+)\s+from\s+(\S+)`)

// DNSCollector tails a resolver query log and reports lookups whose domain
// scores as machine-generated. Clean lookups are not shipped; the bus is not
// a passive DNS store.
type DNSCollector struct {
	tail *logTail
	log  *zap.SugaredLogger
	now  func() time.Time
}

// NewDNSCollector tails the query log at path.
func NewDNSCollector(path string, log *zap.SugaredLogger) (*DNSCollector, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	tail, err := newLogTail(path, log)
	if err != nil {
		return nil, err
	}
	return &DNSCollector{tail: tail, log: log, now: time.Now}, nil
}

func (c *DNSCollector) Name() string { return "dns" }

func (c *DNSCollector) Close() error { return c.tail.Close() }

func (c *DNSCollector) Collect(ctx context.Context) ([]*pb.TelemetryEvent, error) {
	nowNs := uint64(c.now().UnixNano())
	var events []*pb.TelemetryEvent
	flagged := make(map[string]bool)

	for _, line := range c.tail.Lines() {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		m := dnsQueryPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		domain, client := m[2], m[3]
		if flagged[domain] {
			continue
		}
		ind := detect.AnalyzeDomain(domain)
		if ind == nil {
			continue
		}
		flagged[domain] = true
		inds := stamp(nowNs, ind)
		events = append(events, securityEvent(nowNs, indicatorSeverity(inds), &pb.SecurityEvent{
			Service:    "dns",
			Action:     "query",
			SourceIp:   client,
			Domain:     domain,
			Indicators: inds,
		}))
	}
	return events, nil
}
