package collectors

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// usbClassLabels maps bDeviceClass codes to readable device labels.
var usbClassLabels = map[string]string{
	"01": "USB audio",
	"02": "USB communications",
	"03": "USB HID",
	"06": "USB imaging",
	"07": "USB printer",
	"08": "USB mass storage",
	"09": "USB hub",
	"0e": "USB video",
	"e0": "USB wireless controller",
}

// PeripheralCollector diffs the sysfs USB tree between cycles and reports
// attach and detach events. Hardware appearing on a monitored endpoint is
// worth a warning; removal is informational. The first cycle only records
// what is already plugged in.
type PeripheralCollector struct {
	sysRoot string
	log     *zap.SugaredLogger
	now     func() time.Time

	baselined bool
	seen      map[string]string
}

// NewPeripheralCollector scans sysRoot, normally "/sys/bus/usb/devices".
func NewPeripheralCollector(sysRoot string, log *zap.SugaredLogger) *PeripheralCollector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PeripheralCollector{
		sysRoot: sysRoot,
		log:     log,
		now:     time.Now,
		seen:    make(map[string]string),
	}
}

func (c *PeripheralCollector) Name() string { return "peripheral" }

func (c *PeripheralCollector) Collect(ctx context.Context) ([]*pb.TelemetryEvent, error) {
	current, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if !c.baselined {
		c.baselined = true
		c.seen = current
		return nil, nil
	}

	nowNs := uint64(c.now().UnixNano())
	var events []*pb.TelemetryEvent
	for key, desc := range current {
		if _, ok := c.seen[key]; !ok {
			events = append(events, peripheralEvent(nowNs, "attach", desc, pb.TelemetryEvent_WARN))
		}
	}
	for key, desc := range c.seen {
		if _, ok := current[key]; !ok {
			events = append(events, peripheralEvent(nowNs, "detach", desc, pb.TelemetryEvent_INFO))
		}
	}
	c.seen = current
	return events, nil
}

func peripheralEvent(tsNs uint64, action, desc string, sev pb.TelemetryEvent_Severity) *pb.TelemetryEvent {
	return securityEvent(tsNs, sev, &pb.SecurityEvent{
		Service: "peripheral",
		Action:  action,
		Command: desc,
	})
}

// snapshot maps device identity to description for every USB device present.
// Interface entries (names with a colon) are skipped; the device entry
// carries the identity.
func (c *PeripheralCollector) snapshot(ctx context.Context) (map[string]string, error) {
	entries, err := os.ReadDir(c.sysRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	out := make(map[string]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if strings.ContainsRune(name, ':') {
			continue
		}
		dir := filepath.Join(c.sysRoot, name)
		vendor := sysAttr(dir, "idVendor")
		product := sysAttr(dir, "idProduct")
		if vendor == "" || product == "" {
			continue
		}
		out[name+"/"+vendor+":"+product] = c.describe(dir)
	}
	return out, nil
}

// describe builds a readable label: class label plus manufacturer and
// product strings when the device exposes them.
func (c *PeripheralCollector) describe(dir string) string {
	label := usbClassLabels[strings.ToLower(sysAttr(dir, "bDeviceClass"))]
	if label == "" {
		label = "USB device"
	}
	parts := []string{label}
	if m := sysAttr(dir, "manufacturer"); m != "" {
		parts = append(parts, m)
	}
	if p := sysAttr(dir, "product"); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

func sysAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
