package correlate

import (
	"sort"
	"sync"
)

// window holds one device's recent events sorted ascending by timestamp.
// All access goes through the mutex; rules only ever see snapshots, which
// keeps evaluation single-threaded per device.
type window struct {
	deviceID string

	// evalMu serializes rule evaluation for this device across the live
	// ingest path and the rescan ticker.
	evalMu sync.Mutex

	mu     sync.Mutex
	events []Event
	seen   map[string]struct{}
}

func newWindow(deviceID string) *window {
	return &window{deviceID: deviceID, seen: make(map[string]struct{})}
}

// add inserts events newer than cutoffNs, skipping ids already present so a
// WAL replay cannot inflate the window. Returns how many events landed.
func (w *window) add(events []Event, cutoffNs int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	added := 0
	for _, ev := range events {
		if ev.TsNs < cutoffNs {
			continue
		}
		if _, dup := w.seen[ev.EventID]; dup {
			continue
		}
		w.seen[ev.EventID] = struct{}{}
		w.events = append(w.events, ev)
		added++
	}
	if added > 0 {
		sort.SliceStable(w.events, func(i, j int) bool {
			return w.events[i].TsNs < w.events[j].TsNs
		})
	}
	w.evictLocked(cutoffNs)
	return added
}

// snapshot evicts expired events and returns a copy of the survivors.
func (w *window) snapshot(cutoffNs int64) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evictLocked(cutoffNs)
	out := make([]Event, len(w.events))
	copy(out, w.events)
	return out
}

func (w *window) evictLocked(cutoffNs int64) {
	i := 0
	for i < len(w.events) && w.events[i].TsNs < cutoffNs {
		delete(w.seen, w.events[i].EventID)
		i++
	}
	if i > 0 {
		w.events = append([]Event(nil), w.events[i:]...)
	}
}

func (w *window) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}
