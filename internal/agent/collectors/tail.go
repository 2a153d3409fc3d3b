package collectors

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// tailBufferMax bounds lines held between collect cycles. Past it the oldest
// lines fall off; a stalled agent must not grow without bound.
const tailBufferMax = 10000

// logTail follows one log file and buffers complete lines until a collector
// drains them. The parent directory is watched so rotation (rename away,
// recreate) and late creation are picked up. The first open seeks to the end:
// history from before the agent started is not replayed.
type logTail struct {
	path    string
	watcher *fsnotify.Watcher
	log     *zap.SugaredLogger

	mu      sync.Mutex
	file    *os.File
	offset  int64
	partial []byte
	lines   []string
	dropped uint64
}

func newLogTail(path string, log *zap.SugaredLogger) (*logTail, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tail %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	t := &logTail{path: filepath.Clean(path), watcher: watcher, log: log}
	t.mu.Lock()
	t.openLocked(true)
	t.mu.Unlock()
	go t.run()
	return t, nil
}

// Lines returns everything buffered since the last call.
func (t *logTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.lines
	t.lines = nil
	return out
}

// Close stops the watcher; the run loop exits when the event channel closes.
func (t *logTail) Close() error {
	err := t.watcher.Close()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeFileLocked()
	return err
}

func (t *logTail) run() {
	for {
		select {
		case evt, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != t.path {
				continue
			}
			t.mu.Lock()
			switch {
			case evt.Op.Has(fsnotify.Create):
				// Rotated in or created late; read it from the top.
				t.closeFileLocked()
				t.openLocked(false)
				t.consumeLocked()
			case evt.Op.Has(fsnotify.Write):
				t.consumeLocked()
			case evt.Op.Has(fsnotify.Remove), evt.Op.Has(fsnotify.Rename):
				t.closeFileLocked()
			}
			t.mu.Unlock()
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.log.Warnw("tail watcher error", "path", t.path, "err", err)
		}
	}
}

func (t *logTail) openLocked(seekEnd bool) {
	f, err := os.Open(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Warnw("tail open failed", "path", t.path, "err", err)
		}
		return
	}
	t.file = f
	t.offset = 0
	t.partial = nil
	if seekEnd {
		if end, err := f.Seek(0, io.SeekEnd); err == nil {
			t.offset = end
		}
	}
}

func (t *logTail) closeFileLocked() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
	t.offset = 0
	t.partial = nil
}

// consumeLocked reads from the remembered offset to EOF and buffers the
// complete lines. Truncation rewinds to the top.
func (t *logTail) consumeLocked() {
	if t.file == nil {
		t.openLocked(false)
		if t.file == nil {
			return
		}
	}
	if info, err := t.file.Stat(); err == nil && info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}

	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		t.log.Warnw("tail seek failed", "path", t.path, "err", err)
		return
	}
	data, err := io.ReadAll(t.file)
	if err != nil {
		t.log.Warnw("tail read failed", "path", t.path, "err", err)
		return
	}
	t.offset += int64(len(data))

	data = append(t.partial, data...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(data[:i], "\r"))
		data = data[i+1:]
		if line == "" {
			continue
		}
		t.lines = append(t.lines, line)
	}
	t.partial = append([]byte(nil), data...)

	if over := len(t.lines) - tailBufferMax; over > 0 {
		t.lines = append([]string(nil), t.lines[over:]...)
		t.dropped += uint64(over)
		t.log.Warnw("tail buffer over cap, oldest lines dropped",
			"path", t.path, "dropped", over)
	}
}
