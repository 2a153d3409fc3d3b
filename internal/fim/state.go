// Package fim implements file-integrity monitoring: baseline capture,
// streaming re-scan, and classified diffs between the two.
package fim

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// FileState captures everything the differ compares for one file.
type FileState struct {
	Path            string `json:"path"`
	SHA256          string `json:"sha256"`
	Size            int64  `json:"size"`
	Mode            uint32 `json:"mode"`
	UID             uint32 `json:"uid"`
	GID             uint32 `json:"gid"`
	MtimeNs         int64  `json:"mtime_ns"`
	IsSUID          bool   `json:"is_suid,omitempty"`
	IsSGID          bool   `json:"is_sgid,omitempty"`
	IsWorldWritable bool   `json:"is_world_writable,omitempty"`
}

// Baseline is the persisted snapshot a scan cycle diffs against.
type Baseline struct {
	GeneratedTsNs int64                `json:"generated_ts_ns"`
	Files         map[string]FileState `json:"files"`
}

// LoadBaseline reads a baseline file. A missing file returns an empty
// baseline and no error: the first scan cycle establishes it.
func LoadBaseline(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Baseline{Files: make(map[string]FileState)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read baseline %s: %w", path, err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if b.Files == nil {
		b.Files = make(map[string]FileState)
	}
	return &b, nil
}

// Save persists the baseline with a write-then-rename so a crash mid-write
// never leaves a truncated baseline behind.
func (b *Baseline) Save(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create baseline dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".baseline-*.json")
	if err != nil {
		return fmt.Errorf("create baseline temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close baseline temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace baseline %s: %w", path, err)
	}
	return nil
}
