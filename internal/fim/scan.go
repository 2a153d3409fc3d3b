package fim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// ChangeType labels one baseline divergence.
type ChangeType string

const (
	ChangeCreated    ChangeType = "CREATED"
	ChangeDeleted    ChangeType = "DELETED"
	ChangeModified   ChangeType = "MODIFIED"
	ChangePermission ChangeType = "PERMISSION_CHANGED"
	ChangeOwner      ChangeType = "OWNER_CHANGED"
)

// Change is one classified divergence between baseline and current state.
type Change struct {
	Path            string
	Type            ChangeType
	Old             *FileState
	New             *FileState
	Severity        pb.TelemetryEvent_Severity
	MitreTechniques []string
	Detail          string
}

// Scanner walks a set of monitored roots and produces FileState snapshots.
type Scanner struct {
	roots    []string
	excludes []string
	log      *zap.SugaredLogger
}

// NewScanner builds a scanner over roots. Paths with any prefix in excludes
// are skipped. A nil logger disables logging.
func NewScanner(roots, excludes []string, log *zap.SugaredLogger) *Scanner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scanner{roots: roots, excludes: excludes, log: log}
}

// Snapshot walks every root and computes the state of each regular file.
// Unreadable entries are logged and skipped so one bad file cannot abort a
// cycle; cancellation is checked between entries so large trees stop fast.
func (s *Scanner) Snapshot(ctx context.Context) (map[string]FileState, error) {
	current := make(map[string]FileState)
	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				s.log.Warnw("fim walk error", "path", path, "err", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if s.excluded(path) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				s.log.Warnw("fim stat failed", "path", path, "err", err)
				return nil
			}
			state, err := stateOf(ctx, path, info)
			if err != nil {
				s.log.Warnw("fim hash failed", "path", path, "err", err)
				return nil
			}
			current[path] = state
			return nil
		})
		if err != nil {
			// Only cancellation escapes the walk callback; IO errors are
			// logged and skipped inside it.
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return current, nil
}

// ScanOnce runs one full cycle: load baseline, snapshot, diff, replace the
// baseline atomically. The first cycle against an empty baseline establishes
// it and reports no changes.
func (s *Scanner) ScanOnce(ctx context.Context, baselinePath string, nowNs int64) ([]Change, error) {
	baseline, err := LoadBaseline(baselinePath)
	if err != nil {
		return nil, err
	}
	current, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var changes []Change
	if len(baseline.Files) > 0 {
		changes = Diff(baseline.Files, current)
	}

	next := &Baseline{GeneratedTsNs: nowNs, Files: current}
	if err := next.Save(baselinePath); err != nil {
		return nil, err
	}
	return changes, nil
}

func (s *Scanner) excluded(path string) bool {
	for _, p := range s.excludes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Diff compares a baseline snapshot to the current one. Content divergence
// (sha256 or size) is MODIFIED; metadata-only divergence is refined into
// PERMISSION_CHANGED and OWNER_CHANGED. Output is sorted by path, with
// deletions after the paths that still exist.
func Diff(baseline, current map[string]FileState) []Change {
	paths := make([]string, 0, len(current))
	for p := range current {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var changes []Change
	for _, path := range paths {
		now := current[path]
		old, ok := baseline[path]
		if !ok {
			changes = append(changes, classify(Change{Path: path, Type: ChangeCreated, New: ptr(now)}))
			continue
		}
		contentChanged := old.SHA256 != now.SHA256 || old.Size != now.Size
		modeChanged := old.Mode != now.Mode
		ownerChanged := old.UID != now.UID || old.GID != now.GID

		switch {
		case contentChanged:
			changes = append(changes, classify(Change{Path: path, Type: ChangeModified, Old: ptr(old), New: ptr(now)}))
		default:
			if modeChanged {
				changes = append(changes, classify(Change{Path: path, Type: ChangePermission, Old: ptr(old), New: ptr(now)}))
			}
			if ownerChanged {
				changes = append(changes, classify(Change{Path: path, Type: ChangeOwner, Old: ptr(old), New: ptr(now)}))
			}
		}
	}

	deleted := make([]string, 0)
	for p := range baseline {
		if _, ok := current[p]; !ok {
			deleted = append(deleted, p)
		}
	}
	sort.Strings(deleted)
	for _, path := range deleted {
		old := baseline[path]
		changes = append(changes, classify(Change{Path: path, Type: ChangeDeleted, Old: ptr(old)}))
	}

	return changes
}

func ptr(s FileState) *FileState { return &s }

// stateOf computes the full FileState for one regular file.
func stateOf(ctx context.Context, path string, info fs.FileInfo) (FileState, error) {
	sum, err := hashFile(ctx, path)
	if err != nil {
		return FileState{}, err
	}
	mode := info.Mode()
	uid, gid := ownerOf(info)
	return FileState{
		Path:            path,
		SHA256:          sum,
		Size:            info.Size(),
		Mode:            uint32(mode),
		UID:             uid,
		GID:             gid,
		MtimeNs:         info.ModTime().UnixNano(),
		IsSUID:          mode&fs.ModeSetuid != 0,
		IsSGID:          mode&fs.ModeSetgid != 0,
		IsWorldWritable: mode.Perm()&0o002 != 0,
	}, nil
}

// hashFile streams the file through SHA-256 in 8 KiB chunks, checking for
// cancellation between chunks so a huge file cannot stall shutdown.
func hashFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 8192)
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
