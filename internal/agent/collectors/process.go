package collectors

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/detect"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// ProcessCollector diffs procfs between cycles and reports processes that
// appeared, running the command-line primitives over each new one. The first
// cycle only records what is already running.
type ProcessCollector struct {
	procRoot string
	log      *zap.SugaredLogger
	now      func() time.Time

	baselined bool
	seen      map[string]struct{}
	users     map[string]string
}

type procInfo struct {
	pid              uint32
	ppid             uint32
	executable       string
	cmdline          string
	username         string
	parentExecutable string
	startTicks       uint64
}

// NewProcessCollector scans procRoot, normally "/proc".
func NewProcessCollector(procRoot string, log *zap.SugaredLogger) *ProcessCollector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ProcessCollector{
		procRoot: procRoot,
		log:      log,
		now:      time.Now,
		seen:     make(map[string]struct{}),
		users:    make(map[string]string),
	}
}

func (c *ProcessCollector) Name() string { return "process" }

func (c *ProcessCollector) Collect(ctx context.Context) ([]*pb.TelemetryEvent, error) {
	procs, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if !c.baselined {
		c.baselined = true
		c.rememberKeys(procs)
		return nil, nil
	}

	nowNs := uint64(c.now().UnixNano())
	var events []*pb.TelemetryEvent
	for key, p := range procs {
		if _, ok := c.seen[key]; ok {
			continue
		}
		events = append(events, processEvent(nowNs, pb.TelemetryEvent_INFO, &pb.ProcessEvent{
			Pid:              p.pid,
			Ppid:             p.ppid,
			Executable:       p.executable,
			CommandLine:      p.cmdline,
			Username:         p.username,
			ParentExecutable: p.parentExecutable,
		}))

		inds := c.inspect(p)
		if len(inds) == 0 {
			continue
		}
		inds = stamp(nowNs, inds...)
		events = append(events, securityEvent(nowNs, indicatorSeverity(inds), &pb.SecurityEvent{
			Service:    "system",
			Action:     "command",
			Username:   p.username,
			Command:    p.cmdline,
			Indicators: inds,
		}))
	}
	c.rememberKeys(procs)
	return events, nil
}

// inspect runs every command-line primitive over one process. The explicit
// call list is the composition contract; there is no registry.
func (c *ProcessCollector) inspect(p procInfo) []*pb.ThreatIndicator {
	inds := detect.LOLBinIndicators(p.cmdline)
	if ind := detect.ReverseShellIndicator(p.cmdline); ind != nil {
		inds = append(inds, ind)
	}
	if ind := detect.CredentialCommandIndicator(p.cmdline); ind != nil {
		inds = append(inds, ind)
	}
	inds = append(inds, detect.ExfilCommandIndicators(p.cmdline)...)
	if ind := detect.SuspiciousPathIndicator(p.executable); ind != nil {
		inds = append(inds, ind)
	}
	return inds
}

func (c *ProcessCollector) rememberKeys(procs map[string]procInfo) {
	c.seen = make(map[string]struct{}, len(procs))
	for key := range procs {
		c.seen[key] = struct{}{}
	}
}

func (c *ProcessCollector) snapshot(ctx context.Context) (map[string]procInfo, error) {
	entries, err := os.ReadDir(c.procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.procRoot, err)
	}

	procs := make(map[string]procInfo)
	exeByPid := make(map[uint32]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid64, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		p, ok := c.readProc(uint32(pid64))
		if !ok {
			continue
		}
		procs[procKey(p.pid, p.startTicks)] = p
		exeByPid[p.pid] = p.executable
	}

	for key, p := range procs {
		if exe, ok := exeByPid[p.ppid]; ok {
			p.parentExecutable = exe
			procs[key] = p
		}
	}
	return procs, nil
}

// readProc assembles one process from its procfs files. Processes that exit
// mid-read and kernel threads (no cmdline) are skipped.
func (c *ProcessCollector) readProc(pid uint32) (procInfo, bool) {
	dir := filepath.Join(c.procRoot, strconv.FormatUint(uint64(pid), 10))

	stat, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return procInfo{}, false
	}
	ppid, startTicks, ok := parseStat(string(stat))
	if !ok {
		return procInfo{}, false
	}

	raw, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil || len(raw) == 0 {
		return procInfo{}, false
	}
	cmdline := strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", " "))
	if cmdline == "" {
		return procInfo{}, false
	}

	executable, err := os.Readlink(filepath.Join(dir, "exe"))
	if err != nil {
		// Unreadable without privileges; argv[0] is the next best identity.
		executable = strings.Fields(cmdline)[0]
	}

	return procInfo{
		pid:        pid,
		ppid:       ppid,
		executable: executable,
		cmdline:    cmdline,
		username:   c.username(dir),
		startTicks: startTicks,
	}, true
}

// parseStat pulls ppid and starttime out of /proc/<pid>/stat. The comm field
// is parenthesized and may contain spaces, so fields are counted from the
// last closing paren.
func parseStat(s string) (ppid uint32, startTicks uint64, ok bool) {
	i := strings.LastIndexByte(s, ')')
	if i < 0 {
		return 0, 0, false
	}
	fields := strings.Fields(s[i+1:])
	// After comm: state is fields[0], ppid fields[1], starttime fields[19].
	if len(fields) < 20 {
		return 0, 0, false
	}
	ppid64, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	start, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return uint32(ppid64), start, true
}

// username resolves the real uid from the status file, with a cached
// uid-to-name lookup. Falls back to the numeric uid.
func (c *ProcessCollector) username(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "status"))
	if err != nil {
		return ""
	}
	uid := ""
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			uid = fields[1]
		}
		break
	}
	if uid == "" {
		return ""
	}
	if name, ok := c.users[uid]; ok {
		return name
	}
	name := uid
	if u, err := user.LookupId(uid); err == nil {
		name = u.Username
	}
	c.users[uid] = name
	return name
}

func procKey(pid uint32, startTicks uint64) string {
	return strconv.FormatUint(uint64(pid), 10) + ":" + strconv.FormatUint(startTicks, 10)
}
