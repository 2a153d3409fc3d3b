package collectors

import (
	"context"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/detect"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// auditMsgPattern pulls the timestamp and event id out of
// msg=audit(1700000000.123:456):
var auditMsgPattern = regexp.MustCompile(`msg=audit\((\d+)\.(\d+):(\d+)\)`)

// auditInnerMsgPattern isolates the nested msg='...' block USER_* records
// carry.
var auditInnerMsgPattern = regexp.MustCompile(`msg='([^']*)'`)

// AuditCollector tails the kernel audit log. SYSCALL records grouped with
// their PATH records become file-operation AUDIT events; USER_AUTH records
// from sshd and sudo become authentication SECURITY events; USER_CMD records
// become sudo command SECURITY events with the command-line primitives
// applied.
type AuditCollector struct {
	tail *logTail
	log  *zap.SugaredLogger
	now  func() time.Time

	// open is the SYSCALL group still accumulating PATH records. At most one
	// exists: audit writes the records of one event contiguously.
	open *auditGroup
}

type auditGroup struct {
	id      string
	tsNs    uint64
	exe     string
	auid    uint32
	success bool
	paths   []auditPath
}

type auditPath struct {
	name     string
	nametype string
}

// NewAuditCollector tails the audit log at path, normally
// /var/log/audit/audit.log.
func NewAuditCollector(path string, log *zap.SugaredLogger) (*AuditCollector, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	tail, err := newLogTail(path, log)
	if err != nil {
		return nil, err
	}
	return &AuditCollector{tail: tail, log: log, now: time.Now}, nil
}

func (c *AuditCollector) Name() string { return "audit" }

func (c *AuditCollector) Close() error { return c.tail.Close() }

func (c *AuditCollector) Collect(ctx context.Context) ([]*pb.TelemetryEvent, error) {
	var events []*pb.TelemetryEvent
	for _, line := range c.tail.Lines() {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		events = append(events, c.feed(line)...)
	}
	// A group left open past the end of a drain is complete; records of one
	// event land in one write burst.
	events = append(events, c.flushOpen()...)
	return events, nil
}

func (c *AuditCollector) feed(line string) []*pb.TelemetryEvent {
	typ, tsNs, id, ok := parseAuditHeader(line)
	if !ok {
		return nil
	}
	if tsNs == 0 {
		tsNs = uint64(c.now().UnixNano())
	}

	switch typ {
	case "SYSCALL":
		flushed := c.flushOpen()
		fields := parseAuditKV(line)
		c.open = &auditGroup{
			id:      id,
			tsNs:    tsNs,
			exe:     fields.text("exe"),
			auid:    parseUint32(fields.raw("auid")),
			success: fields.raw("success") == "yes",
		}
		return flushed
	case "PATH":
		if c.open == nil || c.open.id != id {
			return nil
		}
		fields := parseAuditKV(line)
		c.open.paths = append(c.open.paths, auditPath{
			name:     fields.text("name"),
			nametype: fields.text("nametype"),
		})
		return nil
	case "EOE":
		if c.open != nil && c.open.id == id {
			return c.flushOpen()
		}
		return nil
	case "USER_AUTH":
		return c.authEvent(line, tsNs)
	case "USER_CMD":
		return c.sudoEvent(line, tsNs)
	}
	return nil
}

// flushOpen converts the open SYSCALL group into one AUDIT event per real
// path record. Parent-directory records and paths that never resolved are
// skipped.
func (c *AuditCollector) flushOpen() []*pb.TelemetryEvent {
	g := c.open
	c.open = nil
	if g == nil {
		return nil
	}

	var events []*pb.TelemetryEvent
	for _, p := range g.paths {
		var op pb.AuditEvent_Operation
		switch p.nametype {
		case "CREATE":
			op = pb.AuditEvent_CREATED
		case "DELETE":
			op = pb.AuditEvent_DELETED
		case "NORMAL":
			op = pb.AuditEvent_MODIFIED
		default:
			continue
		}
		if p.name == "" {
			continue
		}
		sev := pb.TelemetryEvent_INFO
		if _, hit := detect.ClassifyPersistencePath(p.name); hit {
			sev = pb.TelemetryEvent_WARN
		}
		events = append(events, auditEvent(g.tsNs, sev, &pb.AuditEvent{
			Operation: op,
			Path:      p.name,
			Exe:       g.exe,
			Auid:      g.auid,
			Success:   g.success,
		}))
	}
	return events
}

// authEvent maps a PAM authentication record onto the ssh or sudo service.
// Other PAM stacks (login, display managers) are not shipped.
func (c *AuditCollector) authEvent(line string, tsNs uint64) []*pb.TelemetryEvent {
	outer := parseAuditKV(line)
	inner := parseAuditKV(innerMsg(line))

	exe := outer.text("exe")
	terminal := inner.text("terminal")
	var service string
	switch {
	case strings.Contains(exe, "sshd") || terminal == "ssh":
		service = "ssh"
	case strings.HasSuffix(exe, "/sudo"):
		service = "sudo"
	default:
		return nil
	}

	action := "failure"
	sev := pb.TelemetryEvent_WARN
	if inner.raw("res") == "success" {
		action = "success"
		sev = pb.TelemetryEvent_INFO
	}

	return []*pb.TelemetryEvent{securityEvent(tsNs, sev, &pb.SecurityEvent{
		Service:  service,
		Action:   action,
		SourceIp: inner.text("addr"),
		Username: inner.text("acct"),
	})}
}

// sudoEvent ships one executed sudo command with the command-line primitives
// applied to the decoded command.
func (c *AuditCollector) sudoEvent(line string, tsNs uint64) []*pb.TelemetryEvent {
	outer := parseAuditKV(line)
	inner := parseAuditKV(innerMsg(line))

	cmd := inner.text("cmd")
	if cmd == "" {
		return nil
	}

	inds := detect.LOLBinIndicators(cmd)
	if ind := detect.CredentialCommandIndicator(cmd); ind != nil {
		inds = append(inds, ind)
	}
	inds = append(inds, detect.ExfilCommandIndicators(cmd)...)
	inds = stamp(tsNs, inds...)

	sev := pb.TelemetryEvent_INFO
	if len(inds) > 0 {
		sev = indicatorSeverity(inds)
	}

	return []*pb.TelemetryEvent{securityEvent(tsNs, sev, &pb.SecurityEvent{
		Service:    "sudo",
		Action:     "command",
		Username:   outer.raw("auid"),
		Command:    cmd,
		Indicators: inds,
	})}
}

// ============================================================================
// AUDIT LINE GRAMMAR
// ============================================================================

func parseAuditHeader(line string) (typ string, tsNs uint64, id string, ok bool) {
	if !strings.HasPrefix(line, "type=") {
		return "", 0, "", false
	}
	rest := line[len("type="):]
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return "", 0, "", false
	}
	typ = rest[:sp]

	m := auditMsgPattern.FindStringSubmatch(line)
	if m == nil {
		return typ, 0, "", true
	}
	sec, _ := strconv.ParseUint(m[1], 10, 64)
	ms, _ := strconv.ParseUint(m[2], 10, 64)
	return typ, sec*1e9 + ms*1e6, m[3], true
}

func innerMsg(line string) string {
	if m := auditInnerMsgPattern.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

type auditFields map[string]kvField

type kvField struct {
	value  string
	quoted bool
}

// raw returns the field verbatim. Numeric fields go through here; a pure
// digit run like auid=6161 must not be mistaken for hex.
func (f auditFields) raw(key string) string {
	return f[key].value
}

// text returns the decoded value: quoted fields verbatim, unquoted fields
// hex-decoded when they look hex-encoded. Audit hex-encodes any value that
// contains spaces or specials, which is what keeps field splitting sound.
func (f auditFields) text(key string) string {
	field, ok := f[key]
	if !ok {
		return ""
	}
	if field.quoted {
		return field.value
	}
	if decoded, ok := hexDecode(field.value); ok {
		return decoded
	}
	return field.value
}

func parseAuditKV(s string) auditFields {
	out := make(auditFields)
	for _, f := range strings.Fields(s) {
		i := strings.IndexByte(f, '=')
		if i <= 0 {
			continue
		}
		k, v := f[:i], f[i+1:]
		quoted := len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"'
		if quoted {
			v = v[1 : len(v)-1]
		}
		out[k] = kvField{value: v, quoted: quoted}
	}
	return out
}

// hexDecode decodes audit hex values: even length, all upper or lower hex,
// printable result.
func hexDecode(s string) (string, bool) {
	if len(s) < 2 || len(s)%2 != 0 {
		return "", false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return "", false
		}
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", false
	}
	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return "", false
		}
	}
	return string(raw), true
}

func parseUint32(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}
