package correlate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Vardhan-225/Amoskys-sub000/internal/detect"
	"github.com/Vardhan-225/Amoskys-sub000/internal/store"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Rule inspects one device window (events sorted ascending by timestamp)
// and emits at most one incident per invocation.
type Rule struct {
	Name     string
	Evaluate func(events []Event, deviceID string) *store.Incident
}

// ruleTable is the shipped rule set, evaluated in order.
func ruleTable() []Rule {
	return []Rule{
		{Name: "ssh_brute_force", Evaluate: ruleSSHBruteForce},
		{Name: "persistence_after_auth", Evaluate: rulePersistenceAfterAuth},
		{Name: "suspicious_sudo", Evaluate: ruleSuspiciousSudo},
		{Name: "multi_tactic_attack", Evaluate: ruleMultiTactic},
		{Name: "ssh_lateral_movement", Evaluate: ruleSSHLateralMovement},
		{Name: "exfiltration_spike", Evaluate: ruleExfiltrationSpike},
		{Name: "suspicious_process_tree", Evaluate: ruleSuspiciousProcessTree},
	}
}

const (
	sevHigh     = "HIGH"
	sevCritical = "CRITICAL"

	bruteForceSpanNs  = int64(1800) * int64(time.Second)
	persistenceSpanNs = int64(600) * int64(time.Second)
	multiTacticSpanNs = int64(900) * int64(time.Second)
	lateralSpanNs     = int64(300) * int64(time.Second)
	exfilSpanNs       = int64(300) * int64(time.Second)
	processFlowSpanNs = int64(60) * int64(time.Second)

	exfilThresholdBytes = uint64(10) << 20
)

// incidentID is deterministic over (rule, device, window start) so re-runs
// of the same window collapse at the incident store.
func incidentID(rule, deviceID string, startTsNs int64) string {
	seed := fmt.Sprintf("%s|%s|%d", rule, deviceID, startTsNs)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

func newIncident(rule, deviceID, severity, summary string, tactics, techniques []string, evidence []Event, meta map[string]string) *store.Incident {
	sorted := append([]Event(nil), evidence...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TsNs < sorted[j].TsNs })

	ids := make(store.JSONList, 0, len(sorted))
	for _, ev := range sorted {
		ids = append(ids, ev.EventID)
	}
	return &store.Incident{
		IncidentID: incidentID(rule, deviceID, sorted[0].TsNs),
		DeviceID:   deviceID,
		Severity:   severity,
		Tactics:    store.JSONList(tactics),
		Techniques: store.JSONList(techniques),
		Evidence:   ids,
		Metadata:   store.JSONMap(meta),
		RuleName:   rule,
		Summary:    summary,
		StartTsNs:  sorted[0].TsNs,
		EndTsNs:    sorted[len(sorted)-1].TsNs,
		State:      store.IncidentStateNew,
	}
}

func sshFailure(ev Event) bool {
	return ev.Security != nil && ev.Security.Service == "ssh" && ev.Security.Action == "failure"
}

func sshSuccess(ev Event) bool {
	return ev.Security != nil && ev.Security.Service == "ssh" && ev.Security.Action == "success"
}

func authSuccess(ev Event) bool {
	if ev.Security == nil || ev.Security.Action != "success" {
		return false
	}
	return ev.Security.Service == "ssh" || ev.Security.Service == "sudo"
}

func sudoCommand(ev Event) bool {
	return ev.Security != nil && ev.Security.Service == "sudo" && ev.Security.Command != ""
}

func outboundFlow(ev Event) bool {
	return ev.Flow != nil && ev.Flow.Direction == pb.FlowEvent_OUTBOUND
}

func persistenceCreate(ev Event) (detect.PersistenceClass, bool) {
	if ev.Audit == nil || ev.Audit.Operation != pb.AuditEvent_CREATED {
		return detect.PersistenceClass{}, false
	}
	return detect.ClassifyPersistencePath(ev.Audit.Path)
}

// ruleSSHBruteForce fires when one source piles up at least three SSH
// failures and then logs in, all failures within the span before the
// success.
func ruleSSHBruteForce(events []Event, deviceID string) *store.Incident {
	failures := make(map[string][]Event)
	for _, ev := range events {
		switch {
		case sshFailure(ev):
			ip := ev.Security.SourceIp
			failures[ip] = append(failures[ip], ev)
		case sshSuccess(ev):
			for _, ip := range bruteForceCandidates(ev, failures) {
				var prior []Event
				for _, f := range failures[ip] {
					if f.TsNs < ev.TsNs && ev.TsNs-f.TsNs <= bruteForceSpanNs {
						prior = append(prior, f)
					}
				}
				if len(prior) < 3 {
					continue
				}
				evidence := append(append([]Event(nil), prior...), ev)
				return newIncident("ssh_brute_force", deviceID, sevHigh,
					fmt.Sprintf("SSH brute force from %s followed by successful login for %q", ip, ev.Security.Username),
					[]string{"credential_access", "lateral_movement"},
					[]string{"T1110", "T1021.004"},
					evidence,
					map[string]string{
						"source_ip":       ip,
						"username":        ev.Security.Username,
						"failed_attempts": strconv.Itoa(len(prior)),
					})
			}
		}
	}
	return nil
}

// bruteForceCandidates prefers the success event's own source address. A
// success with no recorded source can complete any attempt series; sources
// are visited in sorted order to keep evaluation deterministic.
func bruteForceCandidates(ev Event, failures map[string][]Event) []string {
	if ip := ev.Security.SourceIp; ip != "" {
		return []string{ip}
	}
	ips := make([]string, 0, len(failures))
	for ip := range failures {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// rulePersistenceAfterAuth fires when an authenticated session is followed
// shortly by a write to a persistence location.
func rulePersistenceAfterAuth(events []Event, deviceID string) *store.Incident {
	for _, auth := range events {
		if !authSuccess(auth) {
			continue
		}
		for _, ev := range events {
			if ev.TsNs <= auth.TsNs || ev.TsNs-auth.TsNs > persistenceSpanNs {
				continue
			}
			class, ok := persistenceCreate(ev)
			if !ok {
				continue
			}
			severity := sevHigh
			if detect.IsUserHomePath(ev.Audit.Path) {
				severity = sevCritical
			}
			return newIncident("persistence_after_auth", deviceID, severity,
				fmt.Sprintf("%s persistence written to %s after %s login", class.Class, ev.Audit.Path, auth.Security.Service),
				[]string{"persistence"},
				class.Techniques,
				[]Event{auth, ev},
				map[string]string{
					"path":              ev.Audit.Path,
					"persistence_class": class.Class,
					"auth_service":      auth.Security.Service,
				})
		}
	}
	return nil
}

var dangerousSudoPatterns = []struct {
	expr     *regexp.Regexp
	severity string
	label    string
}{
	{regexp.MustCompile(`\brm\s+-[rRf]{2,}\s+/(\s|$)`), sevCritical, "recursive delete at filesystem root"},
	{regexp.MustCompile(`\bvisudo\b|/etc/sudoers`), sevCritical, "sudoers modification"},
	{regexp.MustCompile(`\bkextload\b|\bkmutil\s+load\b`), sevCritical, "kernel extension load"},
	{regexp.MustCompile(`\bcsrutil\s+disable\b`), sevCritical, "system integrity protection disable"},
	{regexp.MustCompile(`\bdd\s+.*\bof=/dev/(r?disk|sd)`), sevCritical, "raw disk write"},
	{regexp.MustCompile(`\bspctl\s+--master-disable\b`), sevHigh, "gatekeeper disable"},
	{regexp.MustCompile(`\blaunchctl\s+(load|bootstrap)\b`), sevHigh, "launchd job load"},
	{regexp.MustCompile(`\bdscl\s+\.\s+-create\b`), sevHigh, "local account creation"},
	{regexp.MustCompile(`\bchmod\s+(-R\s+)?0?777\b`), sevHigh, "world-writable permission grant"},
}

// ruleSuspiciousSudo fires on sudo commands matching the dangerous-pattern
// table. First matching pattern wins; the table is ordered worst-first.
func ruleSuspiciousSudo(events []Event, deviceID string) *store.Incident {
	for _, ev := range events {
		if !sudoCommand(ev) {
			continue
		}
		cmd := ev.Security.Command
		for _, p := range dangerousSudoPatterns {
			if !p.expr.MatchString(cmd) {
				continue
			}
			return newIncident("suspicious_sudo", deviceID, p.severity,
				fmt.Sprintf("sudo %s: %s", p.label, cmd),
				[]string{"privilege_escalation"},
				[]string{"T1548.003"},
				[]Event{ev},
				map[string]string{
					"command":  cmd,
					"username": ev.Security.Username,
					"pattern":  p.label,
				})
		}
	}
	return nil
}

// ruleMultiTactic fires when an outbound flow, a process staged in a
// suspicious path, and a persistence write all land within the span.
func ruleMultiTactic(events []Event, deviceID string) *store.Incident {
	var flows, procs, persists []Event
	for _, ev := range events {
		switch {
		case outboundFlow(ev):
			flows = append(flows, ev)
		case ev.Process != nil && detect.IsSuspiciousPath(ev.Process.Executable):
			procs = append(procs, ev)
		default:
			if _, ok := persistenceCreate(ev); ok {
				persists = append(persists, ev)
			}
		}
	}
	for _, f := range flows {
		for _, p := range procs {
			for _, a := range persists {
				lo := min3(f.TsNs, p.TsNs, a.TsNs)
				hi := max3(f.TsNs, p.TsNs, a.TsNs)
				if hi-lo > multiTacticSpanNs {
					continue
				}
				class, _ := persistenceCreate(a)
				return newIncident("multi_tactic_attack", deviceID, sevCritical,
					fmt.Sprintf("coordinated activity: outbound flow to %s:%d, process %s, persistence write to %s",
						f.Flow.DstIp, f.Flow.DstPort, p.Process.Executable, a.Audit.Path),
					[]string{"command_and_control", "execution", "persistence"},
					append([]string{"T1571"}, class.Techniques...),
					[]Event{f, p, a},
					map[string]string{
						"destination":      fmt.Sprintf("%s:%d", f.Flow.DstIp, f.Flow.DstPort),
						"executable":       p.Process.Executable,
						"persistence_path": a.Audit.Path,
					})
			}
		}
	}
	return nil
}

// ruleSSHLateralMovement fires when an inbound SSH login fans out to a
// different remote over SSH shortly after.
func ruleSSHLateralMovement(events []Event, deviceID string) *store.Incident {
	for _, auth := range events {
		if !sshSuccess(auth) {
			continue
		}
		for _, ev := range events {
			if ev.TsNs <= auth.TsNs || ev.TsNs-auth.TsNs > lateralSpanNs {
				continue
			}
			f := ev.Flow
			if f == nil || f.Direction != pb.FlowEvent_OUTBOUND || f.DstPort != 22 {
				continue
			}
			if !strings.EqualFold(f.Protocol, "tcp") {
				continue
			}
			if f.DstIp == "" || f.DstIp == auth.Security.SourceIp {
				continue
			}
			return newIncident("ssh_lateral_movement", deviceID, sevHigh,
				fmt.Sprintf("inbound SSH login from %s followed by outbound SSH to %s", auth.Security.SourceIp, f.DstIp),
				[]string{"lateral_movement"},
				[]string{"T1021.004"},
				[]Event{auth, ev},
				map[string]string{
					"inbound_source":       auth.Security.SourceIp,
					"outbound_destination": f.DstIp,
				})
		}
	}
	return nil
}

// ruleExfiltrationSpike fires when outbound volume to a single destination
// crosses the threshold within the span. Flows are replayed chronologically
// so the first crossing wins.
func ruleExfiltrationSpike(events []Event, deviceID string) *store.Incident {
	perDst := make(map[string][]Event)
	for _, ev := range events {
		if !outboundFlow(ev) || ev.Flow.BytesOut == 0 {
			continue
		}
		dst := ev.Flow.DstIp
		q := append(perDst[dst], ev)
		start := 0
		for start < len(q) && ev.TsNs-q[start].TsNs > exfilSpanNs {
			start++
		}
		q = q[start:]
		perDst[dst] = q

		var sum uint64
		for _, e := range q {
			sum += e.Flow.BytesOut
		}
		if sum < exfilThresholdBytes {
			continue
		}
		return newIncident("exfiltration_spike", deviceID, sevCritical,
			fmt.Sprintf("%d bytes sent to %s within %d s", sum, dst, exfilSpanNs/int64(time.Second)),
			[]string{"exfiltration"},
			[]string{"T1041"},
			append([]Event(nil), q...),
			map[string]string{
				"destination": dst,
				"bytes_out":   strconv.FormatUint(sum, 10),
			})
	}
	return nil
}

// ruleSuspiciousProcessTree fires on executables staged under temp or
// download directories spawned from an interactive shell. A flow right
// after the spawn escalates severity.
func ruleSuspiciousProcessTree(events []Event, deviceID string) *store.Incident {
	for _, ev := range events {
		p := ev.Process
		if p == nil || !detect.IsInteractiveShell(p.ParentExecutable) {
			continue
		}
		if !stagedExecPath(p.Executable) {
			continue
		}
		severity := sevHigh
		evidence := []Event{ev}
		meta := map[string]string{
			"executable": p.Executable,
			"parent":     p.ParentExecutable,
		}
		for _, f := range events {
			if f.Flow == nil || f.TsNs < ev.TsNs || f.TsNs-ev.TsNs > processFlowSpanNs {
				continue
			}
			severity = sevCritical
			evidence = append(evidence, f)
			meta["flow_destination"] = fmt.Sprintf("%s:%d", f.Flow.DstIp, f.Flow.DstPort)
			break
		}
		return newIncident("suspicious_process_tree", deviceID, severity,
			fmt.Sprintf("%s spawned from interactive shell %s", p.Executable, p.ParentExecutable),
			[]string{"execution"},
			[]string{"T1059"},
			evidence, meta)
	}
	return nil
}

func stagedExecPath(path string) bool {
	for _, prefix := range []string{"/tmp/", "/private/tmp/", "/var/tmp/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return strings.Contains(path, "/Downloads/")
}

func min3(a, b, c int64) int64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max3(a, b, c int64) int64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
