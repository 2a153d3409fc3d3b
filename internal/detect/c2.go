package detect

import (
	"fmt"
	"net"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// highRiskPorts carry known C2 framework defaults and anonymity-network
// entry ports.
var highRiskPorts = map[uint32]string{
	1080:  "socks proxy",
	1337:  "common backdoor",
	4444:  "metasploit default",
	5555:  "adb / common backdoor",
	6667:  "irc",
	6697:  "irc over tls",
	8081:  "alt http",
	9001:  "tor or",
	9050:  "tor socks",
	12345: "netbus",
	31337: "elite backdoor",
	54321: "common backdoor",
}

// Standard egress ports that never trip the non-standard-egress heuristic.
var standardEgressPorts = map[uint32]bool{
	22: true, 25: true, 53: true, 80: true, 110: true, 123: true,
	143: true, 443: true, 465: true, 587: true, 853: true, 993: true,
	995: true, 8080: true, 8443: true,
}

// byteRatioThreshold: a flow pushing 10x more out than in looks like staging
// or exfil rather than an interactive protocol.
const byteRatioThreshold = 10.0

// C2Indicators inspects one flow for command-and-control traits: high-risk
// destination ports, private-to-public egress on non-standard ports, and a
// lopsided outbound byte ratio.
func C2Indicators(f *pb.FlowEvent) []*pb.ThreatIndicator {
	if f == nil {
		return nil
	}
	var out []*pb.ThreatIndicator

	if label, ok := highRiskPorts[f.DstPort]; ok {
		out = append(out, newIndicator(
			IndicatorC2,
			fmt.Sprintf("%s:%d", f.DstIp, f.DstPort),
			0.75,
			PhaseCommandAndControl,
			[]string{"T1571"},
			fmt.Sprintf("connection to high-risk port %d (%s)", f.DstPort, label),
		))
	}

	if f.Direction == pb.FlowEvent_OUTBOUND &&
		isPrivateAddr(f.SrcIp) && isPublicAddr(f.DstIp) &&
		!standardEgressPorts[f.DstPort] {
		out = append(out, newIndicator(
			IndicatorC2,
			fmt.Sprintf("%s -> %s:%d", f.SrcIp, f.DstIp, f.DstPort),
			0.5,
			PhaseCommandAndControl,
			[]string{"T1571"},
			fmt.Sprintf("private-to-public egress on non-standard port %d", f.DstPort),
		))
	}

	if f.BytesIn > 0 && float64(f.BytesOut)/float64(f.BytesIn) > byteRatioThreshold {
		out = append(out, newIndicator(
			IndicatorExfiltration,
			fmt.Sprintf("%s:%d", f.DstIp, f.DstPort),
			0.55,
			PhaseExfiltration,
			[]string{"T1041"},
			fmt.Sprintf("outbound/inbound byte ratio %.1f", float64(f.BytesOut)/float64(f.BytesIn)),
		))
	}

	return out
}

func isPrivateAddr(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && (ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast())
}

func isPublicAddr(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() && !ip.IsUnspecified() && !ip.IsMulticast()
}
