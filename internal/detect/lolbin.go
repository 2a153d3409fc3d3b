package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// lolbinRule pairs a host binary with the command-line shapes that indicate
// it is being lived off of rather than used legitimately.
type lolbinRule struct {
	binary     string
	patterns   []*regexp.Regexp
	techniques []string
	confidence float64
}

var lolbinRules = []lolbinRule{
	{
		binary: "osascript",
		patterns: compilePatterns(
			`(?i)osascript\s+-e\s+.*(do shell script|system events|display dialog)`,
			`(?i)osascript\s+.*\.scpt`,
		),
		techniques: []string{"T1059.002"},
		confidence: 0.75,
	},
	{
		binary: "curl",
		patterns: compilePatterns(
			`(?i)curl\s+[^|]*\|\s*(ba|z)?sh`,
			`(?i)curl\s+.*(-o|--output)\s+/(tmp|var/tmp|private/tmp|dev/shm)/`,
			`(?i)curl\s+.*--insecure`,
		),
		techniques: []string{"T1105"},
		confidence: 0.8,
	},
	{
		binary: "bash",
		patterns: compilePatterns(
			`(?i)bash\s+-i\b`,
			`/dev/tcp/`,
			`(?i)bash\s+-c\s+.*(base64\s+(-d|--decode)|eval)`,
		),
		techniques: []string{"T1059.004"},
		confidence: 0.7,
	},
	{
		binary: "python",
		patterns: compilePatterns(
			`(?i)python[23]?\s+-c\s+.*(socket|subprocess|pty|os\.system)`,
			`(?i)python[23]?\s+-m\s+http\.server`,
		),
		techniques: []string{"T1059.006"},
		confidence: 0.7,
	},
	{
		binary: "openssl",
		patterns: compilePatterns(
			`(?i)openssl\s+s_client\s+.*-connect`,
			`(?i)openssl\s+enc\s+.*-(aes|des)`,
		),
		techniques: []string{"T1573.002"},
		confidence: 0.65,
	},
	{
		binary: "nc",
		patterns: compilePatterns(
			`(?i)\bnc(\.(traditional|openbsd))?\s+.*\s-(e|c)\b`,
			`(?i)\bnc(\.(traditional|openbsd))?\s+.*-l\s*(-p)?\s*\d+`,
		),
		techniques: []string{"T1095"},
		confidence: 0.8,
	},
	{
		binary: "dscl",
		patterns: compilePatterns(
			`(?i)dscl\s+\.?\s*-create\s+/Users/`,
			`(?i)dscl\s+\.?\s*-passwd\s+/Users/`,
			`(?i)dscl\s+\.?\s*-append\s+/Groups/admin`,
		),
		techniques: []string{"T1136.001", "T1098"},
		confidence: 0.85,
	},
	{
		binary: "defaults",
		patterns: compilePatterns(
			`(?i)defaults\s+write\s+.*loginwindow.*LoginHook`,
			`(?i)defaults\s+write\s+.*\.plist`,
		),
		techniques: []string{"T1547.015"},
		confidence: 0.6,
	},
	{
		binary: "launchctl",
		patterns: compilePatterns(
			`(?i)launchctl\s+(load|bootstrap|submit)\b`,
		),
		techniques: []string{"T1543.001"},
		confidence: 0.7,
	},
	{
		binary: "security",
		patterns: compilePatterns(
			`(?i)security\s+find-(generic|internet)-password`,
			`(?i)security\s+dump-keychain`,
			`(?i)security\s+export\b`,
		),
		techniques: []string{"T1555.001"},
		confidence: 0.85,
	},
	{
		binary: "sqlite3",
		patterns: compilePatterns(
			`(?i)sqlite3\s+.*login\s?data`,
			`(?i)sqlite3\s+.*(cookies|places|signons)\.sqlite`,
		),
		techniques: []string{"T1555.003"},
		confidence: 0.85,
	},
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// LOLBinIndicators matches a command line against the living-off-the-land
// table and returns one indicator per binary whose patterns fire.
func LOLBinIndicators(cmdline string) []*pb.ThreatIndicator {
	if cmdline == "" {
		return nil
	}
	var out []*pb.ThreatIndicator
	for _, rule := range lolbinRules {
		if !strings.Contains(cmdline, rule.binary) {
			continue
		}
		for _, p := range rule.patterns {
			if p.MatchString(cmdline) {
				out = append(out, newIndicator(
					IndicatorLOLBin,
					cmdline,
					rule.confidence,
					PhaseExecution,
					rule.techniques,
					fmt.Sprintf("abuse pattern for host binary %q", rule.binary),
				))
				break
			}
		}
	}
	return out
}
