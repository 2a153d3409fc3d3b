package detect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

var reverseShellPatterns = compilePatterns(
	`(?i)bash\s+-i\s+.*\/dev\/tcp\/`,
	`(?i)sh\s+-i\s+>?&?\s*\/dev\/(tcp|udp)\/`,
	`(?i)\bnc\b.*\s-e\s*\/bin\/(ba|z)?sh`,
	`(?i)mkfifo\s+\S+.*\|\s*\bnc\b`,
	`(?i)python[23]?\s+-c\s+.*socket.*connect.*(dup2|pty\.spawn)`,
	`(?i)perl\s+-e\s+.*socket.*exec`,
	`(?i)ruby\s+-rsocket\s+-e`,
	`(?i)socat\s+.*exec:`,
	`(?i)php\s+-r\s+.*fsockopen`,
)

var interactiveShells = map[string]bool{
	"bash": true,
	"sh":   true,
	"zsh":  true,
	"dash": true,
	"ksh":  true,
	"fish": true,
	"csh":  true,
	"tcsh": true,
}

// expectedShellPorts are the outbound ports a shell process plausibly talks
// to through child tooling; anything else is flagged.
var expectedShellPorts = map[uint32]bool{22: true, 80: true, 443: true}

// ReverseShellIndicator scans a command line for reverse-shell invocations.
// Returns nil when nothing matches.
func ReverseShellIndicator(cmdline string) *pb.ThreatIndicator {
	if cmdline == "" {
		return nil
	}
	for _, p := range reverseShellPatterns {
		if p.MatchString(cmdline) {
			return newIndicator(
				IndicatorReverseShell,
				cmdline,
				0.9,
				PhaseExecution,
				[]string{"T1059.004"},
				"command line matches a reverse shell invocation",
			)
		}
	}
	return nil
}

// IsInteractiveShell reports whether the executable is a login/interactive
// shell binary, by base name.
func IsInteractiveShell(executable string) bool {
	return interactiveShells[filepath.Base(executable)]
}

// ShellOddPortIndicator flags an interactive shell holding an outbound
// connection on a port outside {22, 80, 443}. Returns nil for non-shell
// executables and expected ports.
func ShellOddPortIndicator(executable, dstIP string, dstPort uint32) *pb.ThreatIndicator {
	if !IsInteractiveShell(executable) || expectedShellPorts[dstPort] {
		return nil
	}
	value := fmt.Sprintf("%s -> %s:%d", filepath.Base(executable), dstIP, dstPort)
	return newIndicator(
		IndicatorReverseShell,
		value,
		0.7,
		PhaseCommandAndControl,
		[]string{"T1059.004", "T1571"},
		fmt.Sprintf("shell %s connected out on non-standard port %d", strings.ToLower(filepath.Base(executable)), dstPort),
	)
}
