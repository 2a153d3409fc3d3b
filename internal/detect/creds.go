package detect

import (
	"fmt"
	"strings"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Credential stores worth alerting on when read or copied. Matched anywhere
// in the path so user homes are covered without expansion.
var sensitiveCredPaths = []string{
	"/Library/Keychains/",
	"/.ssh/id_rsa",
	"/.ssh/id_ed25519",
	"/.ssh/id_ecdsa",
	"/.aws/credentials",
	"/.config/gcloud/",
	"/.azure/",
	"/.netrc",
	"/.docker/config.json",
	"/.kube/config",
	"/etc/shadow",
	"/Login Data",
	"/logins.json",
	"/key4.db",
	"/Cookies",
}

var credCommandPatterns = compilePatterns(
	`(?i)security\s+find-(generic|internet)-password`,
	`(?i)security\s+dump-keychain`,
	`(?i)sqlite3\s+.*login\s?data`,
	`(?i)(cp|cat|scp|rsync)\s+.*\.ssh/id_(rsa|ed25519|ecdsa|dsa)\b`,
	`(?i)(cat|cp|less|head)\s+.*(\.aws/credentials|\.netrc|/etc/shadow)`,
	`(?i)dscl\s+\.?\s*-read\s+/Users/.*Password`,
	`(?i)(mimikatz|lazagne|hashdump)`,
)

// CredentialPathIndicator flags access to a known credential store path.
func CredentialPathIndicator(path string) *pb.ThreatIndicator {
	for _, marker := range sensitiveCredPaths {
		if strings.Contains(path, marker) {
			return newIndicator(
				IndicatorCredentialAccess,
				path,
				0.8,
				PhaseCredentialAccess,
				[]string{"T1555", "T1552.001"},
				fmt.Sprintf("access to credential store (%s)", strings.Trim(marker, "/")),
			)
		}
	}
	return nil
}

// CredentialCommandIndicator flags command lines that harvest credentials.
func CredentialCommandIndicator(cmdline string) *pb.ThreatIndicator {
	if cmdline == "" {
		return nil
	}
	for _, p := range credCommandPatterns {
		if p.MatchString(cmdline) {
			return newIndicator(
				IndicatorCredentialAccess,
				cmdline,
				0.85,
				PhaseCredentialAccess,
				[]string{"T1555", "T1003"},
				"command line matches credential harvesting pattern",
			)
		}
	}
	return nil
}
