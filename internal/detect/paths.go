package detect

import (
	"path/filepath"
	"strings"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Trusted roots short-circuit the suspicious-path check. Anything the OS
// vendor or a package manager owns is assumed clean here; FIM covers
// tampering with those roots separately.
var trustedPathPrefixes = []string{
	"/usr/bin/",
	"/usr/sbin/",
	"/usr/libexec/",
	"/usr/local/bin/",
	"/bin/",
	"/sbin/",
	"/System/",
	"/Applications/",
	"/Library/Apple/",
	"/opt/homebrew/bin/",
}

// Locations attackers favor for droppers and staging.
var suspiciousPathPrefixes = []string{
	"/tmp/",
	"/private/tmp/",
	"/var/tmp/",
	"/dev/shm/",
}

var suspiciousPathMarkers = []string{
	"/Downloads/",
}

// IsSuspiciousPath reports whether an executable path points at a location
// attackers favor. Trusted system roots win immediately; then blacklisted
// prefixes, Downloads, hidden directories and randomized base names are
// checked in that order.
func IsSuspiciousPath(path string) bool {
	if path == "" {
		return false
	}
	for _, p := range trustedPathPrefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	for _, p := range suspiciousPathPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, m := range suspiciousPathMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	if strings.Contains(path, "/.") {
		// Executables under hidden directories, e.g. ~/.cache/x.
		return true
	}
	return looksGeneratedName(filepath.Base(path))
}

// SuspiciousPathIndicator renders a positive IsSuspiciousPath check as a
// threat indicator; nil for clean paths.
func SuspiciousPathIndicator(path string) *pb.ThreatIndicator {
	if !IsSuspiciousPath(path) {
		return nil
	}
	return newIndicator(
		IndicatorSuspiciousPath,
		path,
		0.6,
		PhaseExecution,
		[]string{"T1036"},
		"executable in a staging or throwaway location",
	)
}

// looksGeneratedName flags hex or base64-like base names of the kind
// droppers are written out with. Requires at least 8 characters.
func looksGeneratedName(name string) bool {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if len(name) < 8 {
		return false
	}
	if isHexString(name) {
		return true
	}
	// Base64-ish: long, dense alphabet with digits and mixed case, high
	// entropy. The extra charset checks keep camelCase identifiers out.
	if len(name) >= 12 && isBase64Alphabet(name) && hasDigit(name) && hasMixedCase(name) && ShannonEntropy(name) > 3.5 {
		return true
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func hasMixedCase(s string) bool {
	var lower, upper bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		}
	}
	return lower && upper
}

func isHexString(s string) bool {
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return hasDigit
}

func isBase64Alphabet(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '+' || r == '/' || r == '=' || r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
