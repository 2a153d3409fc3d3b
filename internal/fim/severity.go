package fim

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Vardhan-225/Amoskys-sub000/internal/detect"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Roots whose binaries being swapped out is always critical.
var systemBinaryRoots = []string{
	"/usr/bin/", "/usr/sbin/", "/usr/lib/", "/usr/libexec/",
	"/bin/", "/sbin/", "/System/",
}

// Roots whose config being rewritten is always critical.
var systemConfigRoots = []string{"/etc/"}

var webRoots = []string{
	"/var/www/", "/srv/www/", "/usr/share/nginx/", "/Library/WebServer/",
}

var webshellExtensions = map[string]bool{
	".php": true, ".php5": true, ".phtml": true,
	".jsp": true, ".jspx": true,
	".asp": true, ".aspx": true,
	".war": true, ".cgi": true,
}

// Roots where a world-writable file is a privilege-escalation foothold.
var sensitiveRoots = []string{"/etc/", "/usr/", "/Library/", "/var/", "/opt/"}

// classify stamps severity, techniques and a human detail onto a raw change.
// Precedence: new SUID/SGID, webshell under web root, system roots, launch
// persistence locations, world-writable under sensitive roots, then the WARN
// default every monitored-root change carries.
func classify(c Change) Change {
	switch {
	case gainedSetID(c):
		c.Severity = pb.TelemetryEvent_CRITICAL
		c.MitreTechniques = []string{"T1548.001"}
		c.Detail = "file gained SUID/SGID bits"
	case isWebshell(c):
		c.Severity = pb.TelemetryEvent_CRITICAL
		c.MitreTechniques = []string{"T1505.003"}
		c.Detail = "webshell-suspicious extension under web root"
	case hasPrefixAny(c.Path, systemBinaryRoots):
		c.Severity = pb.TelemetryEvent_CRITICAL
		c.MitreTechniques = []string{"T1554"}
		c.Detail = fmt.Sprintf("%s under system binary root", strings.ToLower(string(c.Type)))
	case hasPrefixAny(c.Path, systemConfigRoots) && !isLaunchPersistence(c.Path):
		c.Severity = pb.TelemetryEvent_CRITICAL
		c.MitreTechniques = []string{"T1565.001"}
		c.Detail = fmt.Sprintf("%s under system config root", strings.ToLower(string(c.Type)))
	case isLaunchPersistence(c.Path):
		class, _ := detect.ClassifyPersistencePath(c.Path)
		c.Severity = pb.TelemetryEvent_ERROR
		c.MitreTechniques = class.Techniques
		c.Detail = fmt.Sprintf("%s persistence location touched", class.Class)
	case becameWorldWritable(c) && hasPrefixAny(c.Path, sensitiveRoots):
		c.Severity = pb.TelemetryEvent_ERROR
		c.MitreTechniques = []string{"T1222.002"}
		c.Detail = "world-writable under sensitive root"
	default:
		c.Severity = pb.TelemetryEvent_WARN
		c.Detail = fmt.Sprintf("%s in monitored root", strings.ToLower(string(c.Type)))
	}
	return c
}

func gainedSetID(c Change) bool {
	if c.New == nil || (!c.New.IsSUID && !c.New.IsSGID) {
		return false
	}
	if c.Old == nil {
		return true
	}
	return (c.New.IsSUID && !c.Old.IsSUID) || (c.New.IsSGID && !c.Old.IsSGID)
}

func isWebshell(c Change) bool {
	if c.Type != ChangeCreated && c.Type != ChangeModified {
		return false
	}
	if !webshellExtensions[strings.ToLower(filepath.Ext(c.Path))] {
		return false
	}
	return hasPrefixAny(c.Path, webRoots)
}

func isLaunchPersistence(path string) bool {
	class, ok := detect.ClassifyPersistencePath(path)
	if !ok {
		return false
	}
	switch class.Class {
	case "launch_agent", "launch_daemon", "cron", "systemd_unit", "startup_item":
		return true
	}
	return false
}

func becameWorldWritable(c Change) bool {
	if c.New == nil || !c.New.IsWorldWritable {
		return false
	}
	return c.Old == nil || !c.Old.IsWorldWritable
}

func hasPrefixAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
