package detect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// PersistenceClass names a persistence mechanism and its ATT&CK techniques.
type PersistenceClass struct {
	Class      string
	Techniques []string
}

type persistencePath struct {
	// contains matches anywhere in the path so both /Library/... and
	// /Users/<name>/Library/... hit the same class.
	contains string
	class    PersistenceClass
}

var persistencePaths = []persistencePath{
	{"/Library/LaunchAgents/", PersistenceClass{"launch_agent", []string{"T1543.001"}}},
	{"/Library/LaunchDaemons/", PersistenceClass{"launch_daemon", []string{"T1543.004"}}},
	{"/Library/StartupItems/", PersistenceClass{"startup_item", []string{"T1037.005"}}},
	{"/etc/cron.d/", PersistenceClass{"cron", []string{"T1053.003"}}},
	{"/etc/cron.daily/", PersistenceClass{"cron", []string{"T1053.003"}}},
	{"/etc/cron.hourly/", PersistenceClass{"cron", []string{"T1053.003"}}},
	{"/var/spool/cron/", PersistenceClass{"cron", []string{"T1053.003"}}},
	{"/etc/crontab", PersistenceClass{"cron", []string{"T1053.003"}}},
	{"/etc/periodic/", PersistenceClass{"periodic", []string{"T1053.003"}}},
	{"/etc/emond.d/", PersistenceClass{"emond", []string{"T1546.014"}}},
	{"/Library/Security/SecurityAgentPlugins/", PersistenceClass{"auth_plugin", []string{"T1547.002"}}},
	{"/.ssh/authorized_keys", PersistenceClass{"authorized_keys", []string{"T1098.004"}}},
	{"/etc/systemd/system/", PersistenceClass{"systemd_unit", []string{"T1543.002"}}},
	{"/etc/init.d/", PersistenceClass{"init_script", []string{"T1037"}}},
	{"/etc/rc.local", PersistenceClass{"rc_script", []string{"T1037"}}},
}

// Shell profile base names, matched exactly against the file name.
var shellProfileNames = map[string]bool{
	".bashrc":       true,
	".bash_profile": true,
	".bash_login":   true,
	".profile":      true,
	".zshrc":        true,
	".zprofile":     true,
	".zshenv":       true,
	".zlogin":       true,
}

var shellProfileClass = PersistenceClass{"shell_profile", []string{"T1546.004"}}

// ClassifyPersistencePath maps a filesystem path onto a persistence class.
// The boolean is false when the path is not a known persistence location.
func ClassifyPersistencePath(path string) (PersistenceClass, bool) {
	if shellProfileNames[filepath.Base(path)] {
		return shellProfileClass, true
	}
	for _, p := range persistencePaths {
		if strings.Contains(path, p.contains) {
			return p.class, true
		}
	}
	return PersistenceClass{}, false
}

// contentBoostMarkers raise confidence when the written content looks like a
// staged loader rather than an ordinary config edit.
var contentBoostMarkers = []string{
	"<plist",
	"RunAtLoad",
	"ProgramArguments",
	"/tmp/",
	"/var/tmp/",
	"/private/tmp/",
	"curl ",
	"curl\t",
}

// PersistenceWrite classifies a write to path as a persistence attempt.
// content may be empty when the watcher only sees metadata; when present it
// boosts confidence on plist keywords, temp-path references and curl use.
// Returns nil for paths outside the tripwire map.
func PersistenceWrite(path, content string) *pb.ThreatIndicator {
	class, ok := ClassifyPersistencePath(path)
	if !ok {
		return nil
	}
	confidence := 0.7
	for _, marker := range contentBoostMarkers {
		if strings.Contains(content, marker) {
			confidence += 0.15
			break
		}
	}
	return newIndicator(
		IndicatorPersistence,
		path,
		confidence,
		PhasePersistence,
		class.Techniques,
		fmt.Sprintf("write to %s persistence location", class.Class),
	)
}

// IsUserHomePath reports whether the path sits under a user home directory.
// Escalation rules treat user-scoped persistence as worse than system-wide
// because it survives without root.
func IsUserHomePath(path string) bool {
	return strings.HasPrefix(path, "/Users/") || strings.HasPrefix(path, "/home/") || strings.HasPrefix(path, "/root/")
}
