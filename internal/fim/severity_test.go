package fim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// ============================================================================
// CHANGE CLASSIFICATION
// ============================================================================

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		change   Change
		severity pb.TelemetryEvent_Severity
		techs    []string
	}{
		{
			name: "suid gained beats everything",
			change: Change{
				Path: "/tmp/backdoor", Type: ChangeModified,
				Old: &FileState{}, New: &FileState{IsSUID: true},
			},
			severity: pb.TelemetryEvent_CRITICAL,
			techs:    []string{"T1548.001"},
		},
		{
			name: "suid on new file under system root still reports setid",
			change: Change{
				Path: "/usr/bin/pseudo", Type: ChangeCreated,
				New: &FileState{IsSUID: true},
			},
			severity: pb.TelemetryEvent_CRITICAL,
			techs:    []string{"T1548.001"},
		},
		{
			name: "webshell dropped under web root",
			change: Change{
				Path: "/var/www/html/uploads/shell.php", Type: ChangeCreated,
				New: &FileState{},
			},
			severity: pb.TelemetryEvent_CRITICAL,
			techs:    []string{"T1505.003"},
		},
		{
			name: "php outside web root is just a default change",
			change: Change{
				Path: "/home/dev/site/index.php", Type: ChangeCreated,
				New: &FileState{},
			},
			severity: pb.TelemetryEvent_WARN,
		},
		{
			name: "webshell extension on deletion does not trigger",
			change: Change{
				Path: "/var/www/html/shell.php", Type: ChangeDeleted,
				Old: &FileState{},
			},
			severity: pb.TelemetryEvent_WARN,
		},
		{
			name: "system binary replaced",
			change: Change{
				Path: "/usr/bin/ls", Type: ChangeModified,
				Old: &FileState{}, New: &FileState{},
			},
			severity: pb.TelemetryEvent_CRITICAL,
			techs:    []string{"T1554"},
		},
		{
			name: "system binary deleted",
			change: Change{
				Path: "/usr/bin/sudo", Type: ChangeDeleted,
				Old: &FileState{IsSUID: true},
			},
			severity: pb.TelemetryEvent_CRITICAL,
			techs:    []string{"T1554"},
		},
		{
			name: "system config rewritten",
			change: Change{
				Path: "/etc/passwd", Type: ChangeModified,
				Old: &FileState{}, New: &FileState{},
			},
			severity: pb.TelemetryEvent_CRITICAL,
			techs:    []string{"T1565.001"},
		},
		{
			name: "cron drop wins over the config-root rule",
			change: Change{
				Path: "/etc/cron.d/backdoor", Type: ChangeCreated,
				New: &FileState{},
			},
			severity: pb.TelemetryEvent_ERROR,
			techs:    []string{"T1053.003"},
		},
		{
			name: "launch daemon plist",
			change: Change{
				Path: "/Library/LaunchDaemons/com.evil.persist.plist", Type: ChangeCreated,
				New: &FileState{},
			},
			severity: pb.TelemetryEvent_ERROR,
			techs:    []string{"T1543.004"},
		},
		{
			name: "world-writable flip under sensitive root",
			change: Change{
				Path: "/opt/app/config.yaml", Type: ChangePermission,
				Old: &FileState{Mode: 0o644}, New: &FileState{Mode: 0o666, IsWorldWritable: true},
			},
			severity: pb.TelemetryEvent_ERROR,
			techs:    []string{"T1222.002"},
		},
		{
			name: "already world-writable stays default",
			change: Change{
				Path: "/opt/app/scratch.log", Type: ChangeModified,
				Old: &FileState{IsWorldWritable: true}, New: &FileState{IsWorldWritable: true},
			},
			severity: pb.TelemetryEvent_WARN,
		},
		{
			name: "plain user file",
			change: Change{
				Path: "/home/dev/notes.txt", Type: ChangeModified,
				Old: &FileState{}, New: &FileState{},
			},
			severity: pb.TelemetryEvent_WARN,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.change)
			assert.Equal(t, tc.severity, got.Severity, "severity for %s", tc.change.Path)
			if tc.techs != nil {
				assert.Equal(t, tc.techs, got.MitreTechniques)
			}
			assert.NotEmpty(t, got.Detail)
		})
	}
}

func TestGainedSetID(t *testing.T) {
	assert.False(t, gainedSetID(Change{
		Old: &FileState{IsSUID: true}, New: &FileState{IsSUID: true},
	}), "pre-existing suid is not a gain")
	assert.True(t, gainedSetID(Change{
		Old: &FileState{}, New: &FileState{IsSGID: true},
	}))
	assert.True(t, gainedSetID(Change{New: &FileState{IsSUID: true}}),
		"created suid counts as gained")
	assert.False(t, gainedSetID(Change{Old: &FileState{IsSUID: true}}),
		"deletion has no new state")
}

func TestBecameWorldWritable(t *testing.T) {
	assert.True(t, becameWorldWritable(Change{
		Old: &FileState{}, New: &FileState{IsWorldWritable: true},
	}))
	assert.False(t, becameWorldWritable(Change{
		Old: &FileState{IsWorldWritable: true}, New: &FileState{IsWorldWritable: true},
	}))
	assert.False(t, becameWorldWritable(Change{Old: &FileState{IsWorldWritable: true}}))
}
