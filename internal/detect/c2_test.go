package detect

import (
	"testing"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestC2Indicators_HighRiskPort(t *testing.T) {
	flow := &pb.FlowEvent{
		SrcIp: "192.168.1.20", SrcPort: 52311,
		DstIp: "203.0.113.5", DstPort: 4444,
		Protocol: "tcp", Direction: pb.FlowEvent_OUTBOUND,
		BytesIn: 900, BytesOut: 1200,
	}
	inds := C2Indicators(flow)
	require.NotEmpty(t, inds)
	assert.Equal(t, IndicatorC2, inds[0].IndicatorType)
	assert.Contains(t, inds[0].Description, "4444")
	assert.Contains(t, inds[0].MitreTechniques, "T1571")
}

func TestC2Indicators_NonStandardEgress(t *testing.T) {
	flow := &pb.FlowEvent{
		SrcIp: "10.0.0.7", SrcPort: 49881,
		DstIp: "198.51.100.40", DstPort: 7777,
		Protocol: "tcp", Direction: pb.FlowEvent_OUTBOUND,
	}
	inds := C2Indicators(flow)
	require.NotEmpty(t, inds)
	found := false
	for _, ind := range inds {
		if ind.IndicatorType == IndicatorC2 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestC2Indicators_ByteRatio(t *testing.T) {
	flow := &pb.FlowEvent{
		SrcIp: "10.0.0.7", SrcPort: 49881,
		DstIp: "198.51.100.40", DstPort: 443,
		Protocol: "tcp", Direction: pb.FlowEvent_OUTBOUND,
		BytesIn: 10_000, BytesOut: 900_000,
	}
	inds := C2Indicators(flow)
	require.NotEmpty(t, inds)
	assert.Equal(t, IndicatorExfiltration, inds[0].IndicatorType)
	assert.Contains(t, inds[0].MitreTechniques, "T1041")
}

func TestC2Indicators_CleanTrafficPasses(t *testing.T) {
	flow := &pb.FlowEvent{
		SrcIp: "192.168.1.20", SrcPort: 52311,
		DstIp: "142.250.80.46", DstPort: 443,
		Protocol: "tcp", Direction: pb.FlowEvent_OUTBOUND,
		BytesIn: 48_000, BytesOut: 6_000,
	}
	assert.Empty(t, C2Indicators(flow))
	assert.Nil(t, C2Indicators(nil))
}

func TestPersistenceWrite(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		content   string
		class     string
		technique string
	}{
		{"system launch agent", "/Library/LaunchAgents/com.evil.plist", "", "launch_agent", "T1543.001"},
		{"user launch agent", "/Users/alice/Library/LaunchAgents/com.evil.plist", "", "launch_agent", "T1543.001"},
		{"launch daemon", "/Library/LaunchDaemons/com.evil.plist", "", "launch_daemon", "T1543.004"},
		{"cron drop", "/etc/cron.d/backdoor", "", "cron", "T1053.003"},
		{"authorized keys", "/Users/alice/.ssh/authorized_keys", "", "authorized_keys", "T1098.004"},
		{"zshrc", "/Users/alice/.zshrc", "", "shell_profile", "T1546.004"},
		{"systemd unit", "/etc/systemd/system/evil.service", "", "systemd_unit", "T1543.002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind := PersistenceWrite(tt.path, tt.content)
			require.NotNil(t, ind)
			assert.Equal(t, IndicatorPersistence, ind.IndicatorType)
			assert.Contains(t, ind.Description, tt.class)
			assert.Contains(t, ind.MitreTechniques, tt.technique)
		})
	}

	assert.Nil(t, PersistenceWrite("/Users/alice/notes.txt", ""), "non-persistence path must not trip")
}

func TestPersistenceWrite_ContentBoost(t *testing.T) {
	plain := PersistenceWrite("/Library/LaunchAgents/com.x.plist", "")
	boosted := PersistenceWrite("/Library/LaunchAgents/com.x.plist", `<plist><key>RunAtLoad</key><string>/tmp/agent</string></plist>`)
	require.NotNil(t, plain)
	require.NotNil(t, boosted)
	assert.Greater(t, boosted.Confidence, plain.Confidence)
}

func TestClassifyPersistencePath_Misses(t *testing.T) {
	for _, path := range []string{
		"/Users/alice/Documents/report.pdf",
		"/var/log/system.log",
		"/usr/bin/ls",
	} {
		_, ok := ClassifyPersistencePath(path)
		assert.False(t, ok, "%q must not classify as persistence", path)
	}
}

func TestIsUserHomePath(t *testing.T) {
	assert.True(t, IsUserHomePath("/Users/alice/Library/LaunchAgents/x.plist"))
	assert.True(t, IsUserHomePath("/home/bob/.ssh/authorized_keys"))
	assert.False(t, IsUserHomePath("/Library/LaunchDaemons/x.plist"))
}
