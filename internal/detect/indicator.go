// Package detect holds the agent-side detection primitives. Every function
// here is deterministic: the same input always yields the same indicators,
// and nothing reads the clock. Collectors stamp timestamps on the results
// they keep.
package detect

import "github.com/Vardhan-225/Amoskys-sub000/pb"

// Indicator types emitted by this package.
const (
	IndicatorDGA              = "dga_domain"
	IndicatorBeacon           = "beaconing"
	IndicatorSuspiciousPath   = "suspicious_path"
	IndicatorLOLBin           = "lolbin_execution"
	IndicatorReverseShell     = "reverse_shell"
	IndicatorPersistence      = "persistence_write"
	IndicatorC2               = "c2_connection"
	IndicatorCredentialAccess = "credential_access"
	IndicatorExfiltration     = "exfiltration"
)

// Attack phases follow MITRE ATT&CK tactic names.
const (
	PhaseExecution         = "execution"
	PhasePersistence       = "persistence"
	PhaseCredentialAccess  = "credential_access"
	PhaseLateralMovement   = "lateral_movement"
	PhaseCommandAndControl = "command_and_control"
	PhaseExfiltration      = "exfiltration"
	PhaseDefenseEvasion    = "defense_evasion"
)

func newIndicator(itype, value string, confidence float64, phase string, techniques []string, desc string) *pb.ThreatIndicator {
	if confidence > 1.0 {
		confidence = 1.0
	}
	return &pb.ThreatIndicator{
		IndicatorType:   itype,
		Value:           value,
		Confidence:      confidence,
		AttackPhase:     phase,
		MitreTechniques: techniques,
		Description:     desc,
		Source:          "amoskys.detect",
	}
}
