package pb

// DeviceTelemetry_DeviceType classifies the reporting endpoint.
type DeviceTelemetry_DeviceType int32

const (
	DeviceTelemetry_DEVICE_UNSPECIFIED DeviceTelemetry_DeviceType = 0
	DeviceTelemetry_ENDPOINT           DeviceTelemetry_DeviceType = 1
	DeviceTelemetry_MEDICAL            DeviceTelemetry_DeviceType = 2
	DeviceTelemetry_INDUSTRIAL         DeviceTelemetry_DeviceType = 3
	DeviceTelemetry_IOT                DeviceTelemetry_DeviceType = 4
	DeviceTelemetry_NETWORK            DeviceTelemetry_DeviceType = 5
)

func (t DeviceTelemetry_DeviceType) String() string {
	switch t {
	case DeviceTelemetry_ENDPOINT:
		return "ENDPOINT"
	case DeviceTelemetry_MEDICAL:
		return "MEDICAL"
	case DeviceTelemetry_INDUSTRIAL:
		return "INDUSTRIAL"
	case DeviceTelemetry_IOT:
		return "IOT"
	case DeviceTelemetry_NETWORK:
		return "NETWORK"
	default:
		return "UNSPECIFIED"
	}
}

// DeviceTelemetry batches host events collected in one pass.
type DeviceTelemetry struct {
	DeviceId       string
	DeviceType     DeviceTelemetry_DeviceType
	CollectionTsNs uint64
	Events         []*TelemetryEvent
}

type TelemetryEvent_EventType int32

const (
	TelemetryEvent_EVENT_UNSPECIFIED TelemetryEvent_EventType = 0
	TelemetryEvent_SECURITY          TelemetryEvent_EventType = 1
	TelemetryEvent_FLOW              TelemetryEvent_EventType = 2
	TelemetryEvent_PROCESS           TelemetryEvent_EventType = 3
	TelemetryEvent_AUDIT             TelemetryEvent_EventType = 4
)

func (t TelemetryEvent_EventType) String() string {
	switch t {
	case TelemetryEvent_SECURITY:
		return "SECURITY"
	case TelemetryEvent_FLOW:
		return "FLOW"
	case TelemetryEvent_PROCESS:
		return "PROCESS"
	case TelemetryEvent_AUDIT:
		return "AUDIT"
	default:
		return "UNSPECIFIED"
	}
}

type TelemetryEvent_Severity int32

const (
	TelemetryEvent_SEVERITY_UNSPECIFIED TelemetryEvent_Severity = 0
	TelemetryEvent_INFO                 TelemetryEvent_Severity = 1
	TelemetryEvent_WARN                 TelemetryEvent_Severity = 2
	TelemetryEvent_ERROR                TelemetryEvent_Severity = 3
	TelemetryEvent_CRITICAL             TelemetryEvent_Severity = 4
)

func (s TelemetryEvent_Severity) String() string {
	switch s {
	case TelemetryEvent_INFO:
		return "INFO"
	case TelemetryEvent_WARN:
		return "WARN"
	case TelemetryEvent_ERROR:
		return "ERROR"
	case TelemetryEvent_CRITICAL:
		return "CRITICAL"
	default:
		return "UNSPECIFIED"
	}
}

// TelemetryEvent is a single observation. Exactly one body field is set,
// matching EventType.
type TelemetryEvent struct {
	EventId   string
	EventType TelemetryEvent_EventType
	Severity  TelemetryEvent_Severity
	EventTsNs uint64
	Body      isTelemetryEvent_Body
}

type isTelemetryEvent_Body interface{ isTelemetryEvent_Body() }

type TelemetryEvent_Security struct {
	Security *SecurityEvent
}

type TelemetryEvent_Flow struct {
	Flow *FlowEvent
}

type TelemetryEvent_Process struct {
	Process *ProcessEvent
}

type TelemetryEvent_Audit struct {
	Audit *AuditEvent
}

func (*TelemetryEvent_Security) isTelemetryEvent_Body() {}
func (*TelemetryEvent_Flow) isTelemetryEvent_Body()     {}
func (*TelemetryEvent_Process) isTelemetryEvent_Body()  {}
func (*TelemetryEvent_Audit) isTelemetryEvent_Body()    {}

func (e *TelemetryEvent) GetSecurity() *SecurityEvent {
	if b, ok := e.Body.(*TelemetryEvent_Security); ok {
		return b.Security
	}
	return nil
}

func (e *TelemetryEvent) GetFlow() *FlowEvent {
	if b, ok := e.Body.(*TelemetryEvent_Flow); ok {
		return b.Flow
	}
	return nil
}

func (e *TelemetryEvent) GetProcess() *ProcessEvent {
	if b, ok := e.Body.(*TelemetryEvent_Process); ok {
		return b.Process
	}
	return nil
}

func (e *TelemetryEvent) GetAudit() *AuditEvent {
	if b, ok := e.Body.(*TelemetryEvent_Audit); ok {
		return b.Audit
	}
	return nil
}

// SecurityEvent covers authentication, privilege, DNS and peripheral
// observations. Service is one of "ssh", "sudo", "dns", "system",
// "peripheral"; Action is one of "success", "failure", "command", "query",
// "attach", "detach", "indicator".
type SecurityEvent struct {
	Service    string
	Action     string
	SourceIp   string
	Username   string
	Command    string
	Domain     string
	Indicators []*ThreatIndicator
}

type AuditEvent_Operation int32

const (
	AuditEvent_OP_UNSPECIFIED AuditEvent_Operation = 0
	AuditEvent_CREATED        AuditEvent_Operation = 1
	AuditEvent_MODIFIED       AuditEvent_Operation = 2
	AuditEvent_DELETED        AuditEvent_Operation = 3
	AuditEvent_ATTR_CHANGED   AuditEvent_Operation = 4
)

func (o AuditEvent_Operation) String() string {
	switch o {
	case AuditEvent_CREATED:
		return "CREATED"
	case AuditEvent_MODIFIED:
		return "MODIFIED"
	case AuditEvent_DELETED:
		return "DELETED"
	case AuditEvent_ATTR_CHANGED:
		return "ATTR_CHANGED"
	default:
		return "UNSPECIFIED"
	}
}

// AuditEvent is a kernel audit record reduced to the fields the rules need.
type AuditEvent struct {
	Operation AuditEvent_Operation
	Path      string
	Exe       string
	Auid      uint32
	Success   bool
}

// ProcessEvent describes one observed process.
type ProcessEvent struct {
	Pid              uint32
	Ppid             uint32
	Executable       string
	CommandLine      string
	Username         string
	ParentExecutable string
	StartTsNs        uint64
}

type FlowEvent_Direction int32

const (
	FlowEvent_DIRECTION_UNSPECIFIED FlowEvent_Direction = 0
	FlowEvent_INBOUND               FlowEvent_Direction = 1
	FlowEvent_OUTBOUND              FlowEvent_Direction = 2
)

func (d FlowEvent_Direction) String() string {
	switch d {
	case FlowEvent_INBOUND:
		return "INBOUND"
	case FlowEvent_OUTBOUND:
		return "OUTBOUND"
	default:
		return "UNSPECIFIED"
	}
}

// FlowEvent is one network flow keyed by its 5-tuple.
type FlowEvent struct {
	SrcIp       string
	SrcPort     uint32
	DstIp       string
	DstPort     uint32
	Protocol    string
	Direction   FlowEvent_Direction
	BytesIn     uint64
	BytesOut    uint64
	PacketCount uint64
	StartTsNs   uint64
	EndTsNs     uint64
}

// ThreatIndicator annotates an event with detection output.
type ThreatIndicator struct {
	IndicatorType   string
	Value           string
	Confidence      float64
	AttackPhase     string
	MitreTechniques []string
	Description     string
	Source          string
	TsNs            uint64
}

// UniversalEnvelope is the transport unit of the universal telemetry service.
type UniversalEnvelope struct {
	Version        string
	TsNs           uint64
	IdempotencyKey string
	SourceIdentity string
	Telemetry      *DeviceTelemetry
	Signature      []byte

	raw       []byte
	wireSize  int
	decodeErr error
}

func (e *UniversalEnvelope) WireSize() int { return e.wireSize }
func (e *UniversalEnvelope) Raw() []byte   { return e.raw }
func (e *UniversalEnvelope) SetRaw(b []byte) {
	e.raw = b
	e.wireSize = len(b)
}

// DecodeError reports the wire decode failure captured by the transport
// codec, or nil if the envelope parsed cleanly.
func (e *UniversalEnvelope) DecodeError() error { return e.decodeErr }

type UniversalAck_Status int32

const (
	UniversalAck_OK               UniversalAck_Status = 0
	UniversalAck_RETRY            UniversalAck_Status = 1
	UniversalAck_INVALID          UniversalAck_Status = 2
	UniversalAck_UNAUTHORIZED     UniversalAck_Status = 3
	UniversalAck_PROCESSING_ERROR UniversalAck_Status = 4
)

func (s UniversalAck_Status) String() string {
	switch s {
	case UniversalAck_OK:
		return "OK"
	case UniversalAck_RETRY:
		return "RETRY"
	case UniversalAck_INVALID:
		return "INVALID"
	case UniversalAck_UNAUTHORIZED:
		return "UNAUTHORIZED"
	case UniversalAck_PROCESSING_ERROR:
		return "PROCESSING_ERROR"
	default:
		return "UNKNOWN"
	}
}

// UniversalAck acknowledges a UniversalEnvelope, including how many batched
// events the bus accepted.
type UniversalAck struct {
	Status               UniversalAck_Status
	Reason               string
	BackoffHintMs        uint32
	ProcessedTimestampNs uint64
	EventsAccepted       uint32
}
