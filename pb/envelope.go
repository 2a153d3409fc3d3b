// Package pb holds the wire types for the AMOSKYS telemetry protocol and a
// deterministic protobuf-wire codec for them. Messages are encoded in fixed
// ascending field order so that two encoders always produce identical bytes;
// decoders skip unknown fields so old servers tolerate newer agents.
package pb

// WireVersion is the only envelope version this tree speaks.
const WireVersion = "v1"

// PublishAck_Status is the admission verdict returned for a published envelope.
type PublishAck_Status int32

const (
	PublishAck_OK           PublishAck_Status = 0
	PublishAck_RETRY        PublishAck_Status = 1
	PublishAck_INVALID      PublishAck_Status = 2
	PublishAck_UNAUTHORIZED PublishAck_Status = 3
)

func (s PublishAck_Status) String() string {
	switch s {
	case PublishAck_OK:
		return "OK"
	case PublishAck_RETRY:
		return "RETRY"
	case PublishAck_INVALID:
		return "INVALID"
	case PublishAck_UNAUTHORIZED:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

// Envelope is the authenticated unit of transport. Exactly one payload field
// is set; Signature, when present, covers CanonicalBytes().
type Envelope struct {
	Version        string
	TsNs           uint64
	IdempotencyKey string
	SourceIdentity string
	Payload        isEnvelope_Payload
	Signature      []byte

	// Populated by the transport codec on decode.
	raw       []byte
	wireSize  int
	decodeErr error
}

type isEnvelope_Payload interface{ isEnvelope_Payload() }

type Envelope_Flow struct {
	Flow *FlowEvent
}

type Envelope_DeviceTelemetry struct {
	DeviceTelemetry *DeviceTelemetry
}

type Envelope_Process struct {
	Process *ProcessEvent
}

type Envelope_LegacyPayload struct {
	LegacyPayload []byte
}

func (*Envelope_Flow) isEnvelope_Payload()            {}
func (*Envelope_DeviceTelemetry) isEnvelope_Payload() {}
func (*Envelope_Process) isEnvelope_Payload()         {}
func (*Envelope_LegacyPayload) isEnvelope_Payload()   {}

func (e *Envelope) GetFlow() *FlowEvent {
	if p, ok := e.Payload.(*Envelope_Flow); ok {
		return p.Flow
	}
	return nil
}

func (e *Envelope) GetDeviceTelemetry() *DeviceTelemetry {
	if p, ok := e.Payload.(*Envelope_DeviceTelemetry); ok {
		return p.DeviceTelemetry
	}
	return nil
}

func (e *Envelope) GetProcess() *ProcessEvent {
	if p, ok := e.Payload.(*Envelope_Process); ok {
		return p.Process
	}
	return nil
}

func (e *Envelope) GetLegacyPayload() []byte {
	if p, ok := e.Payload.(*Envelope_LegacyPayload); ok {
		return p.LegacyPayload
	}
	return nil
}

// HasPayload reports whether any payload variant is present.
func (e *Envelope) HasPayload() bool {
	switch p := e.Payload.(type) {
	case *Envelope_Flow:
		return p.Flow != nil
	case *Envelope_DeviceTelemetry:
		return p.DeviceTelemetry != nil
	case *Envelope_Process:
		return p.Process != nil
	case *Envelope_LegacyPayload:
		return len(p.LegacyPayload) > 0
	default:
		return false
	}
}

// WireSize is the exact encoded length observed by the transport codec, or 0
// for envelopes that were never decoded from the wire.
func (e *Envelope) WireSize() int { return e.wireSize }

// Raw returns the wire bytes captured at decode time. The slice is private to
// the envelope; callers must not mutate it.
func (e *Envelope) Raw() []byte { return e.raw }

// SetRaw records wire bytes and their length, as the transport codec does.
// Exposed for stores and tests that replay envelopes outside a RPC.
func (e *Envelope) SetRaw(b []byte) {
	e.raw = b
	e.wireSize = len(b)
}

// DecodeError reports the wire decode failure captured by the transport
// codec, or nil if the envelope parsed cleanly.
func (e *Envelope) DecodeError() error { return e.decodeErr }

// PublishAck reports the bus verdict for one envelope.
type PublishAck struct {
	Status        PublishAck_Status
	Reason        string
	BackoffHintMs uint32
}

// Reserved legacy-service messages. The operations carrying them respond
// UNIMPLEMENTED today; the shapes exist so the service surface is stable.

type BatchPublishRequest struct {
	Envelopes []*Envelope
}

type RegisterDeviceRequest struct {
	DeviceId   string
	DeviceType DeviceTelemetry_DeviceType
}

type RegisterDeviceReply struct {
	Accepted bool
	Reason   string
}

type HealthCheckRequest struct{}

type HealthCheckReply struct {
	Status        string
	UptimeSeconds uint64
}

type MetricsRequest struct{}

type MetricsReply struct {
	PublishTotal     uint64
	InvalidTotal     uint64
	RetryTotal       uint64
	InflightRequests uint32
}

type SubscribeRequest struct {
	Filter string
}
