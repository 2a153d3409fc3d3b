package pb

import (
	"crypto/ed25519"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encoding rules: fields are appended in ascending tag order, zero values are
// omitted, and decoders skip tags they do not know. Nested messages are
// length-prefixed. Keeping the order fixed makes the output canonical, which
// the envelope signature and the WAL checksum both rely on.

type wireAppender interface {
	appendWire(b []byte) []byte
}

func appendMessageField(b []byte, num protowire.Number, m wireAppender) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendWire(nil))
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendDoubleField(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func consumeString(data []byte) (string, int, error) {
	v, n := protowire.ConsumeString(data)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(data []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

func consumeVarint(data []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeDouble(data []byte) (float64, int, error) {
	v, n := protowire.ConsumeFixed64(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

func skipField(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, data)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

// ============================================================
// Envelope
// ============================================================

func (m *Envelope) appendWire(b []byte) []byte {
	b = m.appendCanonical(b)
	b = appendBytesField(b, 9, m.Signature)
	return b
}

// appendCanonical writes every field except the signature. These bytes are
// the signing body.
func (m *Envelope) appendCanonical(b []byte) []byte {
	b = appendStringField(b, 1, m.Version)
	b = appendUintField(b, 2, m.TsNs)
	b = appendStringField(b, 3, m.IdempotencyKey)
	b = appendStringField(b, 4, m.SourceIdentity)
	switch p := m.Payload.(type) {
	case *Envelope_Flow:
		if p.Flow != nil {
			b = appendMessageField(b, 5, p.Flow)
		}
	case *Envelope_DeviceTelemetry:
		if p.DeviceTelemetry != nil {
			b = appendMessageField(b, 6, p.DeviceTelemetry)
		}
	case *Envelope_Process:
		if p.Process != nil {
			b = appendMessageField(b, 7, p.Process)
		}
	case *Envelope_LegacyPayload:
		b = appendBytesField(b, 8, p.LegacyPayload)
	}
	return b
}

// CanonicalBytes is the deterministic serialization the Ed25519 signature
// covers: all envelope fields except the signature itself, in tag order.
func (m *Envelope) CanonicalBytes() []byte {
	return m.appendCanonical(make([]byte, 0, 256))
}

// Sign computes and stores the envelope signature.
func (m *Envelope) Sign(priv ed25519.PrivateKey) {
	m.Signature = ed25519.Sign(priv, m.CanonicalBytes())
}

// VerifySignature checks the stored signature against the given public key.
func (m *Envelope) VerifySignature(pub ed25519.PublicKey) bool {
	if len(m.Signature) != ed25519.SignatureSize || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, m.CanonicalBytes(), m.Signature)
}

func (m *Envelope) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 256)), nil
}

func (m *Envelope) UnmarshalWire(data []byte) error {
	*m = Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Version = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.TsNs = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.IdempotencyKey = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.SourceIdentity = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			flow := new(FlowEvent)
			if err := flow.UnmarshalWire(v); err != nil {
				return err
			}
			m.Payload = &Envelope_Flow{Flow: flow}
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			dt := new(DeviceTelemetry)
			if err := dt.UnmarshalWire(v); err != nil {
				return err
			}
			m.Payload = &Envelope_DeviceTelemetry{DeviceTelemetry: dt}
			data = data[n:]
		case num == 7 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			proc := new(ProcessEvent)
			if err := proc.UnmarshalWire(v); err != nil {
				return err
			}
			m.Payload = &Envelope_Process{Process: proc}
			data = data[n:]
		case num == 8 && typ == protowire.BytesType:
			v, n, err := consumeBytes(data)
			if err != nil {
				return err
			}
			m.Payload = &Envelope_LegacyPayload{LegacyPayload: v}
			data = data[n:]
		case num == 9 && typ == protowire.BytesType:
			v, n, err := consumeBytes(data)
			if err != nil {
				return err
			}
			m.Signature = v
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ============================================================
// PublishAck
// ============================================================

func (m *PublishAck) appendWire(b []byte) []byte {
	b = appendUintField(b, 1, uint64(m.Status))
	b = appendStringField(b, 2, m.Reason)
	b = appendUintField(b, 3, uint64(m.BackoffHintMs))
	return b
}

func (m *PublishAck) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 64)), nil
}

func (m *PublishAck) UnmarshalWire(data []byte) error {
	*m = PublishAck{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Status = PublishAck_Status(v)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Reason = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.BackoffHintMs = uint32(v)
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ============================================================
// FlowEvent
// ============================================================

func (m *FlowEvent) appendWire(b []byte) []byte {
	b = appendStringField(b, 1, m.SrcIp)
	b = appendUintField(b, 2, uint64(m.SrcPort))
	b = appendStringField(b, 3, m.DstIp)
	b = appendUintField(b, 4, uint64(m.DstPort))
	b = appendStringField(b, 5, m.Protocol)
	b = appendUintField(b, 6, uint64(m.Direction))
	b = appendUintField(b, 7, m.BytesIn)
	b = appendUintField(b, 8, m.BytesOut)
	b = appendUintField(b, 9, m.PacketCount)
	b = appendUintField(b, 10, m.StartTsNs)
	b = appendUintField(b, 11, m.EndTsNs)
	return b
}

func (m *FlowEvent) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 128)), nil
}

func (m *FlowEvent) UnmarshalWire(data []byte) error {
	*m = FlowEvent{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.SrcIp = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.SrcPort = uint32(v)
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.DstIp = v
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.DstPort = uint32(v)
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Protocol = v
			data = data[n:]
		case num == 6 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Direction = FlowEvent_Direction(v)
			data = data[n:]
		case num == 7 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.BytesIn = v
			data = data[n:]
		case num == 8 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.BytesOut = v
			data = data[n:]
		case num == 9 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.PacketCount = v
			data = data[n:]
		case num == 10 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.StartTsNs = v
			data = data[n:]
		case num == 11 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.EndTsNs = v
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ============================================================
// DeviceTelemetry / TelemetryEvent
// ============================================================

func (m *DeviceTelemetry) appendWire(b []byte) []byte {
	b = appendStringField(b, 1, m.DeviceId)
	b = appendUintField(b, 2, uint64(m.DeviceType))
	b = appendUintField(b, 3, m.CollectionTsNs)
	for _, ev := range m.Events {
		if ev != nil {
			b = appendMessageField(b, 4, ev)
		}
	}
	return b
}

func (m *DeviceTelemetry) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 512)), nil
}

func (m *DeviceTelemetry) UnmarshalWire(data []byte) error {
	*m = DeviceTelemetry{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.DeviceId = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.DeviceType = DeviceTelemetry_DeviceType(v)
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.CollectionTsNs = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			ev := new(TelemetryEvent)
			if err := ev.UnmarshalWire(v); err != nil {
				return err
			}
			m.Events = append(m.Events, ev)
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *TelemetryEvent) appendWire(b []byte) []byte {
	b = appendStringField(b, 1, m.EventId)
	b = appendUintField(b, 2, uint64(m.EventType))
	b = appendUintField(b, 3, uint64(m.Severity))
	b = appendUintField(b, 4, m.EventTsNs)
	switch body := m.Body.(type) {
	case *TelemetryEvent_Security:
		if body.Security != nil {
			b = appendMessageField(b, 5, body.Security)
		}
	case *TelemetryEvent_Flow:
		if body.Flow != nil {
			b = appendMessageField(b, 6, body.Flow)
		}
	case *TelemetryEvent_Process:
		if body.Process != nil {
			b = appendMessageField(b, 7, body.Process)
		}
	case *TelemetryEvent_Audit:
		if body.Audit != nil {
			b = appendMessageField(b, 8, body.Audit)
		}
	}
	return b
}

func (m *TelemetryEvent) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 256)), nil
}

func (m *TelemetryEvent) UnmarshalWire(data []byte) error {
	*m = TelemetryEvent{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.EventId = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.EventType = TelemetryEvent_EventType(v)
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Severity = TelemetryEvent_Severity(v)
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.EventTsNs = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			sec := new(SecurityEvent)
			if err := sec.UnmarshalWire(v); err != nil {
				return err
			}
			m.Body = &TelemetryEvent_Security{Security: sec}
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			flow := new(FlowEvent)
			if err := flow.UnmarshalWire(v); err != nil {
				return err
			}
			m.Body = &TelemetryEvent_Flow{Flow: flow}
			data = data[n:]
		case num == 7 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			proc := new(ProcessEvent)
			if err := proc.UnmarshalWire(v); err != nil {
				return err
			}
			m.Body = &TelemetryEvent_Process{Process: proc}
			data = data[n:]
		case num == 8 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			audit := new(AuditEvent)
			if err := audit.UnmarshalWire(v); err != nil {
				return err
			}
			m.Body = &TelemetryEvent_Audit{Audit: audit}
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ============================================================
// Event bodies
// ============================================================

func (m *SecurityEvent) appendWire(b []byte) []byte {
	b = appendStringField(b, 1, m.Service)
	b = appendStringField(b, 2, m.Action)
	b = appendStringField(b, 3, m.SourceIp)
	b = appendStringField(b, 4, m.Username)
	b = appendStringField(b, 5, m.Command)
	b = appendStringField(b, 6, m.Domain)
	for _, ind := range m.Indicators {
		if ind != nil {
			b = appendMessageField(b, 7, ind)
		}
	}
	return b
}

func (m *SecurityEvent) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 192)), nil
}

func (m *SecurityEvent) UnmarshalWire(data []byte) error {
	*m = SecurityEvent{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Service = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Action = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.SourceIp = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Username = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Command = v
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Domain = v
			data = data[n:]
		case num == 7 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			ind := new(ThreatIndicator)
			if err := ind.UnmarshalWire(v); err != nil {
				return err
			}
			m.Indicators = append(m.Indicators, ind)
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *AuditEvent) appendWire(b []byte) []byte {
	b = appendUintField(b, 1, uint64(m.Operation))
	b = appendStringField(b, 2, m.Path)
	b = appendStringField(b, 3, m.Exe)
	b = appendUintField(b, 4, uint64(m.Auid))
	b = appendBoolField(b, 5, m.Success)
	return b
}

func (m *AuditEvent) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 128)), nil
}

func (m *AuditEvent) UnmarshalWire(data []byte) error {
	*m = AuditEvent{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Operation = AuditEvent_Operation(v)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Path = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Exe = v
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Auid = uint32(v)
			data = data[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Success = protowire.DecodeBool(v)
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *ProcessEvent) appendWire(b []byte) []byte {
	b = appendUintField(b, 1, uint64(m.Pid))
	b = appendUintField(b, 2, uint64(m.Ppid))
	b = appendStringField(b, 3, m.Executable)
	b = appendStringField(b, 4, m.CommandLine)
	b = appendStringField(b, 5, m.Username)
	b = appendStringField(b, 6, m.ParentExecutable)
	b = appendUintField(b, 7, m.StartTsNs)
	return b
}

func (m *ProcessEvent) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 192)), nil
}

func (m *ProcessEvent) UnmarshalWire(data []byte) error {
	*m = ProcessEvent{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Pid = uint32(v)
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Ppid = uint32(v)
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Executable = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.CommandLine = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Username = v
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.ParentExecutable = v
			data = data[n:]
		case num == 7 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.StartTsNs = v
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *ThreatIndicator) appendWire(b []byte) []byte {
	b = appendStringField(b, 1, m.IndicatorType)
	b = appendStringField(b, 2, m.Value)
	b = appendDoubleField(b, 3, m.Confidence)
	b = appendStringField(b, 4, m.AttackPhase)
	for _, t := range m.MitreTechniques {
		b = appendStringField(b, 5, t)
	}
	b = appendStringField(b, 6, m.Description)
	b = appendStringField(b, 7, m.Source)
	b = appendUintField(b, 8, m.TsNs)
	return b
}

func (m *ThreatIndicator) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 192)), nil
}

func (m *ThreatIndicator) UnmarshalWire(data []byte) error {
	*m = ThreatIndicator{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.IndicatorType = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Value = v
			data = data[n:]
		case num == 3 && typ == protowire.Fixed64Type:
			v, n, err := consumeDouble(data)
			if err != nil {
				return err
			}
			m.Confidence = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.AttackPhase = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.MitreTechniques = append(m.MitreTechniques, v)
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Description = v
			data = data[n:]
		case num == 7 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Source = v
			data = data[n:]
		case num == 8 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.TsNs = v
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ============================================================
// Universal telemetry service
// ============================================================

func (m *UniversalEnvelope) appendCanonical(b []byte) []byte {
	b = appendStringField(b, 1, m.Version)
	b = appendUintField(b, 2, m.TsNs)
	b = appendStringField(b, 3, m.IdempotencyKey)
	b = appendStringField(b, 4, m.SourceIdentity)
	if m.Telemetry != nil {
		b = appendMessageField(b, 5, m.Telemetry)
	}
	return b
}

func (m *UniversalEnvelope) appendWire(b []byte) []byte {
	b = m.appendCanonical(b)
	b = appendBytesField(b, 6, m.Signature)
	return b
}

// CanonicalBytes is the signing body: every field except the signature.
func (m *UniversalEnvelope) CanonicalBytes() []byte {
	return m.appendCanonical(make([]byte, 0, 512))
}

func (m *UniversalEnvelope) Sign(priv ed25519.PrivateKey) {
	m.Signature = ed25519.Sign(priv, m.CanonicalBytes())
}

func (m *UniversalEnvelope) VerifySignature(pub ed25519.PublicKey) bool {
	if len(m.Signature) != ed25519.SignatureSize || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, m.CanonicalBytes(), m.Signature)
}

func (m *UniversalEnvelope) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 512)), nil
}

func (m *UniversalEnvelope) UnmarshalWire(data []byte) error {
	*m = UniversalEnvelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Version = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.TsNs = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.IdempotencyKey = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.SourceIdentity = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			dt := new(DeviceTelemetry)
			if err := dt.UnmarshalWire(v); err != nil {
				return err
			}
			m.Telemetry = dt
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n, err := consumeBytes(data)
			if err != nil {
				return err
			}
			m.Signature = v
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *UniversalAck) appendWire(b []byte) []byte {
	b = appendUintField(b, 1, uint64(m.Status))
	b = appendStringField(b, 2, m.Reason)
	b = appendUintField(b, 3, uint64(m.BackoffHintMs))
	b = appendUintField(b, 4, m.ProcessedTimestampNs)
	b = appendUintField(b, 5, uint64(m.EventsAccepted))
	return b
}

func (m *UniversalAck) MarshalWire() ([]byte, error) {
	return m.appendWire(make([]byte, 0, 64)), nil
}

func (m *UniversalAck) UnmarshalWire(data []byte) error {
	*m = UniversalAck{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Status = UniversalAck_Status(v)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Reason = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.BackoffHintMs = uint32(v)
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.ProcessedTimestampNs = v
			data = data[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.EventsAccepted = uint32(v)
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ============================================================
// Reserved legacy-service messages
// ============================================================

func (m *BatchPublishRequest) appendWire(b []byte) []byte {
	for _, env := range m.Envelopes {
		if env != nil {
			b = appendMessageField(b, 1, env)
		}
	}
	return b
}

func (m *BatchPublishRequest) MarshalWire() ([]byte, error) {
	return m.appendWire(nil), nil
}

func (m *BatchPublishRequest) UnmarshalWire(data []byte) error {
	*m = BatchPublishRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			env := new(Envelope)
			if err := env.UnmarshalWire(v); err != nil {
				return err
			}
			m.Envelopes = append(m.Envelopes, env)
			data = data[n:]
			continue
		}
		n, err := skipField(num, typ, data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (m *RegisterDeviceRequest) appendWire(b []byte) []byte {
	b = appendStringField(b, 1, m.DeviceId)
	b = appendUintField(b, 2, uint64(m.DeviceType))
	return b
}

func (m *RegisterDeviceRequest) MarshalWire() ([]byte, error) {
	return m.appendWire(nil), nil
}

func (m *RegisterDeviceRequest) UnmarshalWire(data []byte) error {
	*m = RegisterDeviceRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.DeviceId = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.DeviceType = DeviceTelemetry_DeviceType(v)
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *RegisterDeviceReply) appendWire(b []byte) []byte {
	b = appendBoolField(b, 1, m.Accepted)
	b = appendStringField(b, 2, m.Reason)
	return b
}

func (m *RegisterDeviceReply) MarshalWire() ([]byte, error) {
	return m.appendWire(nil), nil
}

func (m *RegisterDeviceReply) UnmarshalWire(data []byte) error {
	*m = RegisterDeviceReply{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.Accepted = protowire.DecodeBool(v)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Reason = v
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *HealthCheckRequest) appendWire(b []byte) []byte { return b }

func (m *HealthCheckRequest) MarshalWire() ([]byte, error) { return nil, nil }

func (m *HealthCheckRequest) UnmarshalWire(data []byte) error {
	*m = HealthCheckRequest{}
	return skipAll(data)
}

func (m *HealthCheckReply) appendWire(b []byte) []byte {
	b = appendStringField(b, 1, m.Status)
	b = appendUintField(b, 2, m.UptimeSeconds)
	return b
}

func (m *HealthCheckReply) MarshalWire() ([]byte, error) {
	return m.appendWire(nil), nil
}

func (m *HealthCheckReply) UnmarshalWire(data []byte) error {
	*m = HealthCheckReply{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Status = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.UptimeSeconds = v
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *MetricsRequest) appendWire(b []byte) []byte { return b }

func (m *MetricsRequest) MarshalWire() ([]byte, error) { return nil, nil }

func (m *MetricsRequest) UnmarshalWire(data []byte) error {
	*m = MetricsRequest{}
	return skipAll(data)
}

func (m *MetricsReply) appendWire(b []byte) []byte {
	b = appendUintField(b, 1, m.PublishTotal)
	b = appendUintField(b, 2, m.InvalidTotal)
	b = appendUintField(b, 3, m.RetryTotal)
	b = appendUintField(b, 4, uint64(m.InflightRequests))
	return b
}

func (m *MetricsReply) MarshalWire() ([]byte, error) {
	return m.appendWire(nil), nil
}

func (m *MetricsReply) UnmarshalWire(data []byte) error {
	*m = MetricsReply{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.PublishTotal = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.InvalidTotal = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.RetryTotal = v
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n, err := consumeVarint(data)
			if err != nil {
				return err
			}
			m.InflightRequests = uint32(v)
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *SubscribeRequest) appendWire(b []byte) []byte {
	return appendStringField(b, 1, m.Filter)
}

func (m *SubscribeRequest) MarshalWire() ([]byte, error) {
	return m.appendWire(nil), nil
}

func (m *SubscribeRequest) UnmarshalWire(data []byte) error {
	*m = SubscribeRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			v, n, err := consumeString(data)
			if err != nil {
				return err
			}
			m.Filter = v
			data = data[n:]
			continue
		}
		n, err := skipField(num, typ, data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// skipAll validates framing of a message whose fields are all ignored.
func skipAll(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		n, err := skipField(num, typ, data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
