package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	EventBusServiceName  = "amoskys.v1.EventBus"
	TelemetryServiceName = "amoskys.v1.Telemetry"

	EventBus_Publish_FullMethodName            = "/amoskys.v1.EventBus/Publish"
	EventBus_PublishBatch_FullMethodName       = "/amoskys.v1.EventBus/PublishBatch"
	EventBus_RegisterDevice_FullMethodName     = "/amoskys.v1.EventBus/RegisterDevice"
	EventBus_GetHealth_FullMethodName          = "/amoskys.v1.EventBus/GetHealth"
	EventBus_GetMetrics_FullMethodName         = "/amoskys.v1.EventBus/GetMetrics"
	EventBus_Subscribe_FullMethodName          = "/amoskys.v1.EventBus/Subscribe"
	Telemetry_PublishTelemetry_FullMethodName  = "/amoskys.v1.Telemetry/PublishTelemetry"
)

// ============================================================
// EventBus service (legacy publish surface)
// ============================================================

type EventBusServer interface {
	Publish(context.Context, *Envelope) (*PublishAck, error)
	PublishBatch(context.Context, *BatchPublishRequest) (*PublishAck, error)
	RegisterDevice(context.Context, *RegisterDeviceRequest) (*RegisterDeviceReply, error)
	GetHealth(context.Context, *HealthCheckRequest) (*HealthCheckReply, error)
	GetMetrics(context.Context, *MetricsRequest) (*MetricsReply, error)
	Subscribe(*SubscribeRequest, EventBus_SubscribeServer) error
}

// UnimplementedEventBusServer answers UNIMPLEMENTED for every operation.
// Implementations embed it so reserved operations keep a stable answer.
type UnimplementedEventBusServer struct{}

func (UnimplementedEventBusServer) Publish(context.Context, *Envelope) (*PublishAck, error) {
	return nil, status.Error(codes.Unimplemented, "method Publish not implemented")
}

func (UnimplementedEventBusServer) PublishBatch(context.Context, *BatchPublishRequest) (*PublishAck, error) {
	return nil, status.Error(codes.Unimplemented, "method PublishBatch not implemented")
}

func (UnimplementedEventBusServer) RegisterDevice(context.Context, *RegisterDeviceRequest) (*RegisterDeviceReply, error) {
	return nil, status.Error(codes.Unimplemented, "method RegisterDevice not implemented")
}

func (UnimplementedEventBusServer) GetHealth(context.Context, *HealthCheckRequest) (*HealthCheckReply, error) {
	return nil, status.Error(codes.Unimplemented, "method GetHealth not implemented")
}

func (UnimplementedEventBusServer) GetMetrics(context.Context, *MetricsRequest) (*MetricsReply, error) {
	return nil, status.Error(codes.Unimplemented, "method GetMetrics not implemented")
}

func (UnimplementedEventBusServer) Subscribe(*SubscribeRequest, EventBus_SubscribeServer) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}

type EventBus_SubscribeServer interface {
	Send(*Envelope) error
	grpc.ServerStream
}

type eventBusSubscribeServer struct {
	grpc.ServerStream
}

func (s *eventBusSubscribeServer) Send(e *Envelope) error { return s.SendMsg(e) }

// RegisterEventBusServer wires srv into a gRPC server under the EventBus
// service name.
func RegisterEventBusServer(s grpc.ServiceRegistrar, srv EventBusServer) {
	s.RegisterService(&EventBus_ServiceDesc, srv)
}

func _EventBus_Publish_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventBusServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EventBus_Publish_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventBusServer).Publish(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

func _EventBus_PublishBatch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BatchPublishRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventBusServer).PublishBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EventBus_PublishBatch_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventBusServer).PublishBatch(ctx, req.(*BatchPublishRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _EventBus_RegisterDevice_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegisterDeviceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventBusServer).RegisterDevice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EventBus_RegisterDevice_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventBusServer).RegisterDevice(ctx, req.(*RegisterDeviceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _EventBus_GetHealth_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthCheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventBusServer).GetHealth(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EventBus_GetHealth_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventBusServer).GetHealth(ctx, req.(*HealthCheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _EventBus_GetMetrics_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MetricsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventBusServer).GetMetrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EventBus_GetMetrics_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventBusServer).GetMetrics(ctx, req.(*MetricsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _EventBus_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EventBusServer).Subscribe(in, &eventBusSubscribeServer{stream})
}

var EventBus_ServiceDesc = grpc.ServiceDesc{
	ServiceName: EventBusServiceName,
	HandlerType: (*EventBusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: _EventBus_Publish_Handler},
		{MethodName: "PublishBatch", Handler: _EventBus_PublishBatch_Handler},
		{MethodName: "RegisterDevice", Handler: _EventBus_RegisterDevice_Handler},
		{MethodName: "GetHealth", Handler: _EventBus_GetHealth_Handler},
		{MethodName: "GetMetrics", Handler: _EventBus_GetMetrics_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _EventBus_Subscribe_Handler, ServerStreams: true},
	},
	Metadata: "pb/amoskys.proto",
}

type EventBusClient interface {
	Publish(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*PublishAck, error)
	PublishBatch(ctx context.Context, in *BatchPublishRequest, opts ...grpc.CallOption) (*PublishAck, error)
	RegisterDevice(ctx context.Context, in *RegisterDeviceRequest, opts ...grpc.CallOption) (*RegisterDeviceReply, error)
	GetHealth(ctx context.Context, in *HealthCheckRequest, opts ...grpc.CallOption) (*HealthCheckReply, error)
	GetMetrics(ctx context.Context, in *MetricsRequest, opts ...grpc.CallOption) (*MetricsReply, error)
}

type eventBusClient struct {
	cc grpc.ClientConnInterface
}

func NewEventBusClient(cc grpc.ClientConnInterface) EventBusClient {
	return &eventBusClient{cc: cc}
}

// callOpts pins every stub call to this package's codec.
func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *eventBusClient) Publish(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*PublishAck, error) {
	out := new(PublishAck)
	if err := c.cc.Invoke(ctx, EventBus_Publish_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *eventBusClient) PublishBatch(ctx context.Context, in *BatchPublishRequest, opts ...grpc.CallOption) (*PublishAck, error) {
	out := new(PublishAck)
	if err := c.cc.Invoke(ctx, EventBus_PublishBatch_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *eventBusClient) RegisterDevice(ctx context.Context, in *RegisterDeviceRequest, opts ...grpc.CallOption) (*RegisterDeviceReply, error) {
	out := new(RegisterDeviceReply)
	if err := c.cc.Invoke(ctx, EventBus_RegisterDevice_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *eventBusClient) GetHealth(ctx context.Context, in *HealthCheckRequest, opts ...grpc.CallOption) (*HealthCheckReply, error) {
	out := new(HealthCheckReply)
	if err := c.cc.Invoke(ctx, EventBus_GetHealth_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *eventBusClient) GetMetrics(ctx context.Context, in *MetricsRequest, opts ...grpc.CallOption) (*MetricsReply, error) {
	out := new(MetricsReply)
	if err := c.cc.Invoke(ctx, EventBus_GetMetrics_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================
// Telemetry service (universal publish surface)
// ============================================================

type TelemetryServer interface {
	PublishTelemetry(context.Context, *UniversalEnvelope) (*UniversalAck, error)
}

type UnimplementedTelemetryServer struct{}

func (UnimplementedTelemetryServer) PublishTelemetry(context.Context, *UniversalEnvelope) (*UniversalAck, error) {
	return nil, status.Error(codes.Unimplemented, "method PublishTelemetry not implemented")
}

func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&Telemetry_ServiceDesc, srv)
}

func _Telemetry_PublishTelemetry_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UniversalEnvelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).PublishTelemetry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Telemetry_PublishTelemetry_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TelemetryServer).PublishTelemetry(ctx, req.(*UniversalEnvelope))
	}
	return interceptor(ctx, in, info, handler)
}

var Telemetry_ServiceDesc = grpc.ServiceDesc{
	ServiceName: TelemetryServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PublishTelemetry", Handler: _Telemetry_PublishTelemetry_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pb/amoskys.proto",
}

type TelemetryClient interface {
	PublishTelemetry(ctx context.Context, in *UniversalEnvelope, opts ...grpc.CallOption) (*UniversalAck, error)
}

type telemetryClient struct {
	cc grpc.ClientConnInterface
}

func NewTelemetryClient(cc grpc.ClientConnInterface) TelemetryClient {
	return &telemetryClient{cc: cc}
}

func (c *telemetryClient) PublishTelemetry(ctx context.Context, in *UniversalEnvelope, opts ...grpc.CallOption) (*UniversalAck, error) {
	out := new(UniversalAck)
	if err := c.cc.Invoke(ctx, Telemetry_PublishTelemetry_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
