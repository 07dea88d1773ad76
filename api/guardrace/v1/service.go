// Package guardracev1 defines the guardrace.v1.GuardRace gRPC service.
// Messages travel as google.protobuf.Struct and are converted to the Go
// types below at each end.
package guardracev1

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName    = "guardrace.v1.GuardRace"
	GenerateMethod = "/guardrace.v1.GuardRace/Generate"
	CheckMethod    = "/guardrace.v1.GuardRace/Check"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest asks the server to race its guard against generation.
type GenerateRequest struct {
	RequestID string    `json:"request_id,omitempty"`
	Messages  []Message `json:"messages"`
}

// GenerateResponse carries the outcome. Content is empty unless Kind is
// "completed".
type GenerateResponse struct {
	TraceID           string `json:"trace_id"`
	RequestID         string `json:"request_id,omitempty"`
	Kind              string `json:"kind"`
	Decision          string `json:"decision"`
	Content           string `json:"content,omitempty"`
	Model             string `json:"model,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Error             string `json:"error,omitempty"`
	Timeout           bool   `json:"timeout,omitempty"`
	ProducerCancelled bool   `json:"producer_cancelled"`
	ElapsedMS         int64  `json:"elapsed_ms"`
	Path              string `json:"path"`
}

// CheckRequest asks for a guard-only verdict on text.
type CheckRequest struct {
	Text string `json:"text"`
}

// CheckResponse is the guard verdict.
type CheckResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// GuardRaceServer is implemented by the guardrace server.
type GuardRaceServer interface {
	Generate(context.Context, *GenerateRequest) (*GenerateResponse, error)
	Check(context.Context, *CheckRequest) (*CheckResponse, error)
}

// RegisterGuardRaceServer registers srv on s.
func RegisterGuardRaceServer(s grpc.ServiceRegistrar, srv GuardRaceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the GuardRace service for grpc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GuardRaceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
		{MethodName: "Check", Handler: checkHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "guardrace/v1/guardrace.proto",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		var r GenerateRequest
		if err := FromStruct(req.(*structpb.Struct), &r); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		resp, err := srv.(GuardRaceServer).Generate(ctx, &r)
		if err != nil {
			return nil, err
		}
		return ToStruct(resp)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateMethod}, handler)
}

func checkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		var r CheckRequest
		if err := FromStruct(req.(*structpb.Struct), &r); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		resp, err := srv.(GuardRaceServer).Check(ctx, &r)
		if err != nil {
			return nil, err
		}
		return ToStruct(resp)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckMethod}, handler)
}

// GuardRaceClient calls a GuardRace server.
type GuardRaceClient struct {
	cc grpc.ClientConnInterface
}

// NewGuardRaceClient creates a client over cc.
func NewGuardRaceClient(cc grpc.ClientConnInterface) *GuardRaceClient {
	return &GuardRaceClient{cc: cc}
}

// Generate calls the Generate RPC.
func (c *GuardRaceClient) Generate(ctx context.Context, req *GenerateRequest, opts ...grpc.CallOption) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.invoke(ctx, GenerateMethod, req, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check calls the Check RPC.
func (c *GuardRaceClient) Check(ctx context.Context, req *CheckRequest, opts ...grpc.CallOption) (*CheckResponse, error) {
	var resp CheckResponse
	if err := c.invoke(ctx, CheckMethod, req, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GuardRaceClient) invoke(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	in, err := ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return err
	}
	return FromStruct(out, resp)
}

// ToStruct converts a JSON-tagged Go value into a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("guardrace.v1: marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("guardrace.v1: not an object: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("guardrace.v1: %w", err)
	}
	return s, nil
}

// FromStruct decodes a protobuf Struct into a JSON-tagged Go value.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("guardrace.v1: marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("guardrace.v1: decode: %w", err)
	}
	return nil
}
