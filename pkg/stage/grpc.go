package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/medcopilot/medcopilot/pkg/models"
)

// Stage service wire names. Messages are google.protobuf.Struct in both
// directions so no generated stubs are needed on either side.
const (
	StageServiceName   = "medcopilot.stage.v1.StageService"
	runStageMethod     = "RunStage"
	runStageFullMethod = "/" + StageServiceName + "/" + runStageMethod
)

// GRPCBackend implements Backend by calling a remote stage service.
type GRPCBackend struct {
	conn *grpc.ClientConn
}

// NewGRPCBackend creates a client for the stage service at addr.
func NewGRPCBackend(addr string, opts ...grpc.DialOption) (*GRPCBackend, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stage service at %s: %w", addr, err)
	}
	return &GRPCBackend{conn: conn}, nil
}

// RunStage implements Backend.
func (b *GRPCBackend) RunStage(ctx context.Context, req Request) (Response, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return Response{}, err
	}

	out := &structpb.Struct{}
	if err := b.conn.Invoke(ctx, runStageFullMethod, in, out); err != nil {
		if status.Code(err) == codes.DeadlineExceeded {
			return Response{}, fmt.Errorf("gRPC RunStage call failed: %w", context.DeadlineExceeded)
		}
		return Response{}, fmt.Errorf("gRPC RunStage call failed: %w", err)
	}
	return decodeResponse(out)
}

// Close releases the gRPC connection.
func (b *GRPCBackend) Close() error {
	return b.conn.Close()
}

// ────────────────────────────────────────────────────────────
// Server side
// ────────────────────────────────────────────────────────────

// StageServer is the server API of the stage service.
type StageServer interface {
	RunStage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// RegisterStageServer registers srv on s under the stage service name.
func RegisterStageServer(s grpc.ServiceRegistrar, srv StageServer) {
	s.RegisterService(&stageServiceDesc, srv)
}

var stageServiceDesc = grpc.ServiceDesc{
	ServiceName: StageServiceName,
	HandlerType: (*StageServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: runStageMethod, Handler: runStageHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func runStageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StageServer).RunStage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runStageFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StageServer).RunStage(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// BackendServer exposes any Backend as a stage service.
type BackendServer struct {
	Backend Backend
}

// RunStage implements StageServer.
func (s *BackendServer) RunStage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.Backend.RunStage(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encodeResponse(resp)
}

// ────────────────────────────────────────────────────────────
// Struct conversion helpers
// ────────────────────────────────────────────────────────────

type wireRequest struct {
	SessionID string               `json:"session_id"`
	Stage     string               `json:"stage"`
	Phase     string               `json:"phase"`
	Intake    models.Intake        `json:"intake"`
	ImageRefs []string             `json:"image_refs"`
	Prior     []models.StageResult `json:"prior"`
}

type wireResponse struct {
	Confidence float64        `json:"confidence"`
	Summary    map[string]any `json:"summary"`
}

func encodeRequest(req Request) (*structpb.Struct, error) {
	return toStruct(wireRequest(req))
}

func decodeRequest(in *structpb.Struct) (Request, error) {
	var w wireRequest
	if err := fromStruct(in, &w); err != nil {
		return Request{}, err
	}
	return Request(w), nil
}

func encodeResponse(resp Response) (*structpb.Struct, error) {
	return toStruct(wireResponse(resp))
}

func decodeResponse(out *structpb.Struct) (Response, error) {
	var w wireResponse
	if err := fromStruct(out, &w); err != nil {
		return Response{}, err
	}
	return Response(w), nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stage message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to encode stage message: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stage message: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("failed to decode stage message: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode stage message: %w", err)
	}
	return nil
}
