package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

// The advisory gRPC service carries the same JSON documents as the HTTP API
// inside google.protobuf.Struct, so no generated stubs are needed:
//
//	service Advisory {
//	  rpc Recommend(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
const (
	AdvisoryServiceName     = "advisory.v1.Advisory"
	AdvisoryRecommendMethod = "/" + AdvisoryServiceName + "/Recommend"
)

type AdvisoryServer interface {
	Recommend(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var AdvisoryServiceDesc = grpc.ServiceDesc{
	ServiceName: AdvisoryServiceName,
	HandlerType: (*AdvisoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recommend", Handler: recommendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "advisory/v1/advisory.proto",
}

func RegisterAdvisoryServer(s grpc.ServiceRegistrar, srv AdvisoryServer) {
	s.RegisterService(&AdvisoryServiceDesc, srv)
}

func recommendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdvisoryServer).Recommend(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AdvisoryRecommendMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdvisoryServer).Recommend(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AdvisoryClient is the client side of advisory.v1.Advisory.
type AdvisoryClient struct {
	cc grpc.ClientConnInterface
}

func NewAdvisoryClient(cc grpc.ClientConnInterface) *AdvisoryClient {
	return &AdvisoryClient{cc: cc}
}

func (c *AdvisoryClient) Recommend(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AdvisoryRecommendMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GrpcHandler implements AdvisoryServer on top of the Advisor.
type GrpcHandler struct {
	advisor *Advisor
}

func NewGrpcHandler(a *Advisor) *GrpcHandler {
	return &GrpcHandler{advisor: a}
}

func (h *GrpcHandler) Recommend(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req model.RecommendationRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	evt, err := h.advisor.Advise(ctx, "grpc", req)
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	out, err := toStruct(evt)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// grpcError mappa la tassonomia apperr sui codici gRPC; su rate limit il
// trailer "retry-after" porta i secondi da attendere.
func grpcError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	var code codes.Code
	switch apperr.Kind(err) {
	case apperr.KindValidation:
		code = codes.InvalidArgument
	case apperr.KindRateLimited:
		code = codes.ResourceExhausted
		var rle *apperr.RateLimitError
		if errors.As(err, &rle) {
			secs := max(int(math.Ceil(rle.RetryAfter.Seconds())), 1)
			_ = grpc.SetTrailer(ctx, metadata.Pairs("retry-after", strconv.Itoa(secs)))
		}
	case apperr.KindAuth, apperr.KindUpstream:
		code = codes.Unavailable
	case apperr.KindCalculation:
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func fromStruct(in *structpb.Struct, out any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
