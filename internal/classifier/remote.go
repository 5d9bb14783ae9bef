package classifier

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// PredictorServiceName is the gRPC service exposed by model servers.
const PredictorServiceName = "asana.v1.PosePredictor"

const predictMethod = "/" + PredictorServiceName + "/Predict"

// PredictorServer is the server side of the PosePredictor service. Requests carry
// {"features": [...]} and responses {"probabilities": [...]}.
type PredictorServer interface {
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPredictorServer registers srv on s.
func RegisterPredictorServer(s grpc.ServiceRegistrar, srv PredictorServer) {
	s.RegisterService(&predictorServiceDesc, srv)
}

var predictorServiceDesc = grpc.ServiceDesc{
	ServiceName: PredictorServiceName,
	HandlerType: (*PredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "asana/v1/predictor.proto",
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictorServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: predictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictorServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// NewPredictorServer exposes a local Predictor over gRPC.
func NewPredictorServer(p Predictor) PredictorServer {
	return &predictorServer{p: p}
}

type predictorServer struct {
	p Predictor
}

func (s *predictorServer) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	features, err := numberList(req, "features")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	probs, err := s.p.Predict(ctx, features)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"probabilities": numberListValue(probs),
	}}, nil
}

// RemotePredictor calls a PosePredictor service, typically the Python model server.
type RemotePredictor struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	addr    string
	timeout time.Duration
}

// DialRemotePredictor creates a client for the model server at addr. Extra
// options are appended to the defaults (insecure transport, keepalive).
func DialRemotePredictor(addr string, timeout time.Duration, extra ...grpc.DialOption) (*RemotePredictor, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create predictor client for %s: %w", addr, err)
	}

	return &RemotePredictor{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		addr:    addr,
		timeout: timeout,
	}, nil
}

// Predict implements Predictor.
func (r *RemotePredictor) Predict(ctx context.Context, features []float64) ([]float64, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"features": numberListValue(features),
	}}
	resp := new(structpb.Struct)
	if err := r.conn.Invoke(ctx, predictMethod, req, resp); err != nil {
		return nil, fmt.Errorf("predict via %s: %w", r.addr, err)
	}
	return numberList(resp, "probabilities")
}

// HealthCheck asks the server's grpc.health.v1 service about the predictor.
func (r *RemotePredictor) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := r.health.Check(ctx, &healthpb.HealthCheckRequest{Service: PredictorServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("predictor status %s", resp.GetStatus())
	}
	return nil
}

// Close releases the connection.
func (r *RemotePredictor) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func numberListValue(values []float64) *structpb.Value {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func numberList(s *structpb.Struct, field string) ([]float64, error) {
	v, ok := s.GetFields()[field]
	if !ok {
		return nil, fmt.Errorf("missing field %q", field)
	}
	lv := v.GetListValue()
	if lv == nil {
		return nil, fmt.Errorf("field %q is not a list", field)
	}
	out := make([]float64, len(lv.GetValues()))
	for i, item := range lv.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("field %q item %d is not a number", field, i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}
