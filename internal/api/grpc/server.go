package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/ingest"
	"github.com/vitalog/vitalog/internal/logging"
	"github.com/vitalog/vitalog/internal/repair"
	"github.com/vitalog/vitalog/internal/report"
	"github.com/vitalog/vitalog/pkg/types"
)

// EventSubmitter is the ingestion service as seen by the gRPC layer.
type EventSubmitter interface {
	Submit(ctx context.Context, req ingest.Request) (*ingest.Receipt, error)
}

// Reporter is the report service as seen by the gRPC layer.
type Reporter interface {
	Weekly(ctx context.Context, userID int64, end types.Date) ([]types.DailyAggregate, error)
	Daily(ctx context.Context, date types.Date) ([]types.DailyAggregate, error)
}

// DayRepairer is the batch aggregator as seen by the gRPC layer.
type DayRepairer interface {
	RepairDay(ctx context.Context, date types.Date) (*repair.Result, error)
}

// Server implements MetricsServiceServer. Methods whose backing service is
// nil return Unimplemented, so one Server can serve any run mode.
type Server struct {
	ingest  EventSubmitter
	reports Reporter
	repairs DayRepairer
	now     func() time.Time
}

// NewServer creates a MetricsService implementation.
func NewServer(ingest EventSubmitter, reports Reporter, repairs DayRepairer) *Server {
	return &Server{ingest: ingest, reports: reports, repairs: repairs, now: time.Now}
}

// Ingest records one event: {user_id, kind, value}.
func (s *Server) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.ingest == nil {
		return nil, status.Error(codes.Unimplemented, "ingest is not served here")
	}
	body, err := json.Marshal(in.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	req, err := ingest.DecodeRequest(body)
	if err != nil {
		return nil, toStatus(err)
	}

	receipt, err := s.ingest.Submit(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ctx, map[string]interface{}{
		"event_id":  receipt.EventID,
		"date":      receipt.Date,
		"aggregate": receipt.Aggregate,
	})
}

// Weekly returns {user_id, start, end, days} for {user_id, end?, dense?}.
func (s *Server) Weekly(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.reports == nil {
		return nil, status.Error(codes.Unimplemented, "queries are not served here")
	}
	userID, err := userIDField(in)
	if err != nil {
		return nil, err
	}
	end, err := dateField(in, "end", types.DateOf(s.now()))
	if err != nil {
		return nil, err
	}

	days, err := s.reports.Weekly(ctx, userID, end)
	if err != nil {
		return nil, toStatus(err)
	}
	if in.GetFields()["dense"].GetBoolValue() {
		days = report.Dense(userID, end, days)
	}
	return toStruct(ctx, map[string]interface{}{
		"user_id": userID,
		"start":   report.WeekStart(end),
		"end":     end,
		"days":    days,
	})
}

// Daily returns {date, users} for {date?}.
func (s *Server) Daily(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.reports == nil {
		return nil, status.Error(codes.Unimplemented, "queries are not served here")
	}
	date, err := dateField(in, "date", types.DateOf(s.now()))
	if err != nil {
		return nil, err
	}
	users, err := s.reports.Daily(ctx, date)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ctx, map[string]interface{}{"date": date, "users": users})
}

// RepairDay recomputes {date?}, defaulting to yesterday.
func (s *Server) RepairDay(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.repairs == nil {
		return nil, status.Error(codes.Unimplemented, "repair is not served here")
	}
	date, err := dateField(in, "date", types.DateOf(s.now()).AddDays(-1))
	if err != nil {
		return nil, err
	}
	res, err := s.repairs.RepairDay(ctx, date)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ctx, map[string]interface{}{"result": res})
}

func userIDField(in *structpb.Struct) (int64, error) {
	v, ok := in.GetFields()["user_id"]
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "user_id is required")
	}
	n := v.GetNumberValue()
	if n <= 0 || n != float64(int64(n)) {
		return 0, status.Error(codes.InvalidArgument, "user_id must be a positive integer")
	}
	return int64(n), nil
}

func dateField(in *structpb.Struct, name string, def types.Date) (types.Date, error) {
	raw := in.GetFields()[name].GetStringValue()
	if raw == "" {
		return def, nil
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		return types.Date{}, status.Errorf(codes.InvalidArgument, "%s must be YYYY-MM-DD", name)
	}
	return d, nil
}

// toStruct converts v to a Struct through its JSON form and adds request_id.
func toStruct(ctx context.Context, v map[string]interface{}) (*structpb.Struct, error) {
	v["request_id"] = extractRequestID(ctx)
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// CodeFor maps a service error to a gRPC status code.
func CodeFor(err error) codes.Code {
	switch {
	case verrors.GetCategory(err) == verrors.ErrCategoryValidation:
		return codes.InvalidArgument
	case verrors.GetCode(err) == verrors.CodePartialWrite:
		return codes.Internal
	case verrors.GetCode(err) == verrors.CodeObjectNotFound:
		return codes.NotFound
	case verrors.IsRetryable(err):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func toStatus(err error) error {
	return status.Error(CodeFor(err), err.Error())
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

// LoggingInterceptor logs each unary call with its status code.
func LoggingInterceptor(logger *bolt.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		e := logger.Info()
		if err != nil {
			e = logger.Warn()
		}
		logging.With(e, logging.Component("grpc"), logging.Str("method", info.FullMethod),
			logging.Str("code", status.Code(err).String()), logging.Duration(time.Since(start)), logging.Error(err)).Msg("call")
		return resp, err
	}
}

// NewGRPCServer builds a grpc.Server with MetricsService and the standard
// health service registered. The health server reports SERVING for both
// the overall server and ServiceName.
func NewGRPCServer(srv MetricsServiceServer, logger *bolt.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(logger))}, opts...)
	s := grpc.NewServer(opts...)
	RegisterMetricsServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
