package grpcx

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName: имя сервиса в health-check; пустое имя означает весь процесс.
const ServiceName = "realtime.v1.Realtime"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer собирает grpc.Server с интерсепторами, health и reflection.
// Пока хранилище не проверено, статус NOT_SERVING.
func NewServer(opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	}, opts...)

	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.SetServing(false)

	return s
}

func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// WatchReadiness периодически дергает probe (обычно ping хранилища)
// и переключает health-статус. Выходит по ctx.Done().
func (s *Server) WatchReadiness(ctx context.Context, probe func(context.Context) error, every time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		s.SetServing(probe(pctx) == nil)
	}

	check()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			check()
		}
	}
}

// GracefulStop ждёт завершения открытых RPC, но не дольше ctx.
// Health Watch сам не заканчивается, поэтому по дедлайну соединения рвутся через Stop.
func (s *Server) GracefulStop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}
}

// ToStatus переводит доменную ошибку в gRPC-статус; уже готовый статус не трогает.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	switch domain.CodeOf(err) {
	case domain.CodeInvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.CodeUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	case domain.CodeForbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	case domain.CodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, domain.PublicMessage(err))
	}
}
