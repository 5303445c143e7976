package grpcx

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewServer()
	go func() { _ = s.GRPC().Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.GracefulStop(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return s, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_Toggle(t *testing.T) {
	s, c := startServer(t)

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ""))

	s.SetServing(true)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ServiceName))

	_, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealth_WatchReadiness(t *testing.T) {
	s, c := startServer(t)

	var healthy atomic.Bool
	healthy.Store(true)
	probe := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("db down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.WatchReadiness(ctx, probe, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return check(t, c, "") == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	healthy.Store(false)
	require.Eventually(t, func() bool {
		return check(t, c, "") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestToStatus(t *testing.T) {
	require.NoError(t, ToStatus(nil))
	require.Equal(t, codes.NotFound, status.Code(ToStatus(domain.ErrChannelNotFound)))
	require.Equal(t, codes.PermissionDenied, status.Code(ToStatus(domain.ErrNotMember)))
	require.Equal(t, codes.InvalidArgument, status.Code(ToStatus(domain.ErrEmptyMessage)))
	require.Equal(t, codes.Unauthenticated, status.Code(ToStatus(domain.ErrUnauthorized)))
	require.Equal(t, codes.DeadlineExceeded, status.Code(ToStatus(context.DeadlineExceeded)))

	st := status.Convert(ToStatus(errors.New("pq: secret detail")))
	require.Equal(t, codes.Internal, st.Code())
	require.Equal(t, "internal error", st.Message())

	already := status.Error(codes.Aborted, "x")
	require.Equal(t, already, ToStatus(already))
}

func TestUnaryInterceptor_RecoversPanic(t *testing.T) {
	ic := UnaryServerInterceptor()
	_, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req any) (any, error) {
			_, ok := ctx.Deadline()
			require.True(t, ok, "deadline guard")
			panic("boom")
		})
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestGracefulStop_OpenWatchStreamDoesNotHang(t *testing.T) {
	s, c := startServer(t)
	s.SetServing(true)

	streamCtx, cancelStream := context.WithCancel(context.Background())
	defer cancelStream()
	stream, err := c.Watch(streamCtx, &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	first, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, first.GetStatus())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.GracefulStop(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("GracefulStop blocked by an open Watch stream")
	}
}
