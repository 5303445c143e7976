package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cwrk-planet/realtime-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCallTimeout: guard для unary-вызовов без deadline.
const DefaultCallTimeout = 10 * time.Second

// UnaryServerInterceptor: deadline guard, recovery, лог вызова, доменные ошибки → status.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
			defer cancel()
		}

		defer observe(ctx, "grpc unary", info.FullMethod, time.Now(), &err)

		resp, err = handler(ctx, req)
		return resp, ToStatus(err)
	}
}

func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer observe(ss.Context(), "grpc stream", info.FullMethod, time.Now(), &err)

		return ToStatus(handler(srv, ss))
	}
}

// observe вызывается через defer: ловит panic и пишет итог вызова.
// Health-пробы балансировщика идут в debug, чтобы не засорять лог.
func observe(ctx context.Context, msg, method string, start time.Time, errp *error) {
	log := logger.FromContext(ctx)
	if r := recover(); r != nil {
		log.Error(msg+" panic", "method", method, "panic", r, "stack", string(debug.Stack()))
		*errp = status.Error(codes.Internal, "internal server error")
	}

	level := slog.LevelInfo
	switch {
	case *errp != nil && status.Code(*errp) == codes.Internal:
		level = slog.LevelError
	case strings.HasPrefix(method, "/grpc.health.v1."), strings.HasPrefix(method, "/grpc.reflection."):
		level = slog.LevelDebug
	}

	attrs := []any{"method", method, "dur_ms", time.Since(start).Milliseconds()}
	if *errp != nil {
		attrs = append(attrs, "code", status.Code(*errp).String(), "err", *errp)
	}
	log.Log(ctx, level, msg, attrs...)
}
