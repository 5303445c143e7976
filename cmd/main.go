package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cwrk-planet/realtime-service/config"
	"github.com/cwrk-planet/realtime-service/internal/realtime"
	"github.com/cwrk-planet/realtime-service/internal/security"
	"github.com/cwrk-planet/realtime-service/internal/service"
	grpcx "github.com/cwrk-planet/realtime-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/realtime-service/internal/transport/http"
	"github.com/cwrk-planet/realtime-service/internal/transport/ws"
	"github.com/cwrk-planet/realtime-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(cfg.Logging.ToLoggerConfig())
	slog.Info("starting realtime-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- storage ---
	st, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		slog.Error("open storage", "err", err)
		os.Exit(1)
	}
	defer st.close()

	// --- auth ---
	vc, err := cfg.Auth.ToVerifierConfig()
	if err != nil {
		slog.Error("auth config", "err", err)
		os.Exit(1)
	}
	verifier, err := security.NewJWTVerifier(vc)
	if err != nil {
		slog.Error("jwt verifier", "err", err)
		os.Exit(1)
	}
	auth := security.NewAuthenticator(verifier, cfg.Auth.GuestPrefix, cfg.Auth.GuestName)

	// --- services ---
	accessSvc := service.NewAccessService(st.channels, st.servers)
	chatSvc := service.NewChatService(accessSvc, st.messages, st.users, cfg.Chat.MaxMessageLength)

	core := realtime.NewCore(chatSvc, accessSvc)

	// --- WS & HTTP ---
	wsServer := ws.NewServer(core, auth, cfg.WS.ToOptions())
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(chatSvc, accessSvc, core),
		Auth:           auth,
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxBodyBytes:   cfg.WS.ReadLimit,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// hijacked ws-соединения Shutdown не закрывает
	httpSrv.RegisterOnShutdown(wsServer.CloseAll)

	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- gRPC (health + reflection) ---
	var grpcSrv *grpcx.Server
	if cfg.GRPC.Addr != "" {
		grpcSrv = grpcx.NewServer()
		go grpcSrv.WatchReadiness(ctx, st.ping, 10*time.Second)

		go func() {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				errCh <- err
				return
			}
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			if err := grpcSrv.GRPC().Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal")
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// HTTP/WS и gRPC гасим параллельно, оба ограничены ctxShutdown
	var wg sync.WaitGroup
	if grpcSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grpcSrv.GracefulStop(ctxShutdown)
		}()
	}
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	wg.Wait()
	slog.Info("stopped")
}
