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
	"syscall"
	"time"

	"github.com/cwrk-planet/chat-service/config"
	"github.com/cwrk-planet/chat-service/internal/docstore"
	"github.com/cwrk-planet/chat-service/internal/postgres"
	"github.com/cwrk-planet/chat-service/internal/presence"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	grpcx "github.com/cwrk-planet/chat-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat-service/internal/transport/http"
	"github.com/cwrk-planet/chat-service/internal/transport/ws"
	"github.com/cwrk-planet/chat-service/pkg/logger"

	"google.golang.org/grpc"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	stopTracing := logger.InitTracing()
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx := context.Background()

	// --- postgres: комнаты и участники ---
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
		ApplicationName: cfg.Logging.Service,
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if cfg.Postgres.Migrate {
		if err := postgres.ApplyMigrations(ctx, pool); err != nil {
			log.Fatalf("postgres migrations: %v", err)
		}
	}

	// --- badger: сообщения ---
	bdb, err := docstore.Open(docstore.Config{Dir: cfg.Badger.Dir, InMemory: cfg.Badger.InMemory})
	if err != nil {
		log.Fatalf("badger: %v", err)
	}
	defer func() {
		if err := bdb.Close(); err != nil {
			slog.Error("badger close", "err", err)
		}
	}()

	// --- redis: присутствие ---
	var tracker presence.Tracker = presence.Nop{}
	if cfg.Redis.URL != "" {
		rt, err := presence.NewRedisTracker(cfg.Redis.URL, cfg.Redis.PresenceTTL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer func() { _ = rt.Close() }()
		tracker = rt
	} else {
		slog.Warn("presence disabled: redis.url is empty")
	}

	// --- identity ---
	pub, err := security.LoadRSAPublicKeyFromPEM(cfg.JWT.PublicKeyPath)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	verifier := security.NewVerifier(pub, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.ClockSkew)

	// --- repos ---
	roomRepo := postgres.NewRoomRepository(pool)
	memberRepo := postgres.NewMembershipRepository(pool)
	msgRepo, err := docstore.NewMessageRepository(bdb)
	if err != nil {
		log.Fatalf("message repository: %v", err)
	}

	// --- hub & services ---
	hub := ws.NewHub()
	guard := service.NewAuthorizer(memberRepo)
	messageSvc := service.NewMessageService(msgRepo, roomRepo, guard, hub, service.MessageConfig{
		MaxContentLength: cfg.Chat.MaxContentLength,
		DefaultPageSize:  cfg.Chat.DefaultPageSize,
		MaxPageSize:      cfg.Chat.MaxPageSize,
	})
	memberSvc := service.NewMembershipService(roomRepo, memberRepo, guard, messageSvc, hub)

	// --- WS ---
	wsServer := ws.NewServer(hub, verifier, guard, messageSvc, memberSvc, tracker, ws.Config{
		PingInterval:   cfg.WS.PingInterval,
		WriteTimeout:   cfg.WS.WriteTimeout,
		SendBuffer:     cfg.WS.SendBuffer,
		ReadLimit:      cfg.WS.ReadLimit,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	})

	// --- HTTP ---
	handler := httpx.NewHandler(messageSvc, memberSvc)
	router := httpx.NewRouter(handler, verifier, wsServer.HandleWS, httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(cfg.GRPC.DefaultTimeout)),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor()),
	)
	health := grpcx.Register(grpcServer, grpcx.NewServer(verifier, messageSvc))

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health.Shutdown()
	grpcServer.GracefulStop()
	// WS-соединения захвачены и Shutdown их не ждёт: закрываем через hub
	hub.Close()
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	if err := stopTracing(ctxShutdown); err != nil {
		slog.Error("tracing shutdown", "err", err)
	}
	slog.Info("stopped")
}
