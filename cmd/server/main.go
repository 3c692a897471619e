// Command onepass-server starts the onepass gRPC server and its admin endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/onepass/internal/admin"
	passesv1 "github.com/and161185/onepass/internal/api/passesv1"
	"github.com/and161185/onepass/internal/config"
	"github.com/and161185/onepass/internal/feed"
	"github.com/and161185/onepass/internal/limiter"
	"github.com/and161185/onepass/internal/migrate"
	"github.com/and161185/onepass/internal/notify"
	"github.com/and161185/onepass/internal/repository"
	"github.com/and161185/onepass/internal/repository/memory"
	"github.com/and161185/onepass/internal/repository/postgres"
	grpcserver "github.com/and161185/onepass/internal/server/grpc"
	"github.com/and161185/onepass/internal/service"
	"github.com/and161185/onepass/internal/signer"
	"github.com/and161185/onepass/internal/watch"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires storage and notifications, and serves gRPC plus admin HTTP.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.Bool("memoryStore", cfg.DSN == ""),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		docs     repository.PassDocRepository
		notifier repository.ChangeNotifier
		lim      limiter.Limiter
		probes   = map[string]admin.Pinger{}
	)

	if cfg.DSN != "" {
		if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("postgres pool", zap.Error(err))
		}
		defer db.Close()
		docs = postgres.NewPassRepo(db)
		lim = limiter.NewPG(db.Pool, cfg.ScanWindow, cfg.ScanMaxFails, cfg.ScanBlockFor)
		probes["postgres"] = db
	} else {
		docs = memory.NewStore()
		lim = limiter.NewMemory(cfg.ScanWindow, cfg.ScanMaxFails, cfg.ScanBlockFor)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		rn := notify.NewRedisNotifier(rdb, cfg.RedisNamespace)
		notifier = rn
		probes["redis"] = rn
	} else {
		notifier = memory.NewNotifier()
	}

	sg, err := signer.New([]byte(cfg.SigningSecret))
	if err != nil {
		logger.Fatal("signer", zap.Error(err))
	}
	hub := watch.NewHub(feed.New(docs, notifier, logger), logger)
	passSvc := service.NewPassService(service.PassDeps{
		Docs:          docs,
		Notifier:      notifier,
		Watcher:       hub,
		Provisioner:   signer.NewProvisioner(docs, notifier, sg, signer.SystemClock{}, logger),
		Verifier:      sg,
		Limiter:       lim,
		Log:           logger,
		ProvisionWait: cfg.ProvisionWait,
	})
	app := grpcserver.New(passSvc, []byte(cfg.JWTKey), logger)

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			app.AuthUnary(),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(logger),
			grpcserver.LoggingStream(logger),
			app.AuthStream(),
		),
	}
	if !cfg.Plaintext() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("serving gRPC without TLS (dev mode)")
	}
	s := grpc.NewServer(opts...)
	passesv1.RegisterPassesServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(passesv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	adminSrv := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           admin.Router(probes, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", !cfg.Plaintext()))
		errCh <- s.Serve(lis)
	}()
	go func() {
		logger.Info("admin listening", zap.String("addr", cfg.AdminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = adminSrv.Shutdown(shutdownCtx)

		// graceful shutdown; open watch streams end when the deadline forces Stop
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete", zap.Int("openWatches", hub.Subscriptions()))
}
