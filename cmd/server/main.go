// Command pillmon runs the pill dispenser monitor: device reconciliation, the HTTP API
// and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/alert"
	"github.com/and161185/pill-monitor/internal/archive"
	"github.com/and161185/pill-monitor/internal/config"
	"github.com/and161185/pill-monitor/internal/device"
	"github.com/and161185/pill-monitor/internal/inventory"
	"github.com/and161185/pill-monitor/internal/limiter"
	"github.com/and161185/pill-monitor/internal/migrate"
	"github.com/and161185/pill-monitor/internal/notify"
	"github.com/and161185/pill-monitor/internal/reconcile"
	"github.com/and161185/pill-monitor/internal/repository"
	"github.com/and161185/pill-monitor/internal/repository/memory"
	"github.com/and161185/pill-monitor/internal/repository/postgres"
	redisrepo "github.com/and161185/pill-monitor/internal/repository/redis"
	grpcserver "github.com/and161185/pill-monitor/internal/server/grpc"
	httpserver "github.com/and161185/pill-monitor/internal/server/http"
	"github.com/and161185/pill-monitor/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// openStorage selects the persistence backend and the matching auth limiter.
// The returned func releases them.
func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.KVRepository, limiter.Limiter, func(), error) {
	mem := limiter.NewMemory(limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
	switch cfg.Storage {
	case config.StoragePostgres:
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate up: %w", err)
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		lim := limiter.NewPG(db.Pool, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
		return postgres.NewKVRepo(db), lim, db.Close, nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisrepo.NewKVRepo(client), mem, func() { _ = client.Close() }, nil
	default:
		log.Warn("using in-memory storage, state is lost on restart")
		return memory.NewKVRepo(), mem, func() {}, nil
	}
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("storage", cfg.Storage),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, lim, closeRepo, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer closeRepo()

	hub := httpserver.NewHub(logger)
	notifier := notify.NewNotifier(notify.MultiSink{notify.LogSink{Log: logger}, hub}, logger)
	defer notifier.Close()

	store := inventory.New(repo, notifier, logger)
	if err := store.Load(ctx); err != nil {
		logger.Fatal("load inventory", zap.Error(err))
	}

	dev, err := device.New(cfg.DeviceAddr, cfg.DeviceTimeout, logger)
	if err != nil {
		logger.Fatal("device address", zap.Error(err))
	}

	profile := service.NewProfileService(repo, notifier, dev, logger)
	if err := profile.Restore(ctx); err != nil {
		logger.Fatal("restore settings", zap.Error(err))
	}

	interp, err := alert.NewInterpreter(store, notifier, logger, cfg.AlertDedupe)
	if err != nil {
		logger.Fatal("alert interpreter", zap.Error(err))
	}

	tokens := service.NewTokenService([]byte(cfg.JWTKey), cfg.TokenTTL)

	var grpcSrv *grpcserver.Server
	var recOpts []reconcile.Option
	recOpts = append(recOpts, reconcile.WithTimeout(cfg.DeviceTimeout))
	if cfg.GRPCAddr != "" {
		grpcSrv = grpcserver.New(tokens, logger)
		if cfg.Dev {
			grpcSrv.EnableReflection()
		}
		recOpts = append(recOpts, reconcile.WithConnectivityHook(grpcSrv.SetDeviceConnected))
	}
	rec := reconcile.New(dev, store, interp, logger, recOpts...)

	var archiver service.Archiver
	if cfg.Archive.Enabled {
		exp, err := archive.NewS3Exporter(archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			logger.Fatal("archive", zap.Error(err))
		}
		archiver = exp
	}

	monitor := service.NewMonitorService(store, rec, notifier, archiver, logger)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewRouter(httpserver.Options{
			Monitor: monitor,
			Profile: profile,
			Tokens:  tokens,
			Limiter: lim,
			Hub:     hub,
			Log:     logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if grpcSrv != nil {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		rec.Run(ctx, cfg.PollInterval)
	}()

	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exit = 1
		stop()
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutCtx.Done():
		}
	}
	<-runDone

	logger.Info("shutdown complete")
	if exit != 0 {
		os.Exit(exit)
	}
}
