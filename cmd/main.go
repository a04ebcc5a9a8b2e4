package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"luckydraw/internal/announce"
	"luckydraw/internal/auth"
	"luckydraw/internal/config"
	"luckydraw/internal/handlers"
	"luckydraw/internal/metrics"
	"luckydraw/internal/services"
	"luckydraw/internal/store"
	"luckydraw/internal/store/memory"
	"luckydraw/internal/store/postgres"
	"luckydraw/internal/store/sqlite"
	"luckydraw/internal/telemetry"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for LUCKYDRAW_ADMIN_PASSWORD_HASH and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	defer logger.Init("luckydraw", true, false, io.Discard).Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := run(cfg); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Tracing
	shutdownTracing, err := telemetry.Setup(ctx, "luckydraw", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warningf("Failed to flush traces: %v", err)
		}
	}()

	// 2. Store
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 3. Announcer
	announcer, closeAnnouncer, err := openAnnouncer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAnnouncer()

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 5. Lottery service
	lotteryService, err := services.NewLotteryService(st, cfg.EventName,
		services.Pool{Min: cfg.MinNumber, Max: cfg.MaxNumber},
		services.WithMetrics(metrics.New(reg)),
		services.WithAnnouncer(announcer),
		services.WithAnnounceTimeout(cfg.AnnounceTimeout),
		services.WithTxTimeout(cfg.TxTimeout),
		services.WithMaxAttempts(cfg.MaxTxAttempts),
	)
	if err != nil {
		return fmt.Errorf("create lottery service: %w", err)
	}

	// 6. Operator login
	var operator *auth.Operator
	if cfg.OperatorEnabled() {
		operator, err = auth.NewOperator(cfg.AdminEmail, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTTTL)
		if err != nil {
			return fmt.Errorf("configure operator: %w", err)
		}
	} else {
		logger.Warning("Operator login is not configured; operator routes will answer 503")
	}

	// 7. Router
	if !cfg.LogVerbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.LogVerbose {
		r.Use(gin.Logger())
	}
	httpHandler := handlers.NewHTTPHandler(lotteryService, operator, st, reg)
	httpHandler.RegisterPublicRoutes(r)
	httpHandler.RegisterOperatorRoutes(r)

	// 8. Serve until signalled
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s (event %q, numbers %d-%d, store %s)",
			cfg.HTTPAddr, cfg.EventName, cfg.MinNumber, cfg.MaxNumber, cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.App) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warning("Using the in-memory store; data is lost on restart")
		return memory.New(), nil
	case config.StorePostgres:
		st, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.SQLitePath, err)
		}
		return st, nil
	}
}

func openAnnouncer(ctx context.Context, cfg config.App) (services.Announcer, func(), error) {
	switch cfg.Announcer {
	case config.AnnouncerRedis:
		a, err := announce.NewRedis(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis announcer: %w", err)
		}
		return a, func() { _ = a.Close() }, nil
	case config.AnnouncerAMQP:
		a, err := announce.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, fmt.Errorf("connect amqp announcer: %w", err)
		}
		return a, func() { _ = a.Close() }, nil
	case config.AnnouncerNone:
		return announce.Nop{}, func() {}, nil
	default:
		return announce.Log{}, func() {}, nil
	}
}
