package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openexch/exauth/internal/apikey"
	"github.com/openexch/exauth/internal/audit"
	"github.com/openexch/exauth/internal/captcha"
	"github.com/openexch/exauth/internal/config"
	"github.com/openexch/exauth/internal/email"
	"github.com/openexch/exauth/internal/frozen"
	"github.com/openexch/exauth/internal/gate"
	"github.com/openexch/exauth/internal/handlers"
	"github.com/openexch/exauth/internal/otp"
	"github.com/openexch/exauth/internal/rate"
	"github.com/openexch/exauth/internal/recovery"
	"github.com/openexch/exauth/internal/security"
	"github.com/openexch/exauth/internal/storage"
	"github.com/openexch/exauth/internal/token"
	"github.com/openexch/exauth/libs/health"
	"github.com/openexch/exauth/libs/httpmiddleware"
	"github.com/openexch/exauth/libs/kafka"
	"github.com/openexch/exauth/libs/logging"
	"github.com/openexch/exauth/libs/metrics"
	"github.com/openexch/exauth/libs/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	ready := health.NewManager(true)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.New(pool)

	loginLimiter, resetLimiter, limiterClose, err := buildLimiters(cfg, logger)
	if err != nil {
		logger.Error("rate limiter init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = limiterClose()
	}()

	frozenSet := frozen.NewSet()
	refreshCtx, cancelRefresh := context.WithCancel(context.Background())
	defer cancelRefresh()
	refresher := &frozen.Refresher{
		Set:      frozenSet,
		Store:    store,
		Interval: cfg.FrozenRefreshPeriod,
		Logger:   logger,
	}
	go refresher.Run(refreshCtx)

	auditor, auditClose := buildAuditor(cfg, logger, registry)
	defer func() {
		_ = auditClose()
	}()

	tokens := token.New(token.Config{
		Secret:           []byte(cfg.JWT.Secret),
		Issuer:           cfg.JWT.Issuer,
		TTL:              cfg.JWT.TTL,
		BaseScopes:       cfg.JWT.BaseScopes,
		IPAllowlist:      cfg.JWT.IPAllowlist,
		AdminScopes:      cfg.JWT.AdminScopes,
		SupportScopes:    cfg.JWT.SupportScopes,
		SupervisorScopes: cfg.JWT.SupervisorScopes,
		KYCScopes:        cfg.JWT.KYCScopes,
		TechScopes:       cfg.JWT.TechScopes,
	}, frozenSet)

	keys := apikey.New(store, apikey.SystemPair{
		Key:    cfg.SystemKey.Key,
		Secret: cfg.SystemKey.Secret,
	})

	otpSvc := otp.New(store, cfg.TOTPIssuer)

	mailer := &email.LogMailer{Logger: logger}
	recoverySvc := &recovery.Service{
		Store: store,
		Captcha: captcha.New(cfg.Captcha.Endpoint, cfg.Captcha.Secret,
			cfg.App.Env != "dev" && cfg.App.Env != "test"),
		Mailer: mailer,
		Logger: logger,
		Argon2: argonParams(cfg),
	}

	handler := handlers.New(store, tokens, otpSvc, recoverySvc, loginLimiter, resetLimiter, logger, auditor, mailer)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	handler.RegisterRoutes(router, gate.New(tokens, keys))

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("exauth service starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
}

func argonParams(cfg *config.Config) security.Argon2Params {
	return security.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func buildLimiters(cfg *config.Config, logger *slog.Logger) (rate.Limiter, rate.Limiter, func() error, error) {
	if cfg.RateLimit.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if cfg.App.Env == "dev" || cfg.App.Env == "test" {
				logger.Warn("redis rate limiter unavailable, falling back to memory", "error", err)
				return memoryLimiters(cfg)
			}
			return nil, nil, nil, err
		}

		login := rate.NewRedisLimiter(client, cfg.RateLimit.LoginLimit, cfg.RateLimit.Window, cfg.RateLimit.Redis.Prefix)
		reset := rate.NewRedisLimiter(client, cfg.RateLimit.ResetLimit, cfg.RateLimit.Window, cfg.RateLimit.Redis.Prefix)
		return login, reset, client.Close, nil
	}

	if cfg.App.Env == "dev" || cfg.App.Env == "test" {
		return memoryLimiters(cfg)
	}

	return nil, nil, nil, fmt.Errorf("rate limiter redis not configured")
}

func memoryLimiters(cfg *config.Config) (rate.Limiter, rate.Limiter, func() error, error) {
	login := rate.NewMemory(cfg.RateLimit.LoginLimit, cfg.RateLimit.Window)
	reset := rate.NewMemory(cfg.RateLimit.ResetLimit, cfg.RateLimit.Window)
	return login, reset, func() error { return nil }, nil
}

func buildAuditor(cfg *config.Config, logger *slog.Logger, registry *prometheus.Registry) (*audit.Emitter, func() error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("kafka not configured, audit events disabled")
		return nil, func() error { return nil }
	}

	producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafka.NewProducerMetrics(registry))
	if err != nil {
		logger.Error("kafka producer init failed, audit events disabled", "error", err)
		return nil, func() error { return nil }
	}

	return audit.New(producer, cfg.Kafka.AuditTopic, logger), producer.Close
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
