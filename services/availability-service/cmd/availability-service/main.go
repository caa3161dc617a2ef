package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/md-rashed-zaman/apptavail/libs/config"
	"github.com/md-rashed-zaman/apptavail/libs/db"
	"github.com/md-rashed-zaman/apptavail/libs/grpcx"
	"github.com/md-rashed-zaman/apptavail/libs/httpx"
	"github.com/md-rashed-zaman/apptavail/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptavail/libs/otel"
	"github.com/md-rashed-zaman/apptavail/libs/runtime"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/alerts"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/calendar"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/calendar/cache"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/invalidation"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/remote"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/storage"
)

type settings struct {
	port, grpcPort string
	databaseURL    string
	fetchTimeout   time.Duration
	cacheTTL       time.Duration
	rateLimit      int
	dbMaxConns     int
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)
	if s.port, err = config.Port("PORT", "8085"); err != nil {
		return s, err
	}
	if s.grpcPort, err = config.Port("GRPC_PORT", "9095"); err != nil {
		return s, err
	}
	if s.databaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return s, err
	}
	if s.fetchTimeout, err = config.Duration("CALENDAR_FETCH_TIMEOUT", remote.DefaultFetchTimeout); err != nil {
		return s, err
	}
	if s.cacheTTL, err = config.Duration("CALENDAR_CACHE_TTL", cache.DefaultTTL); err != nil {
		return s, err
	}
	if s.rateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return s, err
	}
	if s.dbMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return s, err
	}
	return s, nil
}

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	logger := runtime.NewLogger(service)

	cfg, err := loadSettings()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(service)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.databaseURL, db.Options{MaxConns: int32(cfg.dbMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	schedules := storage.NewScheduleRepository(pool)
	calendars := storage.NewCalendarRepository(pool)
	appointments := storage.NewAppointmentRepository(pool)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			logger.Error("invalid configuration", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	router := calendar.NewRouter(calendars, newProviderMux(logger), calendar.BreakerConfig{}, logger)
	var source remote.EventSource = router
	var busyCache *cache.BusyCache
	if rdb != nil {
		busyCache = cache.New(router, rdb, cfg.cacheTTL, config.String("CALENDAR_CACHE_PREFIX", "avail:events"), logger)
		source = busyCache
		logger.Info("calendar event cache enabled (redis)", "ttl", cfg.cacheTTL.String())
	}
	aggregator := remote.NewAggregator(source, remote.Options{Timeout: cfg.fetchTimeout}, logger)

	computerOpts := []availability.Option{availability.WithAppointmentSource(appointments)}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		alertCfg := alerts.Config{
			Brokers: brokers,
			Topic:   config.String("KAFKA_ALERT_TOPIC", alerts.DefaultTopic),
		}
		writer := alerts.NewKafkaWriter(alertCfg)
		defer func() { _ = writer.Close() }()
		alerter := alerts.NewKafkaAlerter(writer, alertCfg, logger)
		go alerter.Run(ctx)
		computerOpts = append(computerOpts, availability.WithAlerter(alerter))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})

		if busyCache != nil {
			reader := invalidation.NewKafkaReader(invalidation.Config{
				Brokers: brokers,
				GroupID: config.String("KAFKA_GROUP_ID", "availability-service"),
				Topic:   config.String("KAFKA_CALENDAR_CHANGES_TOPIC", invalidation.DefaultTopic),
			})
			go invalidation.New(reader, busyCache, logger).Run(ctx)
		}
	} else {
		logger.Warn("calendar failure alerts disabled (no kafka brokers configured)")
	}

	computer := availability.NewComputer(aggregator, logger, computerOpts...)
	svc := availability.NewService(schedules, calendars, computer, time.Now, logger)
	slotsHandler := handlers.NewSlotsHandler(svc, availability.NewSessions(10*time.Minute), logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/public/slots", slotsHandler.Slots)

	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, cfg.rateLimit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:avail"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		rateLimitMW = httpx.NewRateLimiter(cfg.rateLimit, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id", handlers.SessionHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(cfg.fetchTimeout+5*time.Second),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(grpcx.ServerOptions{Logger: logger})
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)

	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
