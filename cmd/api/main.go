package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"torch/internal/api"
	"torch/internal/catalog"
	"torch/internal/config"
	"torch/internal/database"
	"torch/internal/domain"
	"torch/internal/events"
	"torch/internal/google"
	"torch/internal/logging"
	"torch/internal/metrics"
	"torch/internal/models"
	"torch/internal/payments"
	"torch/internal/repository"
	"torch/internal/service"
	"torch/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	cat, err := loadCatalog(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	kv := initKVStore(redisClient, logger)

	eventBus := events.NewEventBus()
	eventBus.SubscribeAll(func(e *events.Event) error {
		metrics.IncEvent(e.Type)
		return nil
	})

	sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, logger)
	// nil *SheetsWorker must stay a nil interface for the services
	var syncWorker domain.SyncWorker
	var memberSyncer api.MemberSyncer
	if sheetsWorker != nil {
		syncWorker = sheetsWorker
		memberSyncer = sheetsWorker
	}

	sessions := service.NewSessionStore(kv, db, eventBus, cfg.Portal.HandoffTTL(), logging.Component(logger, "sessions"))
	bookings := service.NewBookingEngine(cat, sessions, nil, eventBus, syncWorker, logging.Component(logger, "bookings"))
	guests := service.NewGuestRegistrar(cat, sessions, service.UUIDGenerator{Prefix: "G-"}, eventBus, logging.Component(logger, "guests"))
	inquiries := service.NewInquiryService(kv, eventBus, syncWorker, logging.Component(logger, "inquiries"))
	billing := service.NewBillingService(initPaymentProvider(cfg, redisClient, logger), sessions, cat, cfg.Square, eventBus, logging.Component(logger, "billing"))

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	httpServer := api.NewHTTPServer(&cfg.API, api.Deps{
		Sessions:  sessions,
		Bookings:  bookings,
		Guests:    guests,
		Inquiries: inquiries,
		Billing:   billing,
		Concierge: service.NewKeywordConcierge(nil),
		Catalog:   cat,
		Members:   db,
		DB:        db,
		Sheets:    memberSyncer,
		SyncQueue: db,
		ExportDir: cfg.Exports.Path,
		Today:     todayFunc(cfg.Portal),
	}, logging.Component(logger, "http"))

	checks := map[string]api.Pinger{"sqlite": db}
	if redisClient != nil {
		checks["redis"] = redisPinger{client: redisClient}
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, checks, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx)
	}

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func loadCatalog(cfg *config.Config, logger *zerolog.Logger) (*catalog.Catalog, error) {
	if cfg.Portal.TiersPath == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Portal.TiersPath)
	if err != nil {
		logger.Error().Err(err).Str("tiers_path", cfg.Portal.TiersPath).Msg("load tiers")
		return nil, err
	}
	return cat, nil
}

// initDatabase opens the directory and seeds members that are not there yet.
func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	seed := repository.DemoMembers()
	if cfg.Portal.MembersPath != "" {
		seed, err = repository.LoadMembers(cfg.Portal.MembersPath)
		if err != nil {
			db.Close()
			logger.Error().Err(err).Str("members_path", cfg.Portal.MembersPath).Msg("load members")
			return nil, err
		}
	}
	if _, err := db.SeedMembers(ctx, seed); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed members: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initKVStore prefers Redis with an in-memory fallback, or memory alone without Redis.
func initKVStore(redisClient *redis.Client, logger *zerolog.Logger) domain.KVStore {
	memory := repository.NewMemoryStore()
	if redisClient == nil {
		logger.Warn().Msg("no redis configured, member slots are kept in memory")
		return memory
	}
	return repository.NewFailoverStore(repository.NewRedisStore(redisClient), memory, logging.Component(logger, "kv"))
}

func initPaymentProvider(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.PaymentProvider {
	if !cfg.Square.Enabled() {
		logger.Warn().Msg("square access token not set, card operations disabled")
		return nil
	}
	client := payments.NewSquareClient(cfg.Square, logging.Component(logger, "square"))
	if redisClient != nil {
		client.UseRedisCache(redisClient, models.CardsCacheTTL)
	}
	return client
}

func initSheetsWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	if !cfg.Google.Enabled() {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("share_with", email).Msg("spreadsheet not reachable, share it with the service account")
		return nil
	}
	if err := sheetsService.EnsureHeaders(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets headers check failed")
	}
	logger.Info().Msg("google sheets connected")

	retryPolicy := worker.DefaultRetryPolicy()
	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, db, redisClient, retryPolicy, logging.Component(logger, "sheets-worker"))
	go sheetsWorker.Start(ctx)
	return sheetsWorker
}

// todayFunc pins "today" to portal.demo_today when it is set.
func todayFunc(p config.PortalConfig) service.Clock {
	if p.DemoToday == "" {
		return time.Now
	}
	day, err := time.ParseInLocation(models.DateLayout, p.DemoToday, time.Local)
	if err != nil {
		return time.Now
	}
	return func() time.Time { return day.Add(12 * time.Hour) }
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return repository.Ping(ctx, p.client)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("portal API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("portal API stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
