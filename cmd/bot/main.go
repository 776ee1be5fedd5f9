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

	"torch/internal/bot"
	"torch/internal/catalog"
	"torch/internal/config"
	"torch/internal/domain"
	"torch/internal/logging"
	"torch/internal/repository"
	"torch/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	cat := catalog.Default()
	if cfg.Portal.TiersPath != "" {
		if cat, err = catalog.Load(cfg.Portal.TiersPath); err != nil {
			logger.Error().Err(err).Str("tiers_path", cfg.Portal.TiersPath).Msg("load tiers")
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := initLimiter(ctx, cfg, logger)

	metrics := bot.NewMetrics(nil)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	return startBot(ctx, cfg, cat, limiter, metrics, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logging.Component(baseLogger, "bot-main"), closer, nil
}

// initLimiter keeps per-chat counters in Redis when it is reachable, otherwise in memory.
func initLimiter(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.KVStore {
	memory := repository.NewMemoryStore()
	if cfg.Redis.Address == "" {
		return memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis недоступен, счетчики в памяти")
		_ = redisClient.Close()
		return memory
	}
	go func() {
		<-ctx.Done()
		_ = redisClient.Close()
	}()
	return repository.NewFailoverStore(repository.NewRedisStore(redisClient), memory, logging.Component(logger, "kv"))
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	cat *catalog.Catalog,
	limiter domain.KVStore,
	metrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Error().Msg("Задайте токен бота в config.yaml")
		return os.ErrInvalid
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	telegramBot, err := bot.NewBot(
		bot.NewBotWrapper(botAPI),
		service.NewKeywordConcierge(nil),
		cat,
		limiter,
		cfg.Telegram,
		metrics,
		logging.Component(logger, "bot"),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	logger.Info().Msg("Бот запущен...")
	go func() {
		<-ctx.Done()
		telegramBot.Stop()
	}()
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
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
