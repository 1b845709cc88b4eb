package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"studiodesk/internal/api"
	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/domain"
	"studiodesk/internal/events"
	"studiodesk/internal/export"
	"studiodesk/internal/google"
	"studiodesk/internal/logging"
	"studiodesk/internal/metrics"
	"studiodesk/internal/models"
	"studiodesk/internal/notify"
	"studiodesk/internal/oracle"
	"studiodesk/internal/repository"
	"studiodesk/internal/service"
	"studiodesk/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

const (
	oracleCacheTTL     = 6 * time.Hour
	sheetsCacheRefresh = 10 * time.Minute
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

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	eventBus := events.NewEventBus()
	eventBus.SubscribeAll(func(ev *events.Event) error {
		metrics.IncBookingEvent(ev.Type)
		return nil
	})

	inventoryService := service.NewInventoryService(db, eventBus, logging.Component(&logger, "inventory"))
	if err := seedInventory(ctx, cfg, inventoryService, &logger); err != nil {
		return err
	}

	staffService := service.NewStaffService(db, logging.Component(&logger, "staff"))
	if err := staffService.SyncFromConfig(ctx, cfg.Staff); err != nil {
		logger.Error().Err(err).Msg("sync staff")
		return err
	}

	dispatcher := notify.NewDispatcher(db, db, initTelegram(cfg, &logger), logging.Component(&logger, "notify"))

	var syncWorker domain.SyncWorker
	if w := initSheetsWorker(ctx, cfg, db, redisClient, &logger); w != nil {
		syncWorker = w
		go w.Start(ctx)
	}

	hours, err := cfg.Booking.Hours()
	if err != nil {
		return err
	}

	checkLogger := logging.Component(&logger, "checks")
	conflicts := service.NewConflictChecker(db, checkLogger)
	availability := service.NewAvailabilityChecker(db, checkLogger)
	assistant := service.NewAssistant(
		db, db, conflicts, availability,
		service.NewTagMatcher(db, cfg.Booking.AlternativesFallbackSize),
		initOracle(cfg, redisClient, &logger),
		service.AssistantOptions{
			Hours:            hours,
			SlotStep:         cfg.Booking.SlotStep,
			AlternativeSlots: cfg.Booking.AlternativeSlots,
			OracleTimeout:    cfg.Oracle.Timeout,
		},
		logging.Component(&logger, "assistant"),
	)

	bookingService := service.NewBookingService(service.BookingDeps{
		Bookings:     db,
		Inventory:    db,
		Staff:        db,
		Conflicts:    conflicts,
		Availability: availability,
		Locker:       initSlotLocker(redisClient, &logger),
		Notifier:     dispatcher,
		EventBus:     eventBus,
		SheetsWorker: syncWorker,
	}, cfg.Booking, logging.Component(&logger, "booking"))

	svc := api.Services{
		Conflicts:     conflicts,
		Availability:  availability,
		Assistant:     assistant,
		Bookings:      bookingService,
		Inventory:     inventoryService,
		Notifications: dispatcher,
		Exporter:      export.NewExporter(db, db, cfg.Exports.Path, logging.Component(&logger, "export")),
		Health:        db.PingContext,
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, cfg, svc, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	dirs := []string{filepath.Dir(cfg.Database.Path)}
	if cfg.Exports.Path != "" {
		dirs = append(dirs, cfg.Exports.Path)
	}
	if cfg.Backup.Enabled && cfg.Backup.StoragePath != "" {
		dirs = append(dirs, cfg.Backup.StoragePath)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("create directory")
			return err
		}
	}
	return nil
}

func loadInventory(path string) ([]*models.InventoryItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var inventoryConfig struct {
		Items []*models.InventoryItem `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &inventoryConfig); err != nil {
		return nil, err
	}
	if err := config.ValidateInventory(inventoryConfig.Items); err != nil {
		return nil, err
	}
	return inventoryConfig.Items, nil
}

func seedInventory(ctx context.Context, cfg *config.Config, inventory *service.InventoryService, logger *zerolog.Logger) error {
	path := os.Getenv("INVENTORY_PATH")
	if path == "" {
		path = cfg.Inventory.SeedFile
	}
	if path == "" {
		return nil
	}

	items, err := loadInventory(path)
	if err != nil {
		logger.Error().Err(err).Str("inventory_path", path).Msg("load inventory")
		return err
	}
	if err := inventory.Seed(ctx, items); err != nil {
		logger.Error().Err(err).Msg("seed inventory")
		return err
	}
	logger.Info().Int("items", len(items)).Msg("inventory seeded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initSlotLocker(redisClient *redis.Client, logger *zerolog.Logger) domain.SlotLocker {
	memory := repository.NewMemorySlotLocker()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverSlotLocker(repository.NewRedisSlotLocker(redisClient), memory, logging.Component(logger, "slot-lock"))
}

func initOracle(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.Oracle {
	if !cfg.Oracle.Enabled {
		logger.Info().Msg("oracle disabled, suggestions use the template")
		return nil
	}

	client := oracle.NewClient(cfg.Oracle, logging.Component(logger, "oracle"))
	if redisClient != nil {
		client.UseRedisCache(redisClient, oracleCacheTTL)
	}
	return client
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) domain.TelegramSender {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, notifications stay in-app")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug

	logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram connected")
	return botAPI
}

func initSheetsWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheetsService, err := google.NewSheetsService(ctx, cfg.Google, sheetsLogger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}
	go sheetsService.RefreshCache(ctx, sheetsCacheRefresh)

	if email, err := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile); err == nil {
		logger.Info().Str("service_account", email).Msg("google sheets connected")
	}

	retryPolicy := worker.DefaultRetryPolicy()
	return worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, sheetsLogger)
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

func startServers(ctx context.Context, cfg *config.Config, svc api.Services, logger *zerolog.Logger) error {
	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, nothing to serve")
		<-ctx.Done()
		return nil
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(cfg.API, svc, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	httpServer := api.NewHTTPServer(cfg.API, svc, logger)
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Int("grpc_port", cfg.API.GRPC.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
