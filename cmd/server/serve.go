package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"face-registry/internal/api/handlers"
	"face-registry/internal/api/websocket"
	"face-registry/internal/config"
	"face-registry/internal/logger"
	"face-registry/internal/service/cache"
	"face-registry/internal/service/extractor"
	"face-registry/internal/service/orchestrator"
	"face-registry/internal/service/storage"
	"face-registry/pkg/inference_client"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	cacheWriteTimeout = 2 * time.Second
	cleanupInterval   = 10 * time.Minute
	staleFileAge      = time.Hour
	shutdownTimeout   = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the face registry HTTP server with the registration,
recognition and lookup endpoints, Prometheus metrics and the event WebSocket.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "Port to listen on (overrides SERVER_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides SERVER_HOST)")
	serveCmd.Flags().Bool("migrate", false, "Create tables and indexes before starting")
}

func runServe(cmd *cobra.Command, args []string) error {
	printBanner()

	cfg := config.Load()
	logger.Init(cfg.Log)
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Info("✅ Конфигурация загружена")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := s.migrate(ctx, cfg.Vector.Dim); err != nil {
			return err
		}
		log.Info("✅ Схема БД готова")
	}

	// Redis опционален: без него метаданные читаются из БД
	var personCache orchestrator.PersonCache
	cacheService, err := cache.NewService(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Database.PersonTable)
	if err != nil {
		log.Warnf("⚠️  Redis недоступен (работаем без кэша): %v", err)
	} else {
		defer cacheService.Close()
		personCache = cacheService
		log.Info("✅ Redis кэш подключен")
	}

	storageService, err := storage.NewService(cfg.Storage.DownloadDir, cfg.Storage.DownloadTimeout)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	go cleanupLoop(ctx, storageService)
	log.Info("✅ Storage сервис инициализирован")

	inferenceClient := inference_client.NewClient(cfg.Inference.BaseURL, cfg.Inference.Timeout)
	if err := inferenceClient.HealthCheck(ctx); err != nil {
		log.Warnf("⚠️  Сервер инференса недоступен: %v", err)
	} else {
		log.Info("✅ Сервер инференса доступен")
	}

	wsManager := websocket.NewManager()
	go wsManager.Run(ctx)
	log.Info("✅ WebSocket manager запущен")

	orch := orchestrator.New(
		extractor.New(inferenceClient, cfg.Vector.Dim),
		s.identities,
		s.metadata,
		personCache,
		wsManager,
		orchestrator.Options{
			FaceAreaFraction:       cfg.Inference.FaceAreaFraction,
			FaceCountThreshold:     cfg.Inference.FaceCountThreshold,
			SearchTopK:             cfg.Inference.SearchTopK,
			MatchDistanceThreshold: cfg.Inference.MatchDistanceThreshold,
			CacheTTL:               cfg.Redis.TTL,
			CacheTimeout:           cacheWriteTimeout,
			IdentityLock:           cfg.Registry.IdentityLock,
		},
	)
	if !cfg.Registry.IdentityLock {
		log.Warn("⚠️  IDENTITY_LOCK выключен: параллельные регистрации одного id могут создать дубликаты")
	}

	handler := handlers.NewHandler(orch, storageService, s.identities, s.metadata, inferenceClient, handlers.Defaults{
		ModelName:              cfg.Inference.Model,
		DetectionThreshold:     cfg.Inference.DetectionThreshold,
		MatchDistanceThreshold: cfg.Inference.MatchDistanceThreshold,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           setupRouter(handler, wsManager, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Info("🎉 Сервер успешно запущен!")
	log.Infof("📡 API: http://localhost:%s", cfg.Server.Port)
	log.Infof("📈 Метрики: http://localhost:%s/metrics", cfg.Server.Port)
	log.Infof("🔌 WebSocket: ws://localhost:%s/ws", cfg.Server.Port)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
	case <-ctx.Done():
		log.Info("🛑 Останавливаем сервер...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("❌ Ошибка остановки сервера")
	}
	orch.Wait()

	return nil
}

// cleanupLoop удаляет временные файлы, оставшиеся после прерванных запросов
func cleanupLoop(ctx context.Context, s *storage.Service) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.CleanupOlderThan(staleFileAge)
			if err != nil {
				log.WithError(err).Warn("⚠️  Очистка временных файлов не удалась")
				continue
			}
			if removed > 0 {
				log.Infof("🧹 Удалено %d временных файлов", removed)
			}
		}
	}
}
