// Точка входа Media Engine — сервиса загрузки и обработки медиафайлов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиенты хранилища объектов и шины событий, сервисный слой и
// API handlers, запускает мониторинг зависимостей (topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nicholasjvr/inque.com-sub002/internal/api/handlers"
	"github.com/nicholasjvr/inque.com-sub002/internal/api/middleware"
	"github.com/nicholasjvr/inque.com-sub002/internal/config"
	"github.com/nicholasjvr/inque.com-sub002/internal/database"
	"github.com/nicholasjvr/inque.com-sub002/internal/eventbus"
	"github.com/nicholasjvr/inque.com-sub002/internal/objectstore"
	"github.com/nicholasjvr/inque.com-sub002/internal/repository"
	"github.com/nicholasjvr/inque.com-sub002/internal/server"
	"github.com/nicholasjvr/inque.com-sub002/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Media Engine запускается",
		slog.String("version", config.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Int("port", cfg.Port),
	)

	// 3. Миграции схемы БД
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка применения миграций", slog.String("error", err.Error()))
		log.Fatalf("Миграции не применены: %v", err)
	}

	// 4. Подключение к PostgreSQL
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		log.Fatalf("PostgreSQL недоступен: %v", err)
	}

	fileRepo := repository.NewFileRepository(pool)

	// 5. Клиент хранилища объектов.
	// Токен не настраивается: доступ к bucket'у авторизуется на уровне
	// инфраструктуры (workload identity / сетевые политики)
	store := objectstore.New(cfg.StoreURL, cfg.StoreBucket, cfg.StoreTimeout, nil, logger)

	// 6. Издатель событий шины
	publisher := eventbus.NewHTTPPublisher(cfg.EventPushURL, cfg.EventMaxAttempts,
		cfg.EventRetryBackoff, nil, logger)

	// 7. Сервисный слой
	grants := service.NewGrantService(fileRepo, store, publisher, cfg.MaxFileSize, logger)
	queries := service.NewFileQueryService(fileRepo, cfg.CacheSize, cfg.CacheTTL, logger)
	processor := service.NewProcessingService(fileRepo, store, logger)

	// 8. Мониторинг зависимостей (topologymetrics).
	// Ошибка инициализации не фатальна: сервис работает без графа зависимостей
	pgDB := stdlib.OpenDBFromPool(pool)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     cfg.InstanceID,
		Group:         cfg.DephealthGroup,
		PgConnURL:     cfg.DatabaseDSN(),
		StoreURL:      cfg.StoreURL,
		JWKSUrl:       cfg.JWKSUrl,
		CheckInterval: cfg.DephealthCheckInterval,
	}, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("Мониторинг зависимостей не инициализирован",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Мониторинг зависимостей не запущен",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	}

	// 9. JWT middleware через JWKS платформенного SSO
	auth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		ClientTimeout:   10 * time.Second,
		RefreshInterval: time.Hour,
		JWTLeeway:       30 * time.Second,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации JWT middleware", slog.String("error", err.Error()))
		log.Fatalf("JWT middleware не создан: %v", err)
	}

	// 10. API handlers
	dbChecker := database.NewReadinessChecker(pool)
	apiHandler := handlers.NewAPIHandler(
		handlers.NewFilesHandler(grants, queries, logger),
		handlers.NewEventsHandler(processor, logger),
		handlers.NewHealthHandler(map[string]handlers.ReadyChecker{
			"postgresql":   dbChecker,
			"object-store": handlers.ReadyCheckerFunc(store.Ping),
		}),
		auth,
	)

	// 11. HTTP-сервер с хуками завершения
	srv := server.New(cfg, logger, apiHandler)
	srv.OnStop(func(shutdownCtx context.Context) {
		if err := publisher.Stop(shutdownCtx); err != nil {
			logger.Warn("Издатель событий не завершил доставки",
				slog.String("error", err.Error()),
			)
		}
		if dephealthSvc != nil {
			dephealthSvc.Stop()
		}
		pool.Close()
	})

	// 12. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("Media Engine остановлен")
}
