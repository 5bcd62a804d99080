// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Media Engine мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - хранилище объектов — HTTP checker к bucket endpoint (critical)
//   - JWKS endpoint — HTTP checker (non-critical: при недоступности
//     сервис продолжает работать на ранее загруженных ключах)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках
	Group string
	// PgConnURL — URL подключения к PostgreSQL (для лейблов, не для подключения)
	PgConnURL string
	// StoreURL — базовый URL хранилища объектов
	StoreURL string
	// JWKSUrl — URL JWKS endpoint'а (пустая строка — проверка не добавляется)
	JWKSUrl string
	// CheckInterval — интервал проверки зависимостей
	CheckInterval time.Duration
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Использует connection pool mode для PostgreSQL: проверка выполняется
// через *sql.DB (адаптер pgxpool), что отражает реальную способность
// сервиса работать с базой данных.
func NewDephealthService(cfg DephealthConfig, db *sql.DB, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, db, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, db *sql.DB, logger *slog.Logger,
	registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, db, logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(cfg DephealthConfig, db *sql.DB, logger *slog.Logger,
	extraOpts ...dephealth.Option) (*DephealthService, error) {
	pgDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.PgConnURL),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}

	storeDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.StoreURL),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}

	opts := make([]dephealth.Option, 0, 4+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)), pgDepOpts...),
		dephealth.HTTP("object-store", storeDepOpts...),
	)

	// JWKS — не критичен: ранее загруженные ключи продолжают работать
	if cfg.JWKSUrl != "" {
		opts = append(opts, dephealth.HTTP("jwks", []dephealth.DependencyOption{
			dephealth.FromURL(cfg.JWKSUrl),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		}...))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + хранилище объектов)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
