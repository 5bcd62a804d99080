// Пакет config — загрузка и валидация конфигурации Media Engine
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Media Engine.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уникальный идентификатор экземпляра (например, "me-eu-01")
	InstanceID string

	// Параметры подключения к PostgreSQL (реестр media_files)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Базовый URL хранилища объектов (GCS-совместимый endpoint)
	StoreURL string
	// Имя bucket'а для исходников и вариантов
	StoreBucket string
	// Таймаут HTTP-запросов к хранилищу объектов
	StoreTimeout time.Duration

	// URL push-endpoint'а, на который публикуются события обработки
	EventPushURL string
	// Максимальное количество попыток доставки события
	EventMaxAttempts int
	// Базовый интервал между повторными попытками доставки
	EventRetryBackoff time.Duration

	// Максимальный заявленный размер файла в байтах
	MaxFileSize int64

	// URL JWKS endpoint для проверки JWT
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string

	// Путь к TLS сертификату (опционально — без него сервер работает по HTTP)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Размер LRU-кэша метаданных (количество записей)
	CacheSize int
	// TTL записи в кэше метаданных
	CacheTTL time.Duration

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// ME_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("ME_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("ME_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("ME_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// ME_INSTANCE_ID — обязательный
	cfg.InstanceID, err = getEnvRequired("ME_INSTANCE_ID")
	if err != nil {
		return nil, err
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("ME_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("ME_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("ME_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("ME_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("ME_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("ME_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("ME_DB_SSLMODE", "disable")

	// --- Хранилище объектов ---

	// ME_STORE_URL — обязательный, базовый URL GCS-совместимого endpoint
	cfg.StoreURL, err = getEnvRequired("ME_STORE_URL")
	if err != nil {
		return nil, err
	}

	// ME_STORE_BUCKET — обязательный
	cfg.StoreBucket, err = getEnvRequired("ME_STORE_BUCKET")
	if err != nil {
		return nil, err
	}

	// ME_STORE_TIMEOUT — таймаут запросов к хранилищу (по умолчанию 60s)
	cfg.StoreTimeout, err = getEnvDuration("ME_STORE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ME_STORE_TIMEOUT: %w", err)
	}

	// --- Шина событий ---

	// ME_EVENT_PUSH_URL — обязательный, push-endpoint worker'а
	cfg.EventPushURL, err = getEnvRequired("ME_EVENT_PUSH_URL")
	if err != nil {
		return nil, err
	}

	// ME_EVENT_MAX_ATTEMPTS — попытки доставки (по умолчанию 5)
	cfg.EventMaxAttempts, err = getEnvInt("ME_EVENT_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("ME_EVENT_MAX_ATTEMPTS: %w", err)
	}
	if cfg.EventMaxAttempts < 1 {
		return nil, fmt.Errorf("ME_EVENT_MAX_ATTEMPTS: значение должно быть положительным")
	}

	// ME_EVENT_RETRY_BACKOFF — базовый интервал retry (по умолчанию 2s)
	cfg.EventRetryBackoff, err = getEnvDuration("ME_EVENT_RETRY_BACKOFF", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ME_EVENT_RETRY_BACKOFF: %w", err)
	}

	// ME_MAX_FILE_SIZE — максимальный заявленный размер файла (по умолчанию 100 MB)
	cfg.MaxFileSize, err = getEnvInt64("ME_MAX_FILE_SIZE", 104857600)
	if err != nil {
		return nil, fmt.Errorf("ME_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("ME_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// --- Аутентификация ---

	// ME_JWKS_URL — обязательный
	cfg.JWKSUrl, err = getEnvRequired("ME_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// ME_JWKS_CA_CERT — путь к CA-сертификату для JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("ME_JWKS_CA_CERT", "")

	// --- TLS ---

	cfg.TLSCert = getEnvDefault("ME_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("ME_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("ME_TLS_CERT и ME_TLS_KEY должны задаваться вместе")
	}

	// --- Логирование ---

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("ME_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("ME_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("ME_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("ME_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Кэш метаданных ---

	cfg.CacheSize, err = getEnvInt("ME_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("ME_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("ME_CACHE_SIZE: значение должно быть положительным")
	}

	cfg.CacheTTL, err = getEnvDuration("ME_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("ME_CACHE_TTL: %w", err)
	}

	// ME_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("ME_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ME_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthCheckInterval, err = getEnvDuration("ME_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ME_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.DephealthGroup = getEnvDefault("ME_DEPHEALTH_GROUP", "media-engine")

	return cfg, nil
}

// DatabaseDSN формирует строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
