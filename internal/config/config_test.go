package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvVars устанавливает переменные окружения для теста и возвращает
// функцию очистки. Всегда вызывать defer cleanup().
func setEnvVars(t *testing.T, vars map[string]string) func() {
	t.Helper()

	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for k := range vars {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
	}

	for k, v := range vars {
		os.Setenv(k, v)
	}

	return func() {
		for k := range vars {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// clearAllMEEnvVars очищает все переменные окружения ME_* для чистого теста.
func clearAllMEEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"ME_PORT", "ME_INSTANCE_ID",
		"ME_DB_HOST", "ME_DB_PORT", "ME_DB_NAME", "ME_DB_USER", "ME_DB_PASSWORD", "ME_DB_SSLMODE",
		"ME_STORE_URL", "ME_STORE_BUCKET", "ME_STORE_TIMEOUT",
		"ME_EVENT_PUSH_URL", "ME_EVENT_MAX_ATTEMPTS", "ME_EVENT_RETRY_BACKOFF",
		"ME_MAX_FILE_SIZE", "ME_JWKS_URL", "ME_JWKS_CA_CERT",
		"ME_TLS_CERT", "ME_TLS_KEY", "ME_LOG_LEVEL", "ME_LOG_FORMAT",
		"ME_CACHE_SIZE", "ME_CACHE_TTL", "ME_SHUTDOWN_TIMEOUT",
		"ME_DEPHEALTH_CHECK_INTERVAL", "ME_DEPHEALTH_GROUP",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// requiredEnvVars возвращает минимальный набор обязательных переменных.
func requiredEnvVars() map[string]string {
	return map[string]string{
		"ME_INSTANCE_ID":    "me-test-01",
		"ME_DB_NAME":        "inque",
		"ME_DB_USER":        "inque",
		"ME_DB_PASSWORD":    "secret",
		"ME_STORE_URL":      "http://storage.test:4443",
		"ME_STORE_BUCKET":   "inque-media",
		"ME_EVENT_PUSH_URL": "http://localhost:8020/internal/events/uploaded",
		"ME_JWKS_URL":       "https://auth.test/jwks.json",
	}
}

// TestLoad_Defaults проверяет значения по умолчанию при минимальной конфигурации.
func TestLoad_Defaults(t *testing.T) {
	defer clearAllMEEnvVars(t)()
	defer setEnvVars(t, requiredEnvVars())()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load(): неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8020 {
		t.Errorf("Port = %d, ожидалось 8020", cfg.Port)
	}
	if cfg.DBHost != "localhost" {
		t.Errorf("DBHost = %q, ожидалось localhost", cfg.DBHost)
	}
	if cfg.MaxFileSize != 104857600 {
		t.Errorf("MaxFileSize = %d, ожидалось 104857600", cfg.MaxFileSize)
	}
	if cfg.EventMaxAttempts != 5 {
		t.Errorf("EventMaxAttempts = %d, ожидалось 5", cfg.EventMaxAttempts)
	}
	if cfg.EventRetryBackoff != 2*time.Second {
		t.Errorf("EventRetryBackoff = %v, ожидалось 2s", cfg.EventRetryBackoff)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидался info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидался json", cfg.LogFormat)
	}
	if cfg.CacheSize != 1024 {
		t.Errorf("CacheSize = %d, ожидалось 1024", cfg.CacheSize)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, ожидалось 5m", cfg.CacheTTL)
	}
}

// TestLoad_MissingRequired проверяет ошибки при отсутствии обязательных переменных.
func TestLoad_MissingRequired(t *testing.T) {
	required := []string{
		"ME_INSTANCE_ID", "ME_DB_NAME", "ME_DB_USER", "ME_DB_PASSWORD",
		"ME_STORE_URL", "ME_STORE_BUCKET", "ME_EVENT_PUSH_URL", "ME_JWKS_URL",
	}

	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			defer clearAllMEEnvVars(t)()
			vars := requiredEnvVars()
			delete(vars, missing)
			defer setEnvVars(t, vars)()

			if _, err := Load(); err == nil {
				t.Errorf("Load() без %s должен вернуть ошибку", missing)
			}
		})
	}
}

// TestLoad_InvalidValues проверяет валидацию некорректных значений.
func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"некорректный порт", "ME_PORT", "not-a-number"},
		{"порт вне диапазона", "ME_PORT", "70000"},
		{"отрицательный размер файла", "ME_MAX_FILE_SIZE", "-1"},
		{"нулевые попытки доставки", "ME_EVENT_MAX_ATTEMPTS", "0"},
		{"некорректная длительность", "ME_CACHE_TTL", "five-minutes"},
		{"некорректный формат логов", "ME_LOG_FORMAT", "xml"},
		{"некорректный уровень логов", "ME_LOG_LEVEL", "trace"},
		{"нулевой размер кэша", "ME_CACHE_SIZE", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer clearAllMEEnvVars(t)()
			vars := requiredEnvVars()
			vars[tt.key] = tt.val
			defer setEnvVars(t, vars)()

			if _, err := Load(); err == nil {
				t.Errorf("Load() с %s=%q должен вернуть ошибку", tt.key, tt.val)
			}
		})
	}
}

// TestLoad_TLSPair проверяет, что TLS-сертификат и ключ задаются только вместе.
func TestLoad_TLSPair(t *testing.T) {
	defer clearAllMEEnvVars(t)()
	vars := requiredEnvVars()
	vars["ME_TLS_CERT"] = "/etc/tls/cert.pem"
	defer setEnvVars(t, vars)()

	if _, err := Load(); err == nil {
		t.Error("Load() с ME_TLS_CERT без ME_TLS_KEY должен вернуть ошибку")
	}
}

// TestDatabaseDSN проверяет формирование строки подключения.
func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.test",
		DBPort:     5433,
		DBName:     "inque",
		DBUser:     "media",
		DBPassword: "pw",
		DBSSLMode:  "require",
	}

	want := "postgres://media:pw@db.test:5433/inque?sslmode=require"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидалось %q", got, want)
	}
}
