// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nicholasjvr/inque.com-sub002/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// ReadyChecker — одна проверка готовности зависимости.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// ReadyCheckerFunc — адаптер функции к ReadyChecker.
type ReadyCheckerFunc func(ctx context.Context) error

func (f ReadyCheckerFunc) Ready(ctx context.Context) error { return f(ctx) }

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// checks — именованные проверки готовности (база, хранилище)
	checks map[string]ReadyChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(checks map[string]ReadyChecker) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		checks:  checks,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "media-engine",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Возвращает 200, если все зависимости доступны, иначе 503 с
// перечнем провалившихся проверок.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	details := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check.Ready(ctx); err != nil {
			details[name] = statusFail + ": " + err.Error()
			ready = false
			continue
		}
		details[name] = "ok"
	}

	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "media-engine",
		"checks":    details,
	}

	statusCode := http.StatusOK
	if !ready {
		resp["status"] = statusFail
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
