// handler.go — сборка всех обработчиков и регистрация маршрутов.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nicholasjvr/inque.com-sub002/internal/api/middleware"
)

// APIHandler — единый обработчик всех endpoints сервиса.
type APIHandler struct {
	files  *FilesHandler
	events *EventsHandler
	health *HealthHandler
	auth   *middleware.JWTAuth
}

// NewAPIHandler собирает доменные обработчики в один объект.
func NewAPIHandler(files *FilesHandler, events *EventsHandler, health *HealthHandler,
	auth *middleware.JWTAuth) *APIHandler {
	return &APIHandler{
		files:  files,
		events: events,
		health: health,
		auth:   auth,
	}
}

// RegisterRoutes регистрирует маршруты сервиса на роутере.
//
// Публичный API защищён JWT:
//   - media:upload — выдача грантов, подтверждение, чтение записей
//   - media:events — push-доставка событий (отдельный subject шины)
//
// Health endpoints не требуют токена: их опрашивают probes.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(h.auth.Middleware())

		api.Group(func(g chi.Router) {
			g.Use(middleware.RequireScope(middleware.ScopeMediaUpload))
			g.Post("/uploads", h.files.IssueGrant)
			g.Post("/uploads/{file_id}/confirm", h.files.ConfirmUpload)
			g.Get("/files/{file_id}", h.files.GetFile)
		})
	})

	r.Route("/internal/events", func(ev chi.Router) {
		ev.Use(h.auth.Middleware())
		ev.Use(middleware.RequireScope(middleware.ScopeMediaEvents))
		ev.Post("/uploaded", h.events.FileUploaded)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
}
