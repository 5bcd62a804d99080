// Пакет server — HTTP-сервер Media Engine с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicholasjvr/inque.com-sub002/internal/api/middleware"
	"github.com/nicholasjvr/inque.com-sub002/internal/config"
)

// RouteRegistrar — регистрация маршрутов приложения на роутере.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Server — HTTP-сервер Media Engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
	// onStop — хуки завершения, выполняются после остановки сервера
	onStop []func(ctx context.Context)
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, api RouteRegistrar) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Prometheus /metrics — без аутентификации, его скрейпит Prometheus
	router.Handle("/metrics", promhttp.Handler())

	api.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Настройка TLS
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// OnStop регистрирует хук, выполняемый при graceful shutdown
// после остановки HTTP-сервера (остановка издателя событий,
// dephealth, закрытие пула соединений).
func (s *Server) OnStop(fn func(ctx context.Context)) {
	s.onStop = append(s.onStop, fn)
}

// Run запускает сервер и блокируется до сигнала завершения или
// ошибки прослушивания.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Graceful shutdown не завершился корректно",
			slog.String("error", err.Error()),
		)
	}

	for _, fn := range s.onStop {
		fn(ctx)
	}

	s.logger.Info("Сервер остановлен")
	return nil
}
