package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/nicholasjvr/inque.com-sub002/internal/api/middleware"
	"github.com/nicholasjvr/inque.com-sub002/internal/domain/model"
	"github.com/nicholasjvr/inque.com-sub002/internal/objectstore"
	"github.com/nicholasjvr/inque.com-sub002/internal/repository"
	"github.com/nicholasjvr/inque.com-sub002/internal/variants"
)

// variantsCacheControl — варианты неизменяемы: путь объекта включает
// file_id, поэтому кэшировать можно бессрочно.
const variantsCacheControl = "public, max-age=31536000, immutable"

// ProcessingService — worker обработки загруженных файлов.
//
// Обработка идемпотентна относительно повторной доставки события:
// запись в терминальном состоянии подтверждается без повторной
// работы, а прерванная обработка (запись зависла в processing)
// допускает повторный вход processing → processing.
type ProcessingService struct {
	repo   repository.FileRepository
	store  objectstore.Store
	logger *slog.Logger
}

// NewProcessingService создаёт worker обработки.
func NewProcessingService(repo repository.FileRepository, store objectstore.Store,
	logger *slog.Logger) *ProcessingService {
	return &ProcessingService{
		repo:   repo,
		store:  store,
		logger: logger.With(slog.String("component", "processing_worker")),
	}
}

// HandleEvent обрабатывает событие завершённой загрузки.
//
// nil — доставка подтверждается (204), событие больше не придёт.
// Ошибка — доставка не подтверждается (500), шина повторит её.
// Детерминированные сбои (битое изображение, отсутствующий объект)
// переводят запись в failed и подтверждаются: повтор не помог бы.
func (s *ProcessingService) HandleEvent(ctx context.Context, fileID string) error {
	start := time.Now()
	log := s.logger.With(slog.String("file_id", fileID))

	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Запись может отставать от события при репликации:
			// доставка не подтверждается, DLQ-политика шины
			// ограничивает число повторов
			middleware.OperationsTotal.WithLabelValues("process_event", "unknown_file").Inc()
			log.Warn("Событие для неизвестного файла, доставка будет повторена")
			return fmt.Errorf("запись файла %s не найдена", fileID)
		}
		middleware.OperationsTotal.WithLabelValues("process_event", "error").Inc()
		return fmt.Errorf("чтение записи файла: %w", err)
	}

	// Повторная доставка уже обработанного события: подтверждаем
	// без повторной работы, терминальные состояния не откатываются
	if rec.State.Terminal() {
		middleware.OperationsTotal.WithLabelValues("process_event", "already_terminal").Inc()
		log.Info("Файл уже в терминальном состоянии, доставка подтверждена",
			slog.String("state", string(rec.State)),
		)
		return nil
	}

	prior := rec.State
	if _, err := s.repo.TransitionState(ctx, fileID, model.StateProcessing); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// CAS проигран: либо конкурирующий worker довёл запись до
			// терминала (подтверждаем), либо запись ещё в requested —
			// событие пришло раньше подтверждения, повторим доставку
			current, readErr := s.repo.GetByID(ctx, fileID)
			if readErr == nil && current.State.Terminal() {
				middleware.OperationsTotal.WithLabelValues("process_event", "lost_cas").Inc()
				log.Info("Переход в processing проигран конкуренту, доставка подтверждена")
				return nil
			}
			middleware.OperationsTotal.WithLabelValues("process_event", "premature").Inc()
			return fmt.Errorf("файл в состоянии %s не готов к обработке", rec.State)
		}
		middleware.OperationsTotal.WithLabelValues("process_event", "error").Inc()
		return fmt.Errorf("переход в processing: %w", err)
	}
	if prior != model.StateProcessing {
		middleware.FilesTotal.WithLabelValues(string(prior)).Dec()
		middleware.FilesTotal.WithLabelValues(string(model.StateProcessing)).Inc()
	}

	if err := s.process(ctx, rec, log); err != nil {
		middleware.OperationsTotal.WithLabelValues("process_event", "error").Inc()
		return err
	}

	middleware.ProcessingDuration.Observe(time.Since(start).Seconds())
	middleware.OperationsTotal.WithLabelValues("process_event", "success").Inc()
	return nil
}

// process выполняет собственно обработку записи, уже переведённой
// в processing.
func (s *ProcessingService) process(ctx context.Context, rec *model.FileRecord, log *slog.Logger) error {
	// Не-изображения не порождают вариантов и сразу готовы
	if !strings.HasPrefix(rec.DeclaredMime, "image/") {
		if err := s.markReady(ctx, rec.FileID, nil); err != nil {
			return err
		}
		log.Info("Файл готов без вариантов",
			slog.String("declared_mime", rec.DeclaredMime),
		)
		return nil
	}

	raw, err := s.store.Download(ctx, rec.ObjectPath)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			// Загрузка подтверждена, но объекта нет: повтор не поможет
			return s.markFailed(ctx, rec.FileID, "исходный объект отсутствует в хранилище", log)
		}
		return fmt.Errorf("скачивание исходника %s: %w", rec.ObjectPath, err)
	}

	set, err := variants.Derive(raw)
	if err != nil {
		// Битые данные детерминированы: фиксируем failed и подтверждаем
		return s.markFailed(ctx, rec.FileID,
			fmt.Sprintf("деривация вариантов: %v", err), log)
	}

	baseDir := path.Dir(rec.ObjectPath)
	recorded := make([]model.Variant, 0, 2)
	for _, d := range set.All() {
		objectPath := path.Join(baseDir, "variants", d.ObjectName)
		err := s.store.Upload(ctx, objectPath, d.Data, objectstore.UploadOptions{
			ContentType:  d.ContentType,
			CacheControl: variantsCacheControl,
		})
		if err != nil {
			// Сбой записи варианта считается временным: перезапись
			// при повторной доставке безопасна
			return fmt.Errorf("запись варианта %s: %w", objectPath, err)
		}
		recorded = append(recorded, model.Variant{
			Key:        d.Key,
			ObjectPath: objectPath,
			ByteSize:   int64(len(d.Data)),
		})
	}

	if err := s.markReady(ctx, rec.FileID, recorded); err != nil {
		return err
	}
	log.Info("Файл обработан",
		slog.Int("variants", len(recorded)),
	)
	return nil
}

// markReady атомарно фиксирует ready вместе с вариантами.
func (s *ProcessingService) markReady(ctx context.Context, fileID string, recorded []model.Variant) error {
	if recorded == nil {
		recorded = []model.Variant{}
	}
	if _, err := s.repo.MarkReady(ctx, fileID, recorded); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// Конкурент финализировал запись первым: терминал не трогаем
			return nil
		}
		return fmt.Errorf("фиксация ready: %w", err)
	}
	middleware.FilesTotal.WithLabelValues(string(model.StateProcessing)).Dec()
	middleware.FilesTotal.WithLabelValues(string(model.StateReady)).Inc()
	return nil
}

// markFailed фиксирует детерминированный сбой. Возвращает nil, чтобы
// доставка была подтверждена: терминальная запись делает повтор
// бессмысленным. Сбой самой фиксации — временный, доставка повторится.
func (s *ProcessingService) markFailed(ctx context.Context, fileID, reason string, log *slog.Logger) error {
	if _, err := s.repo.MarkFailed(ctx, fileID, reason); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("фиксация failed: %w", err)
	}
	middleware.FilesTotal.WithLabelValues(string(model.StateProcessing)).Dec()
	middleware.FilesTotal.WithLabelValues(string(model.StateFailed)).Inc()
	middleware.OperationsTotal.WithLabelValues("process_event", "failed").Inc()
	log.Warn("Обработка файла провалена",
		slog.String("reason", reason),
	)
	return nil
}
