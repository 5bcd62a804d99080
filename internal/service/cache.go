package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nicholasjvr/inque.com-sub002/internal/domain/model"
	"github.com/nicholasjvr/inque.com-sub002/internal/repository"
)

// Метрики кэша записей файлов.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "me_cache_hits_total",
		Help: "Количество попаданий в кэш записей файлов",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "me_cache_misses_total",
		Help: "Количество промахов кэша записей файлов",
	})
)

// FileQueryService — чтение записей файлов сквозь LRU-кэш с TTL.
//
// Кэшируются только записи в терминальных состояниях: они больше не
// меняются, поэтому TTL нужен лишь для ограничения памяти. Записи в
// промежуточных состояниях всегда читаются из базы, чтобы клиент
// наблюдал актуальный прогресс конвейера.
type FileQueryService struct {
	repo   repository.FileRepository
	cache  *expirable.LRU[string, *model.FileRecord]
	logger *slog.Logger
}

// NewFileQueryService создаёт сервис чтения с кэшем.
// size — ёмкость LRU, ttl — срок жизни записи в кэше.
func NewFileQueryService(repo repository.FileRepository, size int, ttl time.Duration,
	logger *slog.Logger) *FileQueryService {
	return &FileQueryService{
		repo:   repo,
		cache:  expirable.NewLRU[string, *model.FileRecord](size, nil, ttl),
		logger: logger.With(slog.String("component", "file_query_service")),
	}
}

// GetFile возвращает запись файла владельцу.
// Чужая запись не раскрывается: и отсутствие, и чужое владение
// отвечают 404, чтобы не подтверждать существование файла.
func (s *FileQueryService) GetFile(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error) {
	if rec, ok := s.cache.Get(fileID); ok {
		cacheHitsTotal.Inc()
		return s.authorize(rec, ownerID)
	}
	cacheMissesTotal.Inc()

	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newNotFoundError("файл не найден")
		}
		s.logger.Error("Чтение записи файла не удалось",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, newInternalError("не удалось прочитать запись файла")
	}

	if rec.State.Terminal() {
		s.cache.Add(fileID, rec)
	}
	return s.authorize(rec, ownerID)
}

func (s *FileQueryService) authorize(rec *model.FileRecord, ownerID string) (*model.FileRecord, error) {
	if rec.OwnerID != ownerID {
		return nil, newNotFoundError("файл не найден")
	}
	return rec, nil
}
