// Пакет service — бизнес-логика Media Engine.
//
// GrantService — координатор загрузок: выдаёт гранты на прямую
// resumable-загрузку в хранилище объектов и подтверждает завершение
// загрузки. Сервис не переносит байты файла: клиент загружает их
// напрямую в хранилище по выданному URL.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nicholasjvr/inque.com-sub002/internal/api/middleware"
	"github.com/nicholasjvr/inque.com-sub002/internal/domain/model"
	"github.com/nicholasjvr/inque.com-sub002/internal/eventbus"
	"github.com/nicholasjvr/inque.com-sub002/internal/objectstore"
	"github.com/nicholasjvr/inque.com-sub002/internal/repository"
)

// GrantRequest — запрос на выдачу гранта загрузки.
type GrantRequest struct {
	// Name — имя файла у клиента
	Name string `json:"name"`
	// Size — заявленный размер в байтах
	Size int64 `json:"size"`
	// MimeType — заявленный MIME-тип
	MimeType string `json:"mime_type"`
}

// GrantResponse — выданный грант.
type GrantResponse struct {
	// FileID — идентификатор созданной записи
	FileID string `json:"file_id"`
	// UploadURL — URL инициации resumable-сессии
	UploadURL string `json:"upload_url"`
	// ObjectPath — путь объекта в хранилище
	ObjectPath string `json:"object_path"`
	// State — состояние записи (requested)
	State model.FileState `json:"state"`
}

// GrantService — выдача и подтверждение грантов загрузки.
type GrantService struct {
	repo        repository.FileRepository
	store       objectstore.Store
	publisher   eventbus.Publisher
	maxFileSize int64
	logger      *slog.Logger
	now         func() time.Time
}

// NewGrantService создаёт координатор загрузок.
func NewGrantService(repo repository.FileRepository, store objectstore.Store,
	publisher eventbus.Publisher, maxFileSize int64, logger *slog.Logger) *GrantService {
	return &GrantService{
		repo:        repo,
		store:       store,
		publisher:   publisher,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "grant_service")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// IssueGrant валидирует запрос, создаёт запись в состоянии requested
// и возвращает грант с URL инициации resumable-загрузки.
func (s *GrantService) IssueGrant(ctx context.Context, ownerID string, req *GrantRequest) (*GrantResponse, error) {
	if err := s.validateGrant(req); err != nil {
		middleware.OperationsTotal.WithLabelValues("issue_grant", "rejected").Inc()
		return nil, err
	}

	fileID := uuid.New().String()
	objectPath := fmt.Sprintf("%s/%s/%s", ownerID, fileID, sanitizeName(req.Name))
	now := s.now()

	rec := &model.FileRecord{
		FileID:       fileID,
		OwnerID:      ownerID,
		Name:         req.Name,
		DeclaredSize: req.Size,
		DeclaredMime: req.MimeType,
		ObjectPath:   objectPath,
		State:        model.StateRequested,
		Variants:     []model.Variant{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		middleware.OperationsTotal.WithLabelValues("issue_grant", "error").Inc()
		s.logger.Error("Создание записи файла не удалось",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, newInternalError("не удалось создать запись файла")
	}

	middleware.OperationsTotal.WithLabelValues("issue_grant", "success").Inc()
	middleware.FilesTotal.WithLabelValues(string(model.StateRequested)).Inc()
	s.logger.Info("Грант загрузки выдан",
		slog.String("file_id", fileID),
		slog.String("owner_id", ownerID),
		slog.Int64("declared_size", req.Size),
		slog.String("declared_mime", req.MimeType),
	)

	return &GrantResponse{
		FileID:     fileID,
		UploadURL:  s.store.ResumableInitURL(objectPath),
		ObjectPath: objectPath,
		State:      model.StateRequested,
	}, nil
}

// ConfirmUpload подтверждает завершение загрузки владельцем:
// переводит запись requested → uploaded и публикует событие для
// worker'а обработки. Чужая запись не изменяется (403 без мутаций).
func (s *GrantService) ConfirmUpload(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error) {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			middleware.OperationsTotal.WithLabelValues("confirm_upload", "not_found").Inc()
			return nil, newNotFoundError("файл не найден")
		}
		middleware.OperationsTotal.WithLabelValues("confirm_upload", "error").Inc()
		return nil, newInternalError("не удалось прочитать запись файла")
	}

	// Проверка владельца выполняется до любых мутаций
	if rec.OwnerID != ownerID {
		middleware.OperationsTotal.WithLabelValues("confirm_upload", "forbidden").Inc()
		return nil, newForbiddenError("файл принадлежит другому владельцу")
	}

	updated, err := s.repo.TransitionState(ctx, fileID, model.StateUploaded)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			middleware.OperationsTotal.WithLabelValues("confirm_upload", "invalid_state").Inc()
			return nil, newInvalidStateError(
				fmt.Sprintf("подтверждение невозможно из состояния %s", rec.State))
		}
		if errors.Is(err, repository.ErrNotFound) {
			middleware.OperationsTotal.WithLabelValues("confirm_upload", "not_found").Inc()
			return nil, newNotFoundError("файл не найден")
		}
		middleware.OperationsTotal.WithLabelValues("confirm_upload", "error").Inc()
		return nil, newInternalError("не удалось обновить состояние файла")
	}

	middleware.FilesTotal.WithLabelValues(string(model.StateRequested)).Dec()
	middleware.FilesTotal.WithLabelValues(string(model.StateUploaded)).Inc()

	if err := s.publisher.PublishFileUploaded(ctx, fileID); err != nil {
		// Запись уже переведена в uploaded: потеря публикации
		// журналируется, но подтверждение не откатывается
		s.logger.Error("Публикация события загрузки не удалась",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("confirm_upload", "success").Inc()
	s.logger.Info("Загрузка подтверждена",
		slog.String("file_id", fileID),
		slog.String("owner_id", ownerID),
	)
	return updated, nil
}

// validateGrant проверяет поля запроса гранта.
func (s *GrantService) validateGrant(req *GrantRequest) error {
	if req == nil {
		return newValidationError("тело запроса обязательно")
	}
	if strings.TrimSpace(req.Name) == "" {
		return newValidationError("имя файла обязательно")
	}
	if req.Size <= 0 {
		return newValidationError("размер файла должен быть положительным")
	}
	if req.Size > s.maxFileSize {
		return newFileTooLargeError(
			fmt.Sprintf("размер %d превышает предел %d байт", req.Size, s.maxFileSize))
	}
	if strings.TrimSpace(req.MimeType) == "" {
		return newValidationError("MIME-тип обязателен")
	}
	return nil
}

// sanitizeName приводит имя файла к безопасному компоненту пути:
// берётся базовое имя, разделители и управляющие символы заменяются.
func sanitizeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		return "file"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
