// files.go — обработчики публичного API загрузок.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/nicholasjvr/inque.com-sub002/internal/api/errors"
	"github.com/nicholasjvr/inque.com-sub002/internal/api/middleware"
	"github.com/nicholasjvr/inque.com-sub002/internal/service"
)

// maxGrantBodySize — предел тела запроса гранта (метаданные, не байты файла).
const maxGrantBodySize = 64 * 1024

// FilesHandler — обработчики операций над файлами.
type FilesHandler struct {
	grants  *service.GrantService
	queries *service.FileQueryService
	logger  *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых операций.
func NewFilesHandler(grants *service.GrantService, queries *service.FileQueryService,
	logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		grants:  grants,
		queries: queries,
		logger:  logger.With(slog.String("component", "files_handler")),
	}
}

// IssueGrant обрабатывает POST /api/v1/uploads.
// Выдаёт грант на прямую resumable-загрузку в хранилище объектов.
func (h *FilesHandler) IssueGrant(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.SubjectFromContext(r.Context())
	if ownerID == "" {
		apierrors.Unauthorized(w, "субъект токена не определён")
		return
	}

	var req service.GrantRequest
	body := http.MaxBytesReader(w, r.Body, maxGrantBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	grant, err := h.grants.IssueGrant(r.Context(), ownerID, &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, grant)
}

// ConfirmUpload обрабатывает POST /api/v1/uploads/{file_id}/confirm.
func (h *FilesHandler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.SubjectFromContext(r.Context())
	if ownerID == "" {
		apierrors.Unauthorized(w, "субъект токена не определён")
		return
	}

	fileID, ok := parseFileID(w, r)
	if !ok {
		return
	}

	rec, err := h.grants.ConfirmUpload(r.Context(), ownerID, fileID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetFile обрабатывает GET /api/v1/files/{file_id}.
// Возвращает запись файла владельцу; чужие записи отвечают 404.
func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.SubjectFromContext(r.Context())
	if ownerID == "" {
		apierrors.Unauthorized(w, "субъект токена не определён")
		return
	}

	fileID, ok := parseFileID(w, r)
	if !ok {
		return
	}

	rec, err := h.queries.GetFile(r.Context(), ownerID, fileID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// writeServiceError транслирует ошибку сервисного слоя в HTTP-ответ.
func (h *FilesHandler) writeServiceError(w http.ResponseWriter, err error) {
	var se *service.ServiceError
	if errors.As(err, &se) {
		apierrors.WriteError(w, se.StatusCode, se.Code, se.Message)
		return
	}
	h.logger.Error("Необработанная ошибка сервисного слоя",
		slog.String("error", err.Error()),
	)
	apierrors.InternalError(w, "внутренняя ошибка сервиса")
}

// parseFileID извлекает и валидирует file_id из пути.
func parseFileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	fileID := chi.URLParam(r, "file_id")
	if _, err := uuid.Parse(fileID); err != nil {
		apierrors.ValidationError(w, "file_id должен быть UUID")
		return "", false
	}
	return fileID, true
}

// writeJSON записывает успешный JSON-ответ.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
