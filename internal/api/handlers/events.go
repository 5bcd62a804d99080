// events.go — приём push-доставки событий шины.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/nicholasjvr/inque.com-sub002/internal/api/errors"
	"github.com/nicholasjvr/inque.com-sub002/internal/eventbus"
	"github.com/nicholasjvr/inque.com-sub002/internal/service"
)

// maxEventBodySize — предел тела push-конверта.
const maxEventBodySize = 64 * 1024

// EventsHandler — обработчик push-доставки событий обработки.
type EventsHandler struct {
	processor *service.ProcessingService
	logger    *slog.Logger
}

// NewEventsHandler создаёт обработчик событий.
func NewEventsHandler(processor *service.ProcessingService, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		processor: processor,
		logger:    logger.With(slog.String("component", "events_handler")),
	}
}

// FileUploaded обрабатывает POST /internal/events/uploaded.
//
// Контракт подтверждения push-доставки:
//   - 204 — событие обработано (или обработка бессмысленна), шина
//     не будет доставлять его повторно
//   - 500 — сбой, шина применит свою политику повторов и DLQ;
//     нечитаемый конверт отвечает так же — побочных эффектов нет,
//     а исчерпание повторов уводит событие в dead-letter
func (h *EventsHandler) FileUploaded(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxEventBodySize)
	event, err := eventbus.DecodeEvent(body)
	if err != nil {
		h.logger.Warn("Нечитаемый push-конверт",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "нечитаемый push-конверт")
		return
	}

	if err := h.processor.HandleEvent(r.Context(), event.ID); err != nil {
		h.logger.Error("Обработка события не удалась, доставка будет повторена",
			slog.String("file_id", event.ID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "обработка события не удалась")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
