// Пакет eventbus — публикация и разбор событий конвейера загрузки.
//
// Транспорт — HTTP push в стиле Pub/Sub: полезная нагрузка события
// кодируется в JSON, упаковывается в base64 и доставляется POST'ом
// внутри конверта {"message":{"data":...},"subscription":...}.
// Успешная доставка подтверждается статусом 2xx; любой другой ответ
// ведёт к повтору с фиксированной задержкой, после исчерпания
// попыток событие журналируется как недоставленное.
package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nicholasjvr/inque.com-sub002/internal/api/middleware"
)

// FileUploadedEvent — полезная нагрузка события завершённой загрузки.
type FileUploadedEvent struct {
	ID string `json:"id"`
}

// PushMessage — сообщение внутри push-конверта. Data кодируется
// стандартным base64 средствами encoding/json.
type PushMessage struct {
	Data        []byte    `json:"data"`
	MessageID   string    `json:"messageId,omitempty"`
	PublishTime time.Time `json:"publishTime,omitempty"`
}

// PushEnvelope — конверт HTTP push-доставки.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription,omitempty"`
}

// DecodeEvent разбирает тело push-запроса и возвращает событие.
// Некорректный конверт, base64 или вложенный JSON — ошибка разбора;
// подтверждать ли такую доставку, решает вызывающий.
func DecodeEvent(r io.Reader) (*FileUploadedEvent, error) {
	var env PushEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("разбор push-конверта: %w", err)
	}
	if len(env.Message.Data) == 0 {
		return nil, fmt.Errorf("push-конверт без полезной нагрузки")
	}
	var event FileUploadedEvent
	if err := json.Unmarshal(env.Message.Data, &event); err != nil {
		return nil, fmt.Errorf("разбор полезной нагрузки события: %w", err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("событие без идентификатора файла")
	}
	return &event, nil
}

// EncodeEvent упаковывает событие в push-конверт.
func EncodeEvent(event *FileUploadedEvent, messageID string) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("кодирование полезной нагрузки: %w", err)
	}
	return json.Marshal(PushEnvelope{
		Message: PushMessage{
			Data:        payload,
			MessageID:   messageID,
			PublishTime: time.Now().UTC(),
		},
	})
}

// Publisher — публикация событий конвейера.
type Publisher interface {
	// PublishFileUploaded ставит событие завершённой загрузки в доставку.
	PublishFileUploaded(ctx context.Context, fileID string) error
}

// HTTPPublisher доставляет события HTTP push'ем в фоне с повторами.
type HTTPPublisher struct {
	pushURL     string
	maxAttempts int
	backoff     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger

	wg     sync.WaitGroup
	nextID func() string
}

// NewHTTPPublisher создаёт издатель событий.
// httpClient — nil допустим, используется клиент с таймаутом 10 секунд.
func NewHTTPPublisher(pushURL string, maxAttempts int, backoff time.Duration,
	httpClient *http.Client, logger *slog.Logger) *HTTPPublisher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var seq int64
	var mu sync.Mutex
	return &HTTPPublisher{
		pushURL:     pushURL,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		httpClient:  httpClient,
		logger:      logger.With(slog.String("component", "event_publisher")),
		nextID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
		},
	}
}

// PublishFileUploaded кодирует событие и запускает фоновую доставку.
// Ошибка возвращается только при сбое кодирования: сбои доставки
// обрабатываются повторами и журналированием.
func (p *HTTPPublisher) PublishFileUploaded(ctx context.Context, fileID string) error {
	body, err := EncodeEvent(&FileUploadedEvent{ID: fileID}, p.nextID())
	if err != nil {
		middleware.EventPublishTotal.WithLabelValues("encode_error").Inc()
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.deliver(fileID, body)
	}()
	return nil
}

// deliver выполняет до maxAttempts попыток доставки с фиксированной
// задержкой между ними. Исчерпание попыток журналируется как потеря
// события — повторная доставка остаётся за внешним оператором.
func (p *HTTPPublisher) deliver(fileID string, body []byte) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.post(body); err != nil {
			p.logger.Warn("Попытка доставки события не удалась",
				slog.String("file_id", fileID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			if attempt < p.maxAttempts {
				time.Sleep(p.backoff)
			}
			continue
		}
		middleware.EventPublishTotal.WithLabelValues("success").Inc()
		p.logger.Debug("Событие доставлено",
			slog.String("file_id", fileID),
			slog.Int("attempt", attempt),
		)
		return
	}

	middleware.EventPublishTotal.WithLabelValues("dropped").Inc()
	p.logger.Error("Событие не доставлено, попытки исчерпаны",
		slog.String("file_id", fileID),
		slog.Int("max_attempts", p.maxAttempts),
	)
}

func (p *HTTPPublisher) post(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, p.pushURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("неуспешный статус доставки: %d", resp.StatusCode)
	}
	return nil
}

// Stop дожидается завершения фоновых доставок или истечения ctx.
func (p *HTTPPublisher) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoopPublisher — издатель-заглушка: события журналируются и
// отбрасываются. Используется, когда push URL не сконфигурирован.
type NoopPublisher struct {
	logger *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger.With(slog.String("component", "event_publisher"))}
}

func (p *NoopPublisher) PublishFileUploaded(_ context.Context, fileID string) error {
	p.logger.Info("Публикация событий отключена, событие отброшено",
		slog.String("file_id", fileID),
	)
	return nil
}
