// Пакет transfer — клиент resumable-загрузки в хранилище объектов.
//
// Протокол (совместим с GCS resumable semantics, но не привязан к GCS):
//  1. Initiate — POST на upload target с заголовком x-goog-resumable: start;
//     session URL возвращается в заголовке Location
//  2. Цикл чанков — последовательные PUT окнами по 8 MiB с заголовком
//     Content-Range: bytes {start}-{end}/{total}; допустимые ответы —
//     308 (продолжать) и 2xx (завершено)
//  3. Завершение — успешный ответ на последний чанк
//
// Автоматических повторов нет: после жёсткого сбоя новая попытка
// начинает новую сессию с нулевого смещения. Общий размер обязан
// быть известен заранее — Content-Range всегда несёт исходный total.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultChunkSize — размер окна чанка (8 MiB).
const DefaultChunkSize int64 = 8 << 20

// resumableStartHeader — сигнал инициации resumable-сессии.
const resumableStartHeader = "x-goog-resumable"

// SessionInitError — сбой инициации resumable-сессии.
type SessionInitError struct {
	// StatusCode — HTTP-статус ответа (0 при сетевой ошибке)
	StatusCode int
	// Reason — описание сбоя
	Reason string
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("инициация resumable-сессии: %s (status %d)", e.Reason, e.StatusCode)
}

// ChunkUploadError — сбой передачи чанка. Вся передача считается
// проваленной: возобновление поверх жёсткого сбоя не выполняется.
type ChunkUploadError struct {
	// Offset — смещение начала чанка, на котором произошёл сбой
	Offset int64
	// StatusCode — HTTP-статус ответа (0 при сетевой ошибке)
	StatusCode int
	// Err — исходная ошибка (nil при недопустимом статусе)
	Err error
}

func (e *ChunkUploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("передача чанка с offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("передача чанка с offset %d: неожиданный статус %d", e.Offset, e.StatusCode)
}

func (e *ChunkUploadError) Unwrap() error { return e.Err }

// Client — клиент resumable-загрузки. Работает строго последовательно,
// без параллельной передачи чанков.
type Client struct {
	httpClient *http.Client
	chunkSize  int64
	logger     *slog.Logger
}

// Option — функциональная опция клиента.
type Option func(*Client)

// WithChunkSize переопределяет размер окна чанка (для тестов).
func WithChunkSize(size int64) Option {
	return func(c *Client) {
		c.chunkSize = size
	}
}

// New создаёт клиент resumable-загрузки.
// httpClient — nil допустим, используется http.DefaultClient.
func New(httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient: httpClient,
		chunkSize:  DefaultChunkSize,
		logger:     logger.With(slog.String("component", "resumable_transfer")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload передаёт totalSize байт из src на uploadTarget.
//
// Передача может быть отменена через ctx между чанками; чанк в полёте
// не прерывается. totalSize обязан быть известен заранее и положителен.
func (c *Client) Upload(ctx context.Context, uploadTarget, contentType string, src io.Reader, totalSize int64) error {
	if totalSize <= 0 {
		return fmt.Errorf("размер передачи должен быть известен заранее и положителен, получено %d", totalSize)
	}

	sessionURL, err := c.initiate(ctx, uploadTarget, contentType)
	if err != nil {
		return err
	}

	c.logger.Debug("Resumable-сессия открыта",
		slog.String("session_url", sessionURL),
		slog.Int64("total_size", totalSize),
	)

	buf := make([]byte, c.chunkSize)
	var offset int64

	for offset < totalSize {
		// Отмена проверяется только между чанками
		if err := ctx.Err(); err != nil {
			return err
		}

		// Граница чанка: min(offset+chunkSize, totalSize)
		chunkLen := c.chunkSize
		if offset+chunkLen > totalSize {
			chunkLen = totalSize - offset
		}

		if _, err := io.ReadFull(src, buf[:chunkLen]); err != nil {
			return fmt.Errorf("чтение источника на offset %d: %w", offset, err)
		}

		if err := c.putChunk(ctx, sessionURL, buf[:chunkLen], offset, totalSize); err != nil {
			return err
		}

		offset += chunkLen
	}

	return nil
}

// initiate открывает resumable-сессию и возвращает session URL.
func (c *Client) initiate(ctx context.Context, uploadTarget, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadTarget, http.NoBody)
	if err != nil {
		return "", &SessionInitError{Reason: err.Error()}
	}
	req.Header.Set(resumableStartHeader, "start")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Content-Length", "0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SessionInitError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SessionInitError{
			StatusCode: resp.StatusCode,
			Reason:     "неуспешный ответ инициации",
		}
	}

	sessionURL := resp.Header.Get("Location")
	if sessionURL == "" {
		return "", &SessionInitError{
			StatusCode: resp.StatusCode,
			Reason:     "ответ инициации без session URL (Location)",
		}
	}
	return sessionURL, nil
}

// putChunk передаёт один чанк. Допустимые ответы: 308 (продолжать)
// и 2xx (передача завершена). Любой другой ответ — ChunkUploadError.
func (c *Client) putChunk(ctx context.Context, sessionURL string, chunk []byte, offset, totalSize int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, bytes.NewReader(chunk))
	if err != nil {
		return &ChunkUploadError{Offset: offset, Err: err}
	}
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Range",
		fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(len(chunk))-1, totalSize))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ChunkUploadError{Offset: offset, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPermanentRedirect ||
		(resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return &ChunkUploadError{Offset: offset, StatusCode: resp.StatusCode}
}

// IsTransferError сообщает, является ли ошибка ошибкой протокола передачи.
func IsTransferError(err error) bool {
	var se *SessionInitError
	var ce *ChunkUploadError
	return errors.As(err, &se) || errors.As(err, &ce)
}
