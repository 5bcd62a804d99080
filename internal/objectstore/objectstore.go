// Пакет objectstore — клиент хранилища объектов (GCS-совместимый HTTP API).
// Хранилище — внешний компонент: пакет реализует только потребляемый
// контракт — выдачу resumable-init URL, скачивание целого объекта
// и запись производных объектов с cache-control метаданными.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Ошибки клиента хранилища.
var (
	// ErrObjectNotFound — объект отсутствует в bucket'е.
	ErrObjectNotFound = errors.New("объект не найден в хранилище")
)

// TokenProvider — функция, возвращающая токен для авторизации запросов
// к хранилищу. nil — запросы без авторизации (эмулятор, dev).
type TokenProvider func(ctx context.Context) (string, error)

// UploadOptions — метаданные записываемого объекта.
type UploadOptions struct {
	// ContentType — MIME-тип объекта
	ContentType string
	// CacheControl — cache-control метаданные объекта (пустая строка — не задавать)
	CacheControl string
}

// Store — потребляемый контракт хранилища объектов.
type Store interface {
	// ResumableInitURL возвращает URL, на который клиент инициирует
	// resumable-сессию для объекта (POST + x-goog-resumable: start).
	ResumableInitURL(objectPath string) string
	// Download скачивает объект целиком.
	Download(ctx context.Context, objectPath string) ([]byte, error)
	// Upload записывает объект целиком (перезапись допустима).
	Upload(ctx context.Context, objectPath string, data []byte, opts UploadOptions) error
}

// Client — HTTP-клиент GCS-совместимого хранилища объектов.
type Client struct {
	baseURL       string
	bucket        string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент хранилища объектов.
// baseURL — endpoint хранилища (например, https://storage.googleapis.com).
// timeout — таймаут HTTP-запросов (ME_STORE_TIMEOUT).
func New(baseURL, bucket string, timeout time.Duration, tokenProvider TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				// Пул idle-соединений для переиспользования при fan-out вариантов
				MaxIdleConnsPerHost: 10,
			},
		},
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "object_store")),
	}
}

// ResumableInitURL возвращает URL инициации resumable-сессии объекта.
func (c *Client) ResumableInitURL(objectPath string) string {
	return c.objectURL(objectPath)
}

// Download скачивает объект целиком в память.
// 404 → ErrObjectNotFound.
func (c *Client) Download(ctx context.Context, objectPath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(objectPath), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Download: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос Download %s: %w", objectPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrObjectNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Download %s: неожиданный статус %d", objectPath, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение тела объекта %s: %w", objectPath, err)
	}
	return data, nil
}

// Upload записывает объект целиком одним PUT.
func (c *Client) Upload(ctx context.Context, objectPath string, data []byte, opts UploadOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.objectURL(objectPath), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("создание запроса Upload: %w", err)
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	if opts.CacheControl != "" {
		req.Header.Set("Cache-Control", opts.CacheControl)
	}
	req.ContentLength = int64(len(data))
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос Upload %s: %w", objectPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Upload %s: неожиданный статус %d", objectPath, resp.StatusCode)
	}

	c.logger.Debug("Объект записан",
		slog.String("object_path", objectPath),
		slog.Int("size", len(data)),
	)
	return nil
}

// Ping проверяет доступность bucket'а (для readiness probe).
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(pingCtx, http.MethodHead,
		fmt.Sprintf("%s/%s", c.baseURL, c.bucket), http.NoBody)
	if err != nil {
		return err
	}
	if err := c.authorize(pingCtx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("хранилище объектов недоступно: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("хранилище объектов вернуло статус %d", resp.StatusCode)
	}
	return nil
}

// objectURL формирует полный URL объекта.
func (c *Client) objectURL(objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(objectPath, "/"))
}

// authorize добавляет Bearer-токен, если настроен tokenProvider.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenProvider == nil {
		return nil
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("получение токена хранилища: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
