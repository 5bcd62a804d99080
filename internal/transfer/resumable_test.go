package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// uploadSink — тестовый приёмник resumable-загрузки. Собирает тело
// по чанкам и проверяет заголовки Content-Range.
type uploadSink struct {
	mu       sync.Mutex
	initCT   string
	ranges   []string
	body     bytes.Buffer
	failFrom int // порядковый номер PUT, начиная с которого отвечать 503 (0 = не отвечать сбоем)
	putCount int
	total    int64
}

func (s *uploadSink) handler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.Method {
		case http.MethodPost:
			if got := r.Header.Get("x-goog-resumable"); got != "start" {
				t.Errorf("инициация без x-goog-resumable: start, получено %q", got)
			}
			s.initCT = r.Header.Get("Content-Type")
			w.Header().Set("Location", "http://"+r.Host+"/session/abc")
			w.WriteHeader(http.StatusCreated)
		case http.MethodPut:
			s.putCount++
			if s.failFrom > 0 && s.putCount >= s.failFrom {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			s.ranges = append(s.ranges, r.Header.Get("Content-Range"))
			_, _ = io.Copy(&s.body, r.Body)
			if int64(s.body.Len()) < s.total {
				w.WriteHeader(http.StatusPermanentRedirect)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpload_ChunksAndRanges(t *testing.T) {
	const chunkSize = 16
	const totalSize = 40 // 3 чанка: 16 + 16 + 8

	payload := bytes.Repeat([]byte("w"), totalSize)
	sink := &uploadSink{total: totalSize}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	client := New(srv.Client(), testLogger(), WithChunkSize(chunkSize))
	err := client.Upload(context.Background(), srv.URL+"/upload/f1",
		"image/png", bytes.NewReader(payload), totalSize)
	if err != nil {
		t.Fatalf("Upload вернул ошибку: %v", err)
	}

	if sink.initCT != "image/png" {
		t.Errorf("Content-Type инициации = %q, ожидалось image/png", sink.initCT)
	}
	want := []string{
		"bytes 0-15/40",
		"bytes 16-31/40",
		"bytes 32-39/40",
	}
	if len(sink.ranges) != len(want) {
		t.Fatalf("число PUT = %d, ожидалось %d", len(sink.ranges), len(want))
	}
	for i, r := range want {
		if sink.ranges[i] != r {
			t.Errorf("чанк %d: Content-Range = %q, ожидалось %q", i, sink.ranges[i], r)
		}
	}
	if !bytes.Equal(sink.body.Bytes(), payload) {
		t.Error("собранное тело не совпадает с исходным")
	}
}

func TestUpload_ExactMultiple(t *testing.T) {
	// Размер кратен чанку: последний чанк полный, верхняя граница S-1.
	const chunkSize = 8
	const totalSize = 16

	sink := &uploadSink{total: totalSize}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	client := New(srv.Client(), testLogger(), WithChunkSize(chunkSize))
	err := client.Upload(context.Background(), srv.URL+"/upload/f2",
		"application/octet-stream", strings.NewReader(strings.Repeat("a", totalSize)), totalSize)
	if err != nil {
		t.Fatalf("Upload вернул ошибку: %v", err)
	}

	if len(sink.ranges) != 2 {
		t.Fatalf("число PUT = %d, ожидалось 2", len(sink.ranges))
	}
	if last := sink.ranges[1]; last != "bytes 8-15/16" {
		t.Errorf("последний Content-Range = %q, ожидалось bytes 8-15/16", last)
	}
}

func TestUpload_ChunkFailureAborts(t *testing.T) {
	const chunkSize = 8
	const totalSize = 32

	sink := &uploadSink{total: totalSize, failFrom: 2}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	client := New(srv.Client(), testLogger(), WithChunkSize(chunkSize))
	err := client.Upload(context.Background(), srv.URL+"/upload/f3",
		"image/jpeg", strings.NewReader(strings.Repeat("b", totalSize)), totalSize)

	var chunkErr *ChunkUploadError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("ожидалась ChunkUploadError, получено %v", err)
	}
	if chunkErr.Offset != chunkSize {
		t.Errorf("Offset = %d, ожидалось %d", chunkErr.Offset, chunkSize)
	}
	if chunkErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, ожидалось 503", chunkErr.StatusCode)
	}
	// После сбоя передача прекращается: был ровно failFrom PUT
	if sink.putCount != 2 {
		t.Errorf("число PUT после сбоя = %d, ожидалось 2", sink.putCount)
	}
	if !IsTransferError(err) {
		t.Error("IsTransferError должна распознавать ChunkUploadError")
	}
}

func TestUpload_InitFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "статус ошибки",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "нет Location",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := New(srv.Client(), testLogger())
			err := client.Upload(context.Background(), srv.URL+"/upload/f4",
				"image/png", strings.NewReader("data"), 4)

			var initErr *SessionInitError
			if !errors.As(err, &initErr) {
				t.Fatalf("ожидалась SessionInitError, получено %v", err)
			}
			if !IsTransferError(err) {
				t.Error("IsTransferError должна распознавать SessionInitError")
			}
		})
	}
}

func TestUpload_UnknownSizeRejected(t *testing.T) {
	client := New(nil, testLogger())
	for _, size := range []int64{0, -1} {
		err := client.Upload(context.Background(), "http://invalid/upload",
			"image/png", strings.NewReader(""), size)
		if err == nil {
			t.Errorf("размер %d: ожидалась ошибка", size)
		}
	}
}

func TestUpload_ContextCancelBetweenChunks(t *testing.T) {
	const chunkSize = 4
	const totalSize = 16

	ctx, cancel := context.WithCancel(context.Background())

	var putSeen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set("Location", "http://"+r.Host+"/session/x")
			w.WriteHeader(http.StatusCreated)
		case http.MethodPut:
			putSeen++
			// Отменяем после первого чанка: следующий не должен уйти
			cancel()
			w.WriteHeader(http.StatusPermanentRedirect)
		}
	}))
	defer srv.Close()

	client := New(srv.Client(), testLogger(), WithChunkSize(chunkSize))
	err := client.Upload(ctx, srv.URL+"/upload/f5",
		"image/png", strings.NewReader(strings.Repeat("c", totalSize)), totalSize)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась context.Canceled, получено %v", err)
	}
	if putSeen != 1 {
		t.Errorf("число PUT = %d, ожидалось 1", putSeen)
	}
}

func TestChunkUploadErrorMessage(t *testing.T) {
	e := &ChunkUploadError{Offset: 8388608, StatusCode: 500}
	if !strings.Contains(e.Error(), "8388608") {
		t.Errorf("сообщение ошибки не содержит offset: %s", e.Error())
	}
	wrapped := &ChunkUploadError{Offset: 0, Err: fmt.Errorf("connection reset")}
	if !strings.Contains(wrapped.Error(), "connection reset") {
		t.Errorf("сообщение ошибки не содержит причину: %s", wrapped.Error())
	}
}
