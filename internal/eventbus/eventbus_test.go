package eventbus

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	body, err := EncodeEvent(&FileUploadedEvent{ID: "f-123"}, "msg-1")
	if err != nil {
		t.Fatalf("EncodeEvent вернул ошибку: %v", err)
	}

	// В конверте данные закодированы base64
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("конверт не является JSON: %v", err)
	}
	var msg struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw["message"], &msg); err != nil {
		t.Fatalf("разбор message: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		t.Fatalf("data не является base64: %v", err)
	}
	if !strings.Contains(string(decoded), `"id":"f-123"`) {
		t.Errorf("полезная нагрузка некорректна: %s", decoded)
	}

	event, err := DecodeEvent(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeEvent вернул ошибку: %v", err)
	}
	if event.ID != "f-123" {
		t.Errorf("ID = %q, ожидалось f-123", event.ID)
	}
}

func TestDecodeEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"не JSON", "not json at all"},
		{"пустой конверт", `{}`},
		{"пустые данные", `{"message":{"data":""}}`},
		{"данные не base64", `{"message":{"data":"###"}}`},
		{"нагрузка не JSON", `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte("garbage")) + `"}}`},
		{"событие без id", `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(`{}`)) + `"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEvent(strings.NewReader(tt.body)); err == nil {
				t.Error("ожидалась ошибка разбора")
			}
		})
	}
}

func TestHTTPPublisher_Delivers(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event, err := DecodeEvent(r.Body)
		if err != nil {
			t.Errorf("доставленный конверт не разбирается: %v", err)
		} else {
			got.Store(event.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(srv.URL, 3, time.Millisecond, srv.Client(), testLogger())
	if err := pub.PublishFileUploaded(context.Background(), "f-42"); err != nil {
		t.Fatalf("PublishFileUploaded вернул ошибку: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pub.Stop(ctx); err != nil {
		t.Fatalf("Stop вернул ошибку: %v", err)
	}
	if got.Load() != "f-42" {
		t.Errorf("доставлено %v, ожидалось f-42", got.Load())
	}
}

func TestHTTPPublisher_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(srv.URL, 5, time.Millisecond, srv.Client(), testLogger())
	if err := pub.PublishFileUploaded(context.Background(), "f-retry"); err != nil {
		t.Fatalf("PublishFileUploaded вернул ошибку: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pub.Stop(ctx); err != nil {
		t.Fatalf("Stop вернул ошибку: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("число попыток = %d, ожидалось 3", n)
	}
}

func TestHTTPPublisher_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(srv.URL, 2, time.Millisecond, srv.Client(), testLogger())
	if err := pub.PublishFileUploaded(context.Background(), "f-lost"); err != nil {
		t.Fatalf("PublishFileUploaded вернул ошибку: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pub.Stop(ctx); err != nil {
		t.Fatalf("Stop вернул ошибку: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("число попыток = %d, ожидалось 2 (maxAttempts)", n)
	}
}

func TestNoopPublisher(t *testing.T) {
	pub := NewNoopPublisher(testLogger())
	if err := pub.PublishFileUploaded(context.Background(), "f-noop"); err != nil {
		t.Fatalf("NoopPublisher вернул ошибку: %v", err)
	}
}
