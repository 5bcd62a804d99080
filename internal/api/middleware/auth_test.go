package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("генерация RSA ключа: %v", err)
	}
	return key
}

// generateTestToken генерирует JWT токен для тестов.
func generateTestToken(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return signed
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// newTestJWTAuth создаёт JWTAuth с RSA ключом для тестов.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("создание keyfunc из JWKS JSON: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJWTAuthWithKeyfunc(kf, 30*time.Second, logger)
}

func validClaims(sub string, scopes ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ScopeArray: scopes,
	}
}

func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub := SubjectFromContext(r.Context()); sub != "user-1" {
			t.Errorf("ожидался sub=user-1, получен %s", sub)
		}
		scopes := ScopesFromContext(r.Context())
		if len(scopes) != 1 || scopes[0] != ScopeMediaUpload {
			t.Errorf("неожиданные scopes: %v", scopes)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, validClaims("user-1", ScopeMediaUpload)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидалось 200", rec.Code)
	}
}

func TestJWTAuth_ScopeStringFormat(t *testing.T) {
	// Стандартный OAuth2 claim "scope" с пробело-разделённой строкой
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	claims := validClaims("user-2")
	claims.ScopeString = "media:upload media:events"

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopes := ScopesFromContext(r.Context())
		if len(scopes) != 2 {
			t.Errorf("ожидалось 2 scope, получено %v", scopes)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, claims))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидалось 200", rec.Code)
	}
}

func TestJWTAuth_Rejections(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	otherKey := generateTestKey(t)

	expired := validClaims("user-3", ScopeMediaUpload)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))

	noSub := validClaims("", ScopeMediaUpload)

	tests := []struct {
		name       string
		authHeader string
	}{
		{"без заголовка", ""},
		{"не Bearer", "Basic dXNlcjpwYXNz"},
		{"пустой токен", "Bearer "},
		{"мусор вместо токена", "Bearer not.a.jwt"},
		{"просроченный токен", "Bearer " + generateTestToken(t, key, expired)},
		{"чужой ключ подписи", "Bearer " + generateTestToken(t, otherKey, validClaims("user-3", ScopeMediaUpload))},
		{"токен без sub", "Bearer " + generateTestToken(t, key, noSub)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				t.Error("запрос не должен дойти до обработчика")
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("статус = %d, ожидалось 401", rec.Code)
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	handler := auth.Middleware()(
		RequireScope(ScopeMediaEvents)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})))

	// Токен без требуемого scope — 403
	req := httptest.NewRequest(http.MethodPost, "/internal/events/uploaded", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, validClaims("bus", ScopeMediaUpload)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("статус = %d, ожидалось 403", rec.Code)
	}

	// Токен с требуемым scope — проходит
	req = httptest.NewRequest(http.MethodPost, "/internal/events/uploaded", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, validClaims("bus", ScopeMediaEvents)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("статус = %d, ожидалось 204", rec.Code)
	}
}
