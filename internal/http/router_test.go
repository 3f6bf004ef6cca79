package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "2024-01-02T03:04:05Z", body["timestamp"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/api/auth/register", "", `{"name":"Sara","email":"sara@coffee.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "user-token", res["token"])

	rec = s.do("GET", "/api/auth/me", "user-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do("GET", "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.auth.err = status.Error(codes.AlreadyExists, "email already registered")
	rec = s.do("POST", "/api/auth/register", "", `{"name":"Sara","email":"sara@coffee.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.auth.err = status.Error(codes.Unauthenticated, "invalid email or password")
	rec = s.do("POST", "/api/auth/login", "", `{"email":"sara@coffee.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/cart/add", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStaticImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "peru.jpg"), []byte("jpeg"), 0o644))

	handler := NewRouter(RouterConfig{
		Carts:          &mockCartService{},
		Products:       &mockProductService{},
		Auth:           &mockAuthService{},
		RequestTimeout: time.Second,
		ImagesDir:      dir,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/images/peru.jpg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"valid":        {"Bearer abc", "abc", true},
		"lower scheme": {"bearer abc", "abc", true},
		"empty":        {"", "", false},
		"basic":        {"Basic abc", "", false},
		"no token":     {"Bearer ", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			token, ok := bearerToken(req)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.token, token)
		})
	}
}
