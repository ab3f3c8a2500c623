package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sayup/server/internal/authkit"
	"github.com/sayup/server/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestConfigureCORS(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zap.NewNop(), []string{"http://localhost:3000"})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.OPTIONS("/resource", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	request.Header.Set("Origin", "http://localhost:3000")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
}

func TestConfigureCORSRestrictsToAPISurface(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zap.NewNop(), []string{"https://app.sayup.example"})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.OPTIONS("/resource", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	request.Header.Set("Origin", "https://app.sayup.example")
	request.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from preflight, got %d", recorder.Code)
	}
	if methods := recorder.Header().Get("Access-Control-Allow-Methods"); methods != "GET,POST,DELETE,OPTIONS" {
		t.Fatalf("unexpected allowed methods %q", methods)
	}
	if headers := recorder.Header().Get("Access-Control-Allow-Headers"); headers != "Authorization,Content-Type" {
		t.Fatalf("unexpected allowed headers %q", headers)
	}
	if credentials := recorder.Header().Get("Access-Control-Allow-Credentials"); credentials != "" {
		t.Fatalf("expected no credentials header, got %q", credentials)
	}
}

func TestConfigureCORSWildcard(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zaptest.NewLogger(t), []string{" * "})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.GET("/resource", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/resource", nil)
	request.Header.Set("Origin", "https://anywhere.example")
	router.ServeHTTP(recorder, request)
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("expected wildcard allow origin, got %q", origin)
	}
}

func TestNormalizeOrigins(t *testing.T) {
	t.Parallel()

	normalized, err := normalizeOrigins(zaptest.NewLogger(t), []string{"https://b.example.com/", " https://a.example.com", "HTTPS://A.example.com", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(normalized) != 2 || normalized[0] != "https://a.example.com" || normalized[1] != "https://b.example.com" {
		t.Fatalf("unexpected normalized origins %v", normalized)
	}

	invalid := []struct {
		origins  []string
		expected error
	}{
		{origins: nil, expected: errEmptyAllowedOrigins},
		{origins: []string{"  "}, expected: errEmptyAllowedOrigins},
		{origins: []string{"*", "https://example.com"}, expected: errMixedWildcardOrigin},
		{origins: []string{"example.com"}, expected: errInvalidOrigin},
		{origins: []string{"https://example.com/path"}, expected: errInvalidOrigin},
		{origins: []string{"https://example.com?x=1"}, expected: errInvalidOrigin},
		{origins: []string{"https://user@example.com"}, expected: errInvalidOrigin},
		{origins: []string{"ftp://example.com"}, expected: errInvalidOrigin},
	}
	for _, testCase := range invalid {
		if _, err := ConfigureCORS(zap.NewNop(), testCase.origins); !errors.Is(err, testCase.expected) {
			t.Fatalf("origins %v: expected %v, got %v", testCase.origins, testCase.expected, err)
		}
	}
}

func TestHandleWhoAmI(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	identities := &singleIdentityStore{identity: models.Identity{
		ID:       7,
		Email:    "alice@x.com",
		Username: "alice",
		Role:     models.RoleUser,
		Active:   true,
	}}
	tokens, err := authkit.NewTokenService(authkit.ServerConfig{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "sayup-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, identities, authkit.NewMemoryRevocationStore())
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	accessToken, err := tokens.IssueAccessToken(identities.identity)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	router := gin.New()
	router.GET("/me", authkit.RequireSession(tokens), HandleWhoAmI(zaptest.NewLogger(t)))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	request.Header.Set("Authorization", "Bearer "+accessToken)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload["user_id"] != float64(7) || payload["email"] != "alice@x.com" || payload["username"] != "alice" || payload["role"] != "USER" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestHandleWhoAmIMissingIdentity(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/me", HandleWhoAmI(zap.NewNop()))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/me", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when identity missing, got %d", recorder.Code)
	}
}

func TestIPRateLimiterRefillsAndExpires(t *testing.T) {
	t.Parallel()

	current := time.Unix(1700000000, 0)
	var mutex sync.Mutex
	limiter := NewIPRateLimiter(1, time.Minute, 2, 10*time.Minute)
	limiter.WithNowFunc(func() time.Time {
		mutex.Lock()
		defer mutex.Unlock()
		return current
	})
	advance := func(duration time.Duration) {
		mutex.Lock()
		defer mutex.Unlock()
		current = current.Add(duration)
	}

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected burst of two to be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected third request to be limited")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("expected other clients to keep their own budget")
	}

	advance(time.Minute)
	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected a token after one window")
	}

	advance(11 * time.Minute)
	limiter.Allow("10.0.0.3")
	limiter.mutex.Lock()
	_, tracked := limiter.visitors["10.0.0.1"]
	limiter.mutex.Unlock()
	if tracked {
		t.Fatalf("expected idle visitor to be collected")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/login", RateLimitMiddleware(zaptest.NewLogger(t), NewIPRateLimiter(1, time.Hour, 1, time.Hour)), func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})

	codes := make([]int, 0, 2)
	for attempt := 0; attempt < 2; attempt++ {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/login", nil)
		request.RemoteAddr = "192.0.2.10:5555"
		router.ServeHTTP(recorder, request)
		codes = append(codes, recorder.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}
