package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthias-truyzelaere/documindr/internal/platform/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFromContext(c))
	})

	resp := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := resp.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, resp.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "client-id-1")
	resp = serve(r, req)
	assert.Equal(t, "client-id-1", resp.Header().Get(RequestIDHeader))
	assert.Equal(t, "client-id-1", resp.Body.String())
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeObserver struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (o *fakeObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, recordedRequest{method: method, route: route, status: status})
}

func TestLogging_ObservesRouteTemplate(t *testing.T) {
	obs := &fakeObserver{}
	r := gin.New()
	r.Use(Logging(logger.Discard(), obs))
	r.DELETE("/api/documents/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	serve(r, httptest.NewRequest(http.MethodDelete, "/api/documents/abc", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	serve(r, httptest.NewRequest(http.MethodOptions, "/api/documents/abc", nil))

	require.Len(t, obs.requests, 2)
	assert.Equal(t, recordedRequest{"DELETE", "/api/documents/:id", 404}, obs.requests[0])
	assert.Equal(t, recordedRequest{"GET", unmatchedRoute, 404}, obs.requests[1])
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(logger.Discard()))
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	resp := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, resp)["code"])
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{" http://localhost:3000 ", ""}))
	r.GET("/api", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		resp := serve(r, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "http://localhost:3000", resp.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Origin", "https://evil.example")
		resp := serve(r, req)
		assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight reflects headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Headers", "X-Custom, Content-Type")
		resp := serve(r, req)
		assert.Equal(t, http.StatusNoContent, resp.Code)
		assert.Equal(t, "X-Custom, Content-Type", resp.Header().Get("Access-Control-Allow-Headers"))
		assert.Contains(t, resp.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	})
}

func TestPayloadLimit(t *testing.T) {
	r := gin.New()
	r.Use(PayloadLimit(8))
	r.POST("/api/upload", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/api/upload", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	resp := serve(r, httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	assert.Equal(t, map[string]string{"code": "PAYLOAD_TOO_LARGE", "message": "Request too large"}, decodeError(t, resp))

	resp = serve(r, httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/upload", nil)
	req.ContentLength = 100
	resp = serve(r, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestGroupForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/chat", RateLimitGroupChat},
		{"/api/chat/5f0c/summary", RateLimitGroupChat},
		{"/api/upload", RateLimitGroupUpload},
		{"/api/documents", RateLimitGroupDefault},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, tt.path, nil)
		assert.Equal(t, tt.want, GroupForPath(c), tt.path)
	}
}

func newLimitedRouter(limiter *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{
		Limiter: limiter,
		Rules: map[string]RateLimitRule{
			RateLimitGroupChat:    {Limit: 2, Window: time.Minute},
			RateLimitGroupUpload:  {Limit: 1, Window: time.Minute},
			RateLimitGroupDefault: {Limit: 3, Window: time.Minute},
		},
	}))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.POST("/api/chat", ok)
	r.POST("/api/chat/:id", ok)
	r.POST("/api/upload", ok)
	r.GET("/api/documents", ok)
	return r
}

func TestRateLimit_PerPathBuckets(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now }, 0, 0)
	r := newLimitedRouter(limiter)

	for i := 0; i < 2; i++ {
		resp := serve(r, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
		require.Equal(t, http.StatusOK, resp.Code, "chat request %d", i+1)
	}

	resp := serve(r, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))
	assert.Equal(t, map[string]string{
		"code":    "RATE_LIMIT_EXCEEDED",
		"message": "Rate limit exceeded. Try again soon.",
	}, decodeError(t, resp))

	// パスが違えば別のバケット
	resp = serve(r, httptest.NewRequest(http.MethodPost, "/api/chat/doc-1", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = serve(r, httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = serve(r, httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	for i := 0; i < 3; i++ {
		resp = serve(r, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
		require.Equal(t, http.StatusOK, resp.Code)
	}
}

func TestRateLimit_Refills(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now }, 0, 0)
	r := newLimitedRouter(limiter)

	require.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPost, "/api/upload", nil)).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(r, httptest.NewRequest(http.MethodPost, "/api/upload", nil)).Code)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPost, "/api/upload", nil)).Code)
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now }, 2*time.Minute, 5*time.Minute)
	rule := RateLimitRule{Limit: 5, Window: time.Minute}

	limiter.Allow("a", rule)
	limiter.Allow("b", rule)
	require.Equal(t, 2, limiter.Len())

	now = now.Add(4 * time.Minute)
	limiter.Allow("b", rule)
	assert.Equal(t, 2, limiter.Len(), "cleanup runs only once per interval")

	now = now.Add(time.Minute + time.Second)
	limiter.Allow("c", rule)
	assert.Equal(t, 2, limiter.Len())
}

func TestRateLimiter_DisabledRuleAlwaysAllows(t *testing.T) {
	limiter := NewRateLimiter(nil, 0, 0)
	for i := 0; i < 10; i++ {
		ok, _ := limiter.Allow("k", RateLimitRule{})
		assert.True(t, ok)
	}
}
