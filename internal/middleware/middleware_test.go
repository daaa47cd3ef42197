package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempiemail/backend/internal/monitoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path, body, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if remote != "" {
		req.RemoteAddr = remote
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2, nil)
	defer limiter.Close()
	metrics := monitoring.NewMetrics()
	limiter.SetMetrics(metrics)

	r := gin.New()
	r.POST("/generate", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/generate", "", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/generate", "", "10.0.0.1:1001").Code)

	w := serve(r, http.MethodPost, "/generate", "", "10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	t.Run("不同 IP 互不影响", func(t *testing.T) {
		assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/generate", "", "10.0.0.2:1000").Code)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitBlocks.WithLabelValues("provision")))
}

func TestIPRateLimiter_Allow(t *testing.T) {
	limiter := NewIPRateLimiter(60, 1, nil)
	defer limiter.Close()

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.POST("/echo", BodySizeLimit(8), func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/echo", `{"a":1}`, "").Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, http.MethodPost, "/echo", `{"a":"0123456789"}`, "").Code)
}

func TestRecoveryHandler(t *testing.T) {
	metrics := monitoring.NewMetrics()

	r := gin.New()
	r.Use(RecoveryHandler(nil, metrics))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := serve(r, http.MethodGet, "/boom", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":500`)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PanicsTotal))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/", "", "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestHTTPMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	mm := NewMonitoringMiddleware(metrics)

	r := gin.New()
	r.Use(mm.HTTPMetrics(), RequestLogger(nil))
	r.GET("/api/emails/:address", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/api/emails/a@b.com", "", "")
	serve(r, http.MethodGet, "/missing", "", "")

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/emails/:address", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
}
