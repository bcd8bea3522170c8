package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

func authedRouter(cfg config.AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(cfg))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"identity": c.GetString(identityKey)})
	})
	return r
}

func doGet(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthOpenWithoutKeys(t *testing.T) {
	r := authedRouter(config.AuthConfig{Enabled: true})
	w := doGet(r, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejectsMissingAndUnknownKeys(t *testing.T) {
	r := authedRouter(config.AuthConfig{APIKeys: []string{"good-key"}})

	for _, headers := range []map[string]string{
		nil,
		{"X-API-Key": "wrong"},
		{"Authorization": "Bearer wrong"},
		{"Authorization": "Bearer "},
	} {
		w := doGet(r, headers)
		require.Equal(t, http.StatusUnauthorized, w.Code)

		var resp models.ScrapeResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, models.ErrCodeUnauthorized, resp.Error.Code)
	}
}

func TestAuthAcceptsEitherHeader(t *testing.T) {
	r := authedRouter(config.AuthConfig{APIKeys: []string{"good-key", "other-key"}})

	for _, headers := range []map[string]string{
		{"X-API-Key": "good-key"},
		{"Authorization": "Bearer other-key"},
	} {
		w := doGet(r, headers)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// X-API-Key wins when both are present, and the identity is recorded.
	w := doGet(r, map[string]string{
		"X-API-Key":     "good-key",
		"Authorization": "Bearer other-key",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "good-key", body["identity"])
}

func limitedRouter(cfg config.RateLimitConfig, identity string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if identity != "" {
		r.Use(func(c *gin.Context) { c.Set(identityKey, identity) })
	}
	r.Use(RateLimit(cfg))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitThrottlesAndAdvertisesRetry(t *testing.T) {
	r := limitedRouter(config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1}, "key-a")

	w := doGet(r, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doGet(r, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeRateLimited, resp.Error.Code)
}

func TestRateLimitBucketsPerIdentity(t *testing.T) {
	cfg := config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	limiter := RateLimit(cfg)
	gin.SetMode(gin.TestMode)

	serve := func(identity string) int {
		r := gin.New()
		r.Use(func(c *gin.Context) { c.Set(identityKey, identity) })
		r.Use(limiter)
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve("key-a"))
	assert.Equal(t, http.StatusTooManyRequests, serve("key-a"))
	// A different key still has its full burst.
	assert.Equal(t, http.StatusOK, serve("key-b"))
}

func TestLimiterPoolSweepsIdleBuckets(t *testing.T) {
	pool := newLimiterPool(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	pool.get("stale")
	pool.get("fresh")

	pool.mu.Lock()
	pool.buckets["stale"].lastSeen = time.Now().Add(-2 * bucketIdle)
	pool.lastSweep = time.Now().Add(-2 * sweepInterval)
	pool.mu.Unlock()

	pool.get("fresh")

	pool.mu.Lock()
	defer pool.mu.Unlock()
	assert.NotContains(t, pool.buckets, "stale")
	assert.Contains(t, pool.buckets, "fresh")
}
