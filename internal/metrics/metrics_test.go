package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/products/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/products/1", "/products/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/products/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestObserveAPICallAndCacheHooks(t *testing.T) {
	m := New()
	m.ObserveAPICall("GET", "/products", 200, 40*time.Millisecond)
	m.ObserveAPICall("GET", "/products", 200, 10*time.Millisecond)

	hooks := m.CacheHooks()
	hooks.OnMiss("products")
	hooks.OnHit("products")
	hooks.OnHit("products")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiCalls.WithLabelValues("GET", "/products", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("products", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("products", "miss")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveAPICall("POST", "/supplies", 201, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `stockapp_api_calls_total{method="POST",route="/supplies",status="201"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
