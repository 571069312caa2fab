package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m, err := NewHTTPMetricsWithRegisterer(registry, Config{ServiceName: "feeledger", Environment: "test"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/ledger-entries/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/ledger-entries/42", nil)
		r.ServeHTTP(w, req)
	}

	count := testutil.ToFloat64(m.requests.WithLabelValues("/api/ledger-entries/:id", "GET", "404"))
	assert.Equal(t, float64(2), count)
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewHTTPMetricsWithRegisterer(registry, Config{})
	require.NoError(t, err)
	second, err := NewHTTPMetricsWithRegisterer(registry, Config{})
	require.NoError(t, err)
	assert.Same(t, first.requests, second.requests)
}
