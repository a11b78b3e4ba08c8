package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"privacymixer/internal/middleware"
	"privacymixer/internal/observability"
)

// DefaultRateLimit applies to every ops endpoint
var DefaultRateLimit = middleware.RateLimiterConfig{
	RequestsPerSecond: 10,
	Burst:             20,
}

// SetupRouter returns the operational router serving /health and /metrics.
// Ledger operations are not exposed over HTTP.
func SetupRouter(metrics *observability.Metrics, stop <-chan struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimiter(DefaultRateLimit, stop))

	// Add health check endpoint
	r.Any("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	return r
}
