package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/taskflow-api/internal/service"
)

// Metrics times every handled request into the histogram and request
// counter. The route template is preferred over the raw path so task IDs
// don't explode label cardinality; the scrape endpoint itself is skipped.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/metrics" {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
