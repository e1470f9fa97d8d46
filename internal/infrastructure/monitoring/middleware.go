package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records request counts, latency and sizes. Telemetry socket
// upgrades are skipped: the hub counts those connections, and their
// lifetime would swamp the latency histogram.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.IsWebsocket() {
			c.Next()
			return
		}
		start := time.Now()

		// Route templates keep label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		reqSize := max(c.Request.ContentLength, 0)

		c.Next()

		metrics.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
			reqSize,
			int64(max(c.Writer.Size(), 0)),
		)
	}
}
