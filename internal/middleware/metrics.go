package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ritualog/internal/service"
)

// Metrics 以路由模板为标签记录请求数与耗时
func Metrics(m service.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(route, c.Writer.Status(), time.Since(start))
	}
}
