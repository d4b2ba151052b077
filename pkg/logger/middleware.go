package logger

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 管理接口请求日志
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		lg := WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"ip":      c.ClientIP(),
			"status":  status,
			"latency": time.Since(start).String(),
		})

		// 根据状态码选择日志级别
		switch {
		case status >= 500:
			lg.Error("HTTP请求错误")
		case status >= 400:
			lg.Warn("HTTP请求警告")
		default:
			lg.Debug("HTTP请求成功")
		}
	}
}

// Recovery 捕获 panic 并记录日志
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		Error("HTTP请求发生panic",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.String("error", fmt.Sprint(recovered)),
		)
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
