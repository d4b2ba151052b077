package jwt

import (
	"strings"

	"lanchat/pkg/logger"
	"lanchat/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ContextUserIDKey 用户ID在gin.Context中的键名
	ContextUserIDKey = "user_id"
	// ContextUsernameKey 用户名在gin.Context中的键名
	ContextUsernameKey = "username"
)

// AuthMiddleware JWT认证中间件
// 优先读取 Authorization: Bearer <token>，浏览器 WebSocket 无法设置请求头时读取 ?token=
func (s *JWTService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Unauthorized(c, "Authorization格式错误，应为Bearer <token>")
				c.Abort()
				return
			}
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if tokenString == "" {
			response.Unauthorized(c, "缺少令牌")
			c.Abort()
			return
		}

		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			logger.Warn("JWT验证失败", zap.Error(err), zap.String("ip", c.ClientIP()))
			response.Unauthorized(c, "token无效或已过期")
			c.Abort()
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			response.Unauthorized(c, "用户信息无效")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// GetUserID 从gin.Context中获取用户ID
func GetUserID(c *gin.Context) uint {
	if userID, exists := c.Get(ContextUserIDKey); exists {
		if id, ok := userID.(uint); ok {
			return id
		}
	}
	return 0
}
