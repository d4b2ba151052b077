package handler

import (
	"net/http"

	"lanchat/config"
	"lanchat/pkg/jwt"
	"lanchat/pkg/logger"
	"lanchat/pkg/response"
	"lanchat/pkg/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// PushChannel 推送通道，未启用时为 nil
type PushChannel struct {
	Manager *websocket.Manager
	Tokens  *jwt.JWTService
	Config  config.WebSocketConfig
}

// NewRouter 创建管理接口路由
func NewRouter(cfg config.HTTPConfig, admin *AdminHandler, push *PushChannel) *gin.Engine {
	router := gin.New()
	router.Use(logger.RequestLogger())
	router.Use(logger.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	// 完整url为：http://localhost:8080/health
	router.GET("/health", admin.Health)

	api := router.Group("/api")
	{
		api.GET("/stats", admin.Stats)   // 连接统计
		api.GET("/online", admin.Online) // 会话与在线状态
	}

	if push != nil {
		router.GET("/ws", push.Tokens.AuthMiddleware(), push.Manager.Handler(push.Config))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.Response{Code: http.StatusNotFound, Message: "接口不存在"})
	})
	return router
}
