package handler

import (
	"context"
	"sort"
	"time"

	"lanchat/internal/model"
	"lanchat/internal/server"
	"lanchat/pkg/redis"
	"lanchat/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 健康检查单项超时
const checkTimeout = 2 * time.Second

// SessionSource 聊天服务器的连接视图
type SessionSource interface {
	Stats() server.Stats
	Sessions() []server.SessionInfo
}

// PresenceSource 跨实例在线状态，未启用 Redis 时为 nil
type PresenceSource interface {
	OnlineUsers(ctx context.Context) ([]redis.PresenceData, error)
}

// UserSource 数据库中的在线用户，未启用 Redis 时代替 PresenceSource
type UserSource interface {
	ListOnline(ctx context.Context) ([]model.User, error)
}

// Check 依赖健康检查
type Check func(ctx context.Context) error

// AdminHandler 管理接口处理器
type AdminHandler struct {
	sessions SessionSource
	presence PresenceSource
	users    UserSource
	checks   map[string]Check
	log      *zap.Logger
	started  time.Time
}

// NewAdminHandler 创建AdminHandler实例
func NewAdminHandler(sessions SessionSource, presence PresenceSource, users UserSource, checks map[string]Check, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{
		sessions: sessions,
		presence: presence,
		users:    users,
		checks:   checks,
		log:      log,
		started:  time.Now(),
	}
}

// Health 依赖健康检查，任一失败返回 503
func (h *AdminHandler) Health(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			h.log.Warn("健康检查失败", zap.String("dependency", name), zap.Error(err))
			deps[name] = "down"
			healthy = false
			continue
		}
		deps[name] = "ok"
	}

	data := gin.H{
		"status":       "ok",
		"dependencies": deps,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"time":         time.Now().Format(time.RFC3339),
	}
	if !healthy {
		data["status"] = "degraded"
		response.ServiceUnavailable(c, "依赖不可用", data)
		return
	}
	response.Success(c, data)
}

// Stats 连接统计
func (h *AdminHandler) Stats(c *gin.Context) {
	response.Success(c, h.sessions.Stats())
}

// Online 本实例会话列表，启用 Redis 时附带全局在线用户，否则附带数据库中的在线用户
func (h *AdminHandler) Online(c *gin.Context) {
	sessions := h.sessions.Sessions()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
	})

	data := gin.H{"sessions": sessions}
	switch {
	case h.presence != nil:
		users, err := h.presence.OnlineUsers(c.Request.Context())
		if err != nil {
			h.log.Error("读取在线状态失败", zap.Error(err))
			response.InternalError(c, "读取在线状态失败")
			return
		}
		data["presence"] = users
	case h.users != nil:
		users, err := h.users.ListOnline(c.Request.Context())
		if err != nil {
			h.log.Error("读取在线用户失败", zap.Error(err))
			response.InternalError(c, "读取在线用户失败")
			return
		}
		infos := make([]*response.UserInfo, 0, len(users))
		for i := range users {
			infos = append(infos, response.FilterUserInfo(&users[i]))
		}
		data["users"] = infos
	}
	response.Success(c, data)
}
