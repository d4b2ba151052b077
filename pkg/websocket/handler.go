package websocket

import (
	"net/http"
	"time"

	"lanchat/config"
	"lanchat/pkg/jwt"
	"lanchat/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域，来源由 cors 中间件控制
	},
}

// Handler 推送通道 gin 处理函数，需挂在 jwt 认证中间件之后
func (m *Manager) Handler(cfg config.WebSocketConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := jwt.GetUserID(c)
		if userID == 0 {
			response.Unauthorized(c, "token无效")
			return
		}

		// 回显子协议，避免客户端提示 "Server sent no subprotocol"
		respHeader := http.Header{}
		if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
			respHeader.Set("Sec-WebSocket-Protocol", protocol)
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
		if err != nil {
			m.log.Debug("推送通道升级失败", zap.Error(err))
			return
		}

		client := NewClient(userID, conn)
		go m.writePump(client, cfg.PingInterval)
		m.AddClient(c.Request.Context(), client)
		m.log.Debug("推送通道已连接", zap.Uint("user_id", userID))

		m.readPump(client, cfg.ReadTimeout)
		m.RemoveClient(client)
		_ = conn.Close()
		m.log.Debug("推送通道已断开", zap.Uint("user_id", userID))
	}
}

// writePump 发送队列中的帧，并定时发送 ping
func (m *Manager) writePump(client *Client, pingInterval time.Duration) {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = client.Conn.Close()
				return
			}
		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				_ = client.Conn.Close()
				return
			}
		}
	}
}

// readPump 只用于保活，超时未收到任何数据则断开
func (m *Manager) readPump(client *Client, readTimeout time.Duration) {
	if readTimeout <= 0 {
		readTimeout = 90 * time.Second
	}
	conn := client.Conn
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}
