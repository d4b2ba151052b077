package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"lanchat/internal/model"
	"lanchat/pkg/response"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 推送帧类型
const (
	FrameMessage        = "message"
	FrameOfflineMessage = "offline_message"
)

// sendBuffer 每个连接的待发送队列长度
const sendBuffer = 256

// Frame 推送给客户端的 JSON 帧
type Frame struct {
	Type    string                `json:"type"`
	Message *response.MessageInfo `json:"message"`
}

// OfflineStore 离线推送队列，由 Redis 实现
type OfflineStore interface {
	AddOfflineMessage(ctx context.Context, receiverID uint, payload []byte) error
	DrainOfflineMessages(ctx context.Context, receiverID uint) ([][]byte, error)
}

// Client 代表一个推送连接
type Client struct {
	UserID uint
	Conn   *websocket.Conn
	Send   chan []byte
}

// NewClient 创建推送连接
func NewClient(userID uint, conn *websocket.Conn) *Client {
	return &Client{UserID: userID, Conn: conn, Send: make(chan []byte, sendBuffer)}
}

// Manager 管理所有在线用户的推送连接
// 每个用户最多一个连接，新连接替换旧连接
type Manager struct {
	clients map[uint]*Client
	lock    sync.RWMutex
	offline OfflineStore
	log     *zap.Logger
}

// NewManager 创建管理器，offline 为 nil 时不在线的推送直接丢弃
func NewManager(offline OfflineStore, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		clients: make(map[uint]*Client),
		offline: offline,
		log:     log,
	}
}

// AddClient 添加新连接，并补发离线队列中的消息
func (m *Manager) AddClient(ctx context.Context, client *Client) {
	m.lock.Lock()
	if old, ok := m.clients[client.UserID]; ok {
		close(old.Send)
	}
	m.clients[client.UserID] = client
	m.lock.Unlock()

	m.pushOfflineMessages(ctx, client)
}

// RemoveClient 移除连接，已被新连接替换时不做任何事
func (m *Manager) RemoveClient(client *Client) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if c, ok := m.clients[client.UserID]; ok && c == client {
		close(c.Send)
		delete(m.clients, client.UserID)
	}
}

// IsOnline 判断用户是否有推送连接
func (m *Manager) IsOnline(userID uint) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.clients[userID]
	return ok
}

// Count 当前推送连接数
func (m *Manager) Count() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients)
}

// SendToUser 推送给指定用户，不在线或队列已满时写入离线队列
func (m *Manager) SendToUser(ctx context.Context, userID uint, payload []byte) {
	m.lock.RLock()
	client, ok := m.clients[userID]
	if ok {
		select {
		case client.Send <- payload:
			m.lock.RUnlock()
			return
		default:
			m.log.Warn("推送队列已满", zap.Uint("user_id", userID))
		}
	}
	m.lock.RUnlock()

	if m.offline == nil {
		return
	}
	if err := m.offline.AddOfflineMessage(ctx, userID, payload); err != nil {
		m.log.Error("写入离线推送失败", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// MessageSaved 消息落库后推送给接收者
func (m *Manager) MessageSaved(ctx context.Context, msg *model.Message) {
	payload, err := json.Marshal(Frame{Type: FrameMessage, Message: response.FilterMessageInfo(msg)})
	if err != nil {
		m.log.Error("编码推送消息失败", zap.Error(err))
		return
	}
	m.SendToUser(ctx, msg.ReceiverID, payload)
}

// CloseAll 关闭所有推送连接
func (m *Manager) CloseAll() {
	m.lock.Lock()
	defer m.lock.Unlock()
	for id, c := range m.clients {
		close(c.Send)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
		delete(m.clients, id)
	}
}

// pushOfflineMessages 按入队顺序补发离线消息
func (m *Manager) pushOfflineMessages(ctx context.Context, client *Client) {
	if m.offline == nil {
		return
	}
	payloads, err := m.offline.DrainOfflineMessages(ctx, client.UserID)
	if err != nil {
		m.log.Error("读取离线推送失败", zap.Uint("user_id", client.UserID), zap.Error(err))
		return
	}
	for _, p := range payloads {
		m.SendToUser(ctx, client.UserID, asOffline(p))
	}
}

// asOffline 把帧类型改为 offline_message，无法解析时原样返回
func asOffline(payload []byte) []byte {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil || f.Type != FrameMessage {
		return payload
	}
	f.Type = FrameOfflineMessage
	out, err := json.Marshal(f)
	if err != nil {
		return payload
	}
	return out
}
