package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lanchat/config"
	"lanchat/internal/model"
	"lanchat/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type memOffline struct {
	mu    sync.Mutex
	queue map[uint][][]byte
}

func newMemOffline() *memOffline { return &memOffline{queue: make(map[uint][][]byte)} }

func (s *memOffline) AddOfflineMessage(_ context.Context, id uint, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[id] = append(s.queue[id], payload)
	return nil
}

func (s *memOffline) DrainOfflineMessages(_ context.Context, id uint) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue[id]
	delete(s.queue, id)
	return out, nil
}

func (s *memOffline) len(id uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue[id])
}

func message(id, to uint, content string) *model.Message {
	return &model.Message{
		ID:          id,
		SenderID:    1,
		ReceiverID:  to,
		ContentType: model.ContentText,
		Content:     content,
		SendTime:    time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local),
	}
}

func decode(t *testing.T, b []byte) Frame {
	t.Helper()
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return f
}

func TestMessageSavedQueuesWhenOffline(t *testing.T) {
	store := newMemOffline()
	m := NewManager(store, nil)

	m.MessageSaved(context.Background(), message(1, 2, "hi"))
	m.MessageSaved(context.Background(), message(2, 2, "again"))
	if store.len(2) != 2 {
		t.Fatalf("queued = %d, want 2", store.len(2))
	}

	client := &Client{UserID: 2, Send: make(chan []byte, sendBuffer)}
	m.AddClient(context.Background(), client)

	for i, want := range []string{"hi", "again"} {
		f := decode(t, <-client.Send)
		if f.Type != FrameOfflineMessage || f.Message.Content != want {
			t.Errorf("frame %d = %+v", i, f)
		}
	}
	if store.len(2) != 0 {
		t.Error("offline queue not drained")
	}
}

func TestMessageSavedPushesToOnlineClient(t *testing.T) {
	store := newMemOffline()
	m := NewManager(store, nil)
	client := &Client{UserID: 2, Send: make(chan []byte, 1)}
	m.AddClient(context.Background(), client)

	m.MessageSaved(context.Background(), message(7, 2, "live"))
	f := decode(t, <-client.Send)
	if f.Type != FrameMessage || f.Message.ID != 7 || f.Message.SendTime != "2024-05-01 09:30:00" {
		t.Errorf("frame = %+v", f)
	}

	// 队列已满时转入离线队列
	m.MessageSaved(context.Background(), message(8, 2, "a"))
	m.MessageSaved(context.Background(), message(9, 2, "b"))
	if store.len(2) != 1 {
		t.Errorf("overflow queued = %d, want 1", store.len(2))
	}
}

func TestReplacedClientStaysRegistered(t *testing.T) {
	m := NewManager(nil, nil)
	first := &Client{UserID: 3, Send: make(chan []byte, 1)}
	second := &Client{UserID: 3, Send: make(chan []byte, 1)}

	m.AddClient(context.Background(), first)
	m.AddClient(context.Background(), second)
	if _, ok := <-first.Send; ok {
		t.Error("replaced client's queue not closed")
	}

	m.RemoveClient(first)
	if !m.IsOnline(3) || m.Count() != 1 {
		t.Error("removing a replaced client dropped the new one")
	}
	m.RemoveClient(second)
	if m.IsOnline(3) {
		t.Error("client still registered")
	}
}

func TestNilOfflineStoreDrops(t *testing.T) {
	m := NewManager(nil, nil)
	m.MessageSaved(context.Background(), message(1, 9, "lost"))
	if m.IsOnline(9) {
		t.Error("unexpected client")
	}
}

func TestHandlerPushesOverWebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := jwt.NewJWTService(config.JWTConfig{Secret: "test", ExpireTime: time.Hour, Issuer: "lanchat"})
	store := newMemOffline()
	m := NewManager(store, nil)
	m.MessageSaved(context.Background(), message(1, 5, "queued"))

	r := gin.New()
	r.GET("/ws", tokens.AuthMiddleware(), m.Handler(config.WebSocketConfig{PingInterval: time.Second, ReadTimeout: 5 * time.Second}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	token, err := tokens.IssueToken(5, "eve")
	if err != nil {
		t.Fatal(err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if f := decode(t, data); f.Type != FrameOfflineMessage || f.Message.Content != "queued" {
		t.Errorf("first frame = %+v", f)
	}

	m.MessageSaved(context.Background(), message(2, 5, "live"))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if f := decode(t, data); f.Type != FrameMessage || f.Message.Content != "live" {
		t.Errorf("second frame = %+v", f)
	}
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := jwt.NewJWTService(config.JWTConfig{Secret: "test", ExpireTime: time.Hour, Issuer: "lanchat"})
	m := NewManager(nil, nil)

	r := gin.New()
	r.GET("/ws", tokens.AuthMiddleware(), m.Handler(config.WebSocketConfig{}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial succeeded without token")
	} else if resp != nil && resp.StatusCode == http.StatusSwitchingProtocols {
		t.Error("upgraded without token")
	}
}
