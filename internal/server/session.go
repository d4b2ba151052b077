package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"lanchat/internal/protocol"
	"lanchat/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 断线后置离线的超时
const teardownTimeout = 5 * time.Second

// Session 一个客户端连接
// 请求严格按顺序处理，身份在 LOGIN 成功后绑定且不再改变
type Session struct {
	id          string
	conn        net.Conn
	srv         *Server
	log         *zap.Logger
	connectedAt time.Time

	mu        sync.RWMutex
	principal service.Principal

	closeOnce sync.Once
}

// SessionInfo 会话快照
type SessionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	UserID      uint      `json:"user_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

func newSession(srv *Server, conn net.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		conn:        conn,
		srv:         srv,
		connectedAt: time.Now(),
		log: srv.log.With(
			zap.String("session", id),
			zap.String("remote", conn.RemoteAddr().String()),
		),
	}
}

// Principal 当前绑定的身份
func (s *Session) Principal() service.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

// Info 会话快照
func (s *Session) Info() SessionInfo {
	p := s.Principal()
	return SessionInfo{
		ID:          s.id,
		RemoteAddr:  s.conn.RemoteAddr().String(),
		UserID:      p.UserID,
		Username:    p.Username,
		ConnectedAt: s.connectedAt,
	}
}

func (s *Session) bind(p service.Principal) {
	s.mu.Lock()
	s.principal = p
	s.mu.Unlock()
	s.srv.retainUser(p.UserID)
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (s *Session) run(ctx context.Context) {
	s.log.Debug("客户端已连接")
	defer s.teardown()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("会话处理发生panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	limit := s.srv.cfg.MaxLineBytes
	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, min(4096, limit)), limit)
	scanner.Split(scanCompleteLines)

	for {
		if s.srv.cfg.IdleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}
		if err := s.handleLine(ctx, scanner.Text()); err != nil {
			s.log.Warn("写入响应失败", zap.Error(err))
			return
		}
	}

	err := scanner.Err()
	var ne net.Error
	switch {
	case err == nil:
		s.log.Debug("客户端断开连接")
	case errors.Is(err, bufio.ErrTooLong):
		s.log.Warn("请求行过长，关闭连接", zap.Int("max_bytes", s.srv.cfg.MaxLineBytes))
	case errors.As(err, &ne) && ne.Timeout():
		s.log.Info("会话空闲超时")
	case errors.Is(err, net.ErrClosed):
		s.log.Debug("连接已关闭")
	default:
		s.log.Warn("读取请求失败", zap.Error(err))
	}
}

func (s *Session) handleLine(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}

	req, err := protocol.ParseRequest(line)
	if err != nil {
		s.log.Debug("丢弃格式错误的请求", zap.Error(err))
		if s.srv.cfg.ReplyMalformed {
			return s.write(&protocol.ProtocolError{})
		}
		return nil
	}

	resp := s.srv.handler.Dispatch(ctx, s.Principal(), req)
	if ok, isLogin := resp.(*protocol.LoginSuccess); isLogin {
		s.bind(service.Principal{UserID: ok.User.ID, Username: ok.User.Username})
		s.log = s.log.With(zap.Uint("user_id", ok.User.ID))
	}
	return s.write(resp)
}

func (s *Session) write(resp protocol.Response) error {
	if s.srv.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
	}
	_, err := io.WriteString(s.conn, protocol.EncodeResponse(resp)+"\n")
	return err
}

// teardown 关闭连接，用户的最后一个会话结束时置为离线
func (s *Session) teardown() {
	s.close()

	p := s.Principal()
	if !p.Authenticated() || !s.srv.releaseUser(p.UserID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := s.srv.handler.MarkOffline(ctx, p.UserID); err != nil {
		s.log.Error("断线置离线失败", zap.Error(err))
	}
}

// scanCompleteLines 只返回以换行结尾的完整行，连接关闭时残留的半行被丢弃
func scanCompleteLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	return 0, nil, nil
}
