package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"lanchat/config"
	"lanchat/internal/protocol"
	"lanchat/internal/service"

	"go.uber.org/zap"
)

// ErrServerClosed Shutdown 之后 Serve 返回的错误
var ErrServerClosed = errors.New("server: closed")

// Handler 会话使用的命令处理器
type Handler interface {
	Dispatch(ctx context.Context, p service.Principal, req protocol.Request) protocol.Response
	MarkOffline(ctx context.Context, userID uint) error
}

// Stats 连接统计
type Stats struct {
	Live          int   `json:"live"`
	Authenticated int   `json:"authenticated"`
	Accepted      int64 `json:"accepted"`
}

// Server 聊天协议服务器，每个连接一个会话协程
type Server struct {
	cfg     config.ServerConfig
	handler Handler
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*Session
	bound    map[uint]int // 每个用户已登录的会话数
	closed   bool
	wg       sync.WaitGroup

	accepted atomic.Int64
}

// New 创建服务器
func New(cfg config.ServerConfig, handler Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 64 * 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		handler:  handler,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
		bound:    make(map[uint]int),
	}
}

// ListenAndServe 监听配置的地址并开始服务
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve 在给定监听器上接受连接，直到 Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("聊天服务器已启动", zap.String("addr", ln.Addr().String()))

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn("接受连接失败，稍后重试", zap.Error(err), zap.Duration("retry_in", backoff))
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0
		go s.ServeConn(conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// ServeConn 在当前协程中运行一个会话，直到连接断开
func (s *Server) ServeConn(conn net.Conn) {
	sess := newSession(s, conn)
	if !s.track(sess) {
		_ = conn.Close()
		return
	}
	defer s.untrack(sess)

	sess.run(s.ctx)
}

func (s *Server) track(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	s.wg.Add(1)
	s.accepted.Add(1)
	return true
}

func (s *Server) retainUser(userID uint) {
	s.mu.Lock()
	s.bound[userID]++
	s.mu.Unlock()
}

// releaseUser 返回该用户是否已没有登录中的会话
func (s *Server) releaseUser(userID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound[userID]--; s.bound[userID] > 0 {
		return false
	}
	delete(s.bound, userID)
	return true
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown 关闭监听器和所有会话，等待会话协程退出或 ctx 结束
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	live := len(s.sessions)
	for id, sess := range s.sessions {
		sess.close()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.log.Info("聊天服务器正在关闭", zap.Int("sessions", live))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr 监听地址，未开始服务时为 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats 当前连接统计
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Live: len(s.sessions), Accepted: s.accepted.Load()}
	for _, sess := range s.sessions {
		if sess.Principal().Authenticated() {
			st.Authenticated++
		}
	}
	return st
}

// Sessions 当前会话快照
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}
