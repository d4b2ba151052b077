package server

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lanchat/config"
	"lanchat/internal/protocol"
	"lanchat/internal/repository"
	"lanchat/internal/service"
	"lanchat/pkg/db"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           "0",
		IdleTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxLineBytes:   64 * 1024,
		RequireLogin:   true,
		ReplyMalformed: true,
	}
}

// setupTestServer 使用临时 sqlite 数据库创建服务器
func setupTestServer(t *testing.T, cfg config.ServerConfig) (*Server, *repository.Store) {
	t.Helper()
	orm, err := db.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "chat.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := repository.NewStore(orm)
	srv := New(cfg, service.NewDispatcher(store, service.WithRequireLogin(cfg.RequireLogin)), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = db.Close(orm)
	})
	return srv, store
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// connect 通过 net.Pipe 建立会话，返回会话结束信号
func connect(t *testing.T, srv *Server) (*testClient, <-chan struct{}) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(serverConn)
	}()
	t.Cleanup(func() { _ = clientConn.Close() })
	return &testClient{t: t, conn: clientConn, r: bufio.NewReader(clientConn)}, done
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

func (c *testClient) read() (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func (c *testClient) roundTrip(line string) string {
	c.t.Helper()
	c.send(line)
	resp, err := c.read()
	if err != nil {
		c.t.Fatalf("read response to %q: %v", line, err)
	}
	return resp
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestSessionFlow(t *testing.T) {
	srv, _ := setupTestServer(t, testConfig())
	alice, _ := connect(t, srv)
	bob, _ := connect(t, srv)

	steps := []struct {
		c    *testClient
		line string
		want string
	}{
		{alice, "REGISTER|alice|pw1|Alice", "REGISTER_SUCCESS"},
		{bob, "REGISTER|bob|pw2|Bob|/img/bob.png", "REGISTER_SUCCESS"},
		{alice, "LOGIN|alice|pw1", "LOGIN_SUCCESS|1|alice|Alice|default_avatar.png|1"},
		{bob, "LOGIN|bob|pw2", "LOGIN_SUCCESS|2|bob|Bob|/img/bob.png|1"},
		{alice, "SEARCH_USERS|1|BO", "SEARCH_RESULT|1|2|bob|Bob|/img/bob.png|1"},
		{alice, "ADD_FRIEND|1|2", "ADD_FRIEND_RESULT|SUCCESS"},
		{bob, "GET_FRIENDS|2", "FRIEND_LIST|1|1|alice|Alice|default_avatar.png|1"},
		{alice, `SAVE_MESSAGE|1|2|1|a\|b`, "MESSAGE_SAVED|SUCCESS"},
		{bob, "GET_UNREAD|2|1", "UNREAD_COUNT|1|1"},
		{alice, "GET_FRIENDS|2", "FRIEND_LIST_FAIL|用户身份不匹配"},
		{alice, "LOGIN|bob|pw2", "LOGIN_FAIL|当前连接已登录"},
		{bob, "LOGOUT|2", "LOGOUT_SUCCESS"},
	}
	for _, st := range steps {
		if got := st.c.roundTrip(st.line); got != st.want {
			t.Fatalf("%s -> %s, want %s", st.line, got, st.want)
		}
	}

	resp := bob.roundTrip("GET_MESSAGES|2|1")
	cmd, fields := protocol.ParseResponse(resp)
	if cmd != protocol.RespMessageList || fields[0] != "1" || fields[5] != "a|b" {
		t.Errorf("history = %s", resp)
	}

	st := srv.Stats()
	if st.Live != 2 || st.Authenticated != 2 || st.Accepted != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestBackslashFieldsKeptLiteral(t *testing.T) {
	srv, _ := setupTestServer(t, testConfig())
	alice, _ := connect(t, srv)

	steps := []struct {
		line string
		want string
	}{
		{`REGISTER|alice|p\w|Alice`, "REGISTER_SUCCESS"},
		{"REGISTER|bob|pw|Bob", "REGISTER_SUCCESS"},
		{"LOGIN|alice|pw", "LOGIN_FAIL|用户名或密码错误"},
		{`LOGIN|alice|p\w`, "LOGIN_SUCCESS|1|alice|Alice|default_avatar.png|1"},
		{`SAVE_MESSAGE|1|2|2|C:\new\file.txt|file.txt|3`, "MESSAGE_SAVED|SUCCESS"},
		{`SAVE_MESSAGE|1|2|1|\\host\share`, "MESSAGE_SAVED|SUCCESS"},
	}
	for _, st := range steps {
		if got := alice.roundTrip(st.line); got != st.want {
			t.Fatalf("%s -> %s, want %s", st.line, got, st.want)
		}
	}

	resp := alice.roundTrip("GET_MESSAGES|1|2")
	cmd, fields := protocol.ParseResponse(resp)
	if cmd != protocol.RespMessageList || fields[0] != "2" {
		t.Fatalf("history = %s", resp)
	}
	if fields[5] != `C:\new\file.txt` || fields[6] != "file.txt" || fields[13] != `\\host\share` {
		t.Errorf("history = %q", fields)
	}
}

func TestUnauthenticatedSessionRejected(t *testing.T) {
	srv, _ := setupTestServer(t, testConfig())
	c, _ := connect(t, srv)

	if got := c.roundTrip("GET_FRIENDS|1"); got != "FRIEND_LIST_FAIL|未登录" {
		t.Errorf("got %s", got)
	}
	if got := c.roundTrip("PING"); got != "PONG" {
		t.Errorf("got %s", got)
	}
}

func TestMalformedLineAnswered(t *testing.T) {
	srv, _ := setupTestServer(t, testConfig())
	c, _ := connect(t, srv)

	for _, line := range []string{"HELLO", "LOGIN|only-one", "GET_FRIENDS|abc"} {
		if got := c.roundTrip(line); got != "ERROR|BAD_REQUEST" {
			t.Errorf("%s -> %s", line, got)
		}
	}
	if got := c.roundTrip("PING"); got != "PONG" {
		t.Errorf("session did not continue: %s", got)
	}
}

func TestMalformedLineSilentlyDropped(t *testing.T) {
	cfg := testConfig()
	cfg.ReplyMalformed = false
	srv, _ := setupTestServer(t, cfg)
	c, _ := connect(t, srv)

	c.send("HELLO|world")
	c.send("")
	c.send("PING")
	got, err := c.read()
	if err != nil || got != "PONG" {
		t.Fatalf("got %q, %v; want the valid line's answer only", got, err)
	}
}

func TestPartialLineWaitsForNewline(t *testing.T) {
	srv, _ := setupTestServer(t, testConfig())
	c, _ := connect(t, srv)

	if _, err := c.conn.Write([]byte("PI")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.conn.Write([]byte("NG\r\nPING\n")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if got, err := c.read(); err != nil || got != "PONG" {
			t.Fatalf("response %d = %q, %v", i, got, err)
		}
	}
}

func TestLineTooLongClosesSession(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLineBytes = 64
	srv, _ := setupTestServer(t, cfg)
	c, done := connect(t, srv)

	go func() { _, _ = c.conn.Write([]byte(strings.Repeat("x", 256))) }()

	if _, err := c.read(); err == nil {
		t.Fatal("expected connection to be closed")
	}
	waitClosed(t, done)
}

func TestIdleTimeoutClosesSession(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	srv, _ := setupTestServer(t, cfg)
	_, done := connect(t, srv)

	waitClosed(t, done)
	if st := srv.Stats(); st.Live != 0 {
		t.Errorf("live = %d after idle close", st.Live)
	}
}

func TestDisconnectMarksOffline(t *testing.T) {
	srv, store := setupTestServer(t, testConfig())
	c, done := connect(t, srv)

	c.roundTrip("REGISTER|alice|pw|Alice")
	c.roundTrip("LOGIN|alice|pw")
	_ = c.conn.Close()
	waitClosed(t, done)

	u, err := store.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if u.Online() {
		t.Error("user still online after disconnect")
	}
}

func TestUserStaysOnlineWhileAnotherSessionLives(t *testing.T) {
	srv, store := setupTestServer(t, testConfig())
	first, firstDone := connect(t, srv)
	second, secondDone := connect(t, srv)

	first.roundTrip("REGISTER|alice|pw|Alice")
	for _, c := range []*testClient{first, second} {
		if got := c.roundTrip("LOGIN|alice|pw"); !strings.HasPrefix(got, protocol.RespLoginSuccess) {
			t.Fatalf("login = %s", got)
		}
	}

	online := func() bool {
		t.Helper()
		u, err := store.GetByID(context.Background(), 1)
		if err != nil {
			t.Fatal(err)
		}
		return u.Online()
	}

	_ = first.conn.Close()
	waitClosed(t, firstDone)
	if !online() {
		t.Fatal("user marked offline while another session is still logged in")
	}

	_ = second.conn.Close()
	waitClosed(t, secondDone)
	if online() {
		t.Error("user still online after last session ended")
	}
}

type panicHandler struct{}

func (panicHandler) Dispatch(context.Context, service.Principal, protocol.Request) protocol.Response {
	panic("boom")
}

func (panicHandler) MarkOffline(context.Context, uint) error { return nil }

func TestPanicTearsDownSession(t *testing.T) {
	srv := New(testConfig(), panicHandler{}, nil)
	defer srv.Shutdown(context.Background())
	c, done := connect(t, srv)

	c.send("PING")
	if _, err := c.read(); err == nil {
		t.Fatal("expected session to close after panic")
	}
	waitClosed(t, done)
	if st := srv.Stats(); st.Live != 0 {
		t.Errorf("live = %d after panic", st.Live)
	}
}

func TestShutdownClosesLiveSessions(t *testing.T) {
	srv, _ := setupTestServer(t, testConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	const n = 3
	var clients []*testClient
	for i := 0; i < n; i++ {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = conn.Close() })
		c := &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
		if got := c.roundTrip("PING"); got != "PONG" {
			t.Fatalf("ping: %s", got)
		}
		clients = append(clients, c)
	}

	if st := srv.Stats(); st.Live != n || st.Accepted != n {
		t.Fatalf("stats before shutdown = %+v", st)
	}
	if srv.Addr() == nil {
		t.Error("Addr() = nil while serving")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *testClient) {
			defer wg.Done()
			if _, err := c.read(); err == nil {
				t.Error("client still connected after shutdown")
			}
		}(c)
	}
	wg.Wait()

	if st := srv.Stats(); st.Live != 0 || len(srv.Sessions()) != 0 {
		t.Errorf("registry not cleared: %+v", st)
	}
	select {
	case err := <-serveErr:
		if err != ErrServerClosed {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	if _, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second); err == nil {
		t.Error("listener still accepting after shutdown")
	}
}

func TestConcurrentSessionsIndependent(t *testing.T) {
	srv, _ := setupTestServer(t, testConfig())

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		c, _ := connect(t, srv)
		wg.Add(1)
		go func(i int, c *testClient) {
			defer wg.Done()
			name := string(rune('a' + i))
			c.send("REGISTER|" + name + "|pw|" + name)
			if got, err := c.read(); err != nil || got != "REGISTER_SUCCESS" {
				t.Errorf("register %s: %q, %v", name, got, err)
				return
			}
			c.send("LOGIN|" + name + "|pw")
			if got, err := c.read(); err != nil || !strings.HasPrefix(got, "LOGIN_SUCCESS|") {
				t.Errorf("login %s: %q, %v", name, got, err)
			}
		}(i, c)
	}
	wg.Wait()

	if st := srv.Stats(); st.Authenticated != n {
		t.Errorf("authenticated = %d, want %d", st.Authenticated, n)
	}
}
