package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"lanchat/internal/protocol"
)

// -------------------- 本地资源监控 --------------------

type SystemStats struct {
	Timestamp   time.Time
	MemoryUsage float64
	MemoryTotal uint64
	MemoryUsed  uint64
	Goroutines  int
}

type Monitor struct {
	mu       sync.Mutex
	stats    []SystemStats
	interval time.Duration
	stopChan chan struct{}
}

func NewMonitor(interval time.Duration) *Monitor {
	return &Monitor{
		stats:    make([]SystemStats, 0, 512),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (m *Monitor) collectStats() SystemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := SystemStats{
		Timestamp:   time.Now(),
		MemoryTotal: ms.Sys,
		MemoryUsed:  ms.Alloc,
		Goroutines:  runtime.NumGoroutine(),
	}
	if s.MemoryTotal > 0 {
		s.MemoryUsage = float64(s.MemoryUsed) / float64(s.MemoryTotal) * 100
	}
	m.mu.Lock()
	m.stats = append(m.stats, s)
	m.mu.Unlock()
	return s
}

func (m *Monitor) Start() {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s := m.collectStats()
				fmt.Printf("[%s] 内存: %.1f%% (%.1fMB/%.1fMB) | Goroutines: %d\n",
					s.Timestamp.Format("15:04:05"), s.MemoryUsage,
					float64(s.MemoryUsed)/1024/1024, float64(s.MemoryTotal)/1024/1024,
					s.Goroutines,
				)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *Monitor) Stop() { close(m.stopChan) }

func (m *Monitor) SaveToFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	w := bufio.NewWriter(f)
	_, _ = w.WriteString("Timestamp,MemoryUsage,MemoryTotal,MemoryUsed,Goroutines\n")
	for _, s := range m.stats {
		fmt.Fprintf(w, "%s,%.2f,%d,%d,%d\n",
			s.Timestamp.Format("2006-01-02 15:04:05"), s.MemoryUsage,
			s.MemoryTotal, s.MemoryUsed, s.Goroutines,
		)
	}
	return w.Flush()
}

// -------------------- 延迟统计 --------------------

type LatencyStats struct {
	mu        sync.Mutex
	byCommand map[string][]time.Duration
	failures  map[string]int
}

func NewLatencyStats() *LatencyStats {
	return &LatencyStats{
		byCommand: make(map[string][]time.Duration),
		failures:  make(map[string]int),
	}
}

func (s *LatencyStats) Add(cmd string, ok bool, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.failures[cmd]++
		return
	}
	s.byCommand[cmd] = append(s.byCommand[cmd], latency)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)-1) * p)
	return sorted[i]
}

func (s *LatencyStats) Report(took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmds := make([]string, 0, len(s.byCommand))
	for cmd := range s.byCommand {
		cmds = append(cmds, cmd)
	}
	for cmd := range s.failures {
		if _, ok := s.byCommand[cmd]; !ok {
			cmds = append(cmds, cmd)
		}
	}
	sort.Strings(cmds)

	total := 0
	fmt.Println("\n=== 压测结果 ===")
	fmt.Printf("耗时: %v\n", took)
	fmt.Printf("%-14s %8s %6s %10s %10s %10s %10s\n", "命令", "成功", "失败", "p50", "p90", "p99", "max")
	for _, cmd := range cmds {
		lat := s.byCommand[cmd]
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		total += len(lat)
		var slowest time.Duration
		if len(lat) > 0 {
			slowest = lat[len(lat)-1]
		}
		fmt.Printf("%-14s %8d %6d %10v %10v %10v %10v\n", cmd, len(lat), s.failures[cmd],
			percentile(lat, 0.5), percentile(lat, 0.9), percentile(lat, 0.99), slowest)
	}
	if took > 0 {
		fmt.Printf("QPS: %.2f\n", float64(total)/took.Seconds())
	}
}

// -------------------- 协议客户端 --------------------

type client struct {
	conn net.Conn
	r    *bufio.Reader
	id   uint
}

func dial(addr string) (*client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &client{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *client) call(req protocol.Request) (string, []string, error) {
	_ = c.conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := c.conn.Write([]byte(protocol.EncodeRequest(req) + "\n")); err != nil {
		return "", nil, err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", nil, err
	}
	cmd, fields := protocol.ParseResponse(line)
	return cmd, fields, nil
}

// signup 注册并登录一个压测用户
func (c *client) signup(name string) error {
	if cmd, fields, err := c.call(&protocol.RegisterRequest{Username: name, Password: "bench", Nickname: name}); err != nil {
		return err
	} else if cmd != protocol.RespRegisterSuccess {
		return fmt.Errorf("注册失败: %s %v", cmd, fields)
	}
	cmd, fields, err := c.call(&protocol.LoginRequest{Username: name, Password: "bench"})
	if err != nil {
		return err
	}
	if cmd != protocol.RespLoginSuccess || len(fields) == 0 {
		return fmt.Errorf("登录失败: %s %v", cmd, fields)
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return err
	}
	c.id = uint(id)
	return nil
}

func runWorker(addr, prefix string, n, requests int, stats *LatencyStats, peers chan uint) {
	c, err := dial(addr)
	if err != nil {
		stats.Add("CONNECT", false, 0)
		return
	}
	defer c.conn.Close()

	if err := c.signup(fmt.Sprintf("%s_%d", prefix, n)); err != nil {
		fmt.Println("worker", n, err)
		stats.Add(protocol.CmdLogin, false, 0)
		return
	}

	// 和前一个 worker 互发消息；第一个 worker 发给自己
	peer := c.id
	select {
	case p := <-peers:
		peer = p
	default:
	}
	select {
	case peers <- c.id:
	default:
	}

	for i := 0; i < requests; i++ {
		var req protocol.Request
		switch i % 4 {
		case 0:
			req = &protocol.PingRequest{}
		case 1:
			req = &protocol.SaveMessageRequest{
				SenderID: c.id, ReceiverID: peer, ContentType: 1,
				Content: fmt.Sprintf("bench %d|%d", n, i),
			}
		case 2:
			req = &protocol.GetMessagesRequest{UserID: c.id, PeerID: peer, Limit: 20}
		default:
			req = &protocol.GetUnreadRequest{UserID: c.id, PeerID: peer}
		}

		start := time.Now()
		cmd, fields, err := c.call(req)
		ok := err == nil && !strings.HasSuffix(cmd, "_FAIL") && !(len(fields) > 0 && fields[0] == "FAIL")
		stats.Add(req.Command(), ok, time.Since(start))
		if err != nil {
			return
		}
	}
	_, _, _ = c.call(&protocol.LogoutRequest{UserID: c.id})
}

// fetchServerStats 读取管理接口的连接统计，未启用时忽略
func fetchServerStats(base string) {
	if base == "" {
		return
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(base, "/") + "/api/stats")
	if err != nil {
		fmt.Println("读取服务器统计失败:", err)
		return
	}
	defer resp.Body.Close()

	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Println("解析服务器统计失败:", err)
		return
	}
	fmt.Printf("服务器统计: %s\n", body.Data)
}

// -------------------- 入口 --------------------

func main() {
	addr := flag.String("addr", "localhost:1967", "聊天服务器地址")
	admin := flag.String("admin", "", "管理接口地址，例如 http://localhost:8080")
	concurrency := flag.Int("c", 20, "并发连接数")
	requests := flag.Int("n", 100, "每个连接的请求数")
	csv := flag.String("csv", "", "监控数据输出文件")
	flag.Parse()

	prefix := fmt.Sprintf("bench%d", time.Now().Unix())

	fmt.Println("=== 聊天服务器并发测试 ===")
	fmt.Printf("开始时间: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Printf("目标: %s 并发: %d 每连接请求: %d\n", *addr, *concurrency, *requests)

	mon := NewMonitor(time.Second)
	mon.Start()

	stats := NewLatencyStats()
	peers := make(chan uint, 1)
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runWorker(*addr, prefix, n, *requests, stats, peers)
		}(i)
	}
	wg.Wait()
	took := time.Since(start)
	mon.Stop()

	stats.Report(took)
	fetchServerStats(*admin)

	if *csv != "" {
		if err := mon.SaveToFile(*csv); err != nil {
			fmt.Println("保存监控数据失败:", err)
		} else {
			fmt.Println("监控数据已保存:", *csv)
		}
	}
	fmt.Println("\n=== 测试完成 ===")
}
