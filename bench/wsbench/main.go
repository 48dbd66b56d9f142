package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/schollz/progressbar/v3"
)

// Config 压测配置
type Config struct {
	Mode         string        // connect-only, presence, messaging
	Target       string        // WebSocket URL
	Secret       string        // 与服务端 auth.jwt_secret 一致
	Conns        int           // 总连接数
	Duration     time.Duration // 压测持续时间
	Ramp         time.Duration // 爬坡时间
	PingInterval time.Duration
	Rate         int     // 每连接每分钟事件数
	Lat          float64 // 位置中心
	Lng          float64
	Spread       float64 // 位置随机偏移（米）
	Output       string  // text, json
	Verbose      bool
}

// Stats 运行期统计
type Stats struct {
	Attempts    int64
	Connected   int64
	Failed      int64
	Current     int64
	Disconnects int64
	Sent        int64
	Acked       int64
	AckFailed   int64

	mu            sync.Mutex
	connLatencies []time.Duration
	ackLatencies  []time.Duration
	received      map[string]int64
	errors        map[string]int64
	start         time.Time
}

func (s *Stats) addError(key string) {
	if len(key) > 60 {
		key = key[:60]
	}
	s.mu.Lock()
	s.errors[key]++
	s.mu.Unlock()
}

// LatencyStats 毫秒
type LatencyStats struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

// Result 压测结果
type Result struct {
	Mode        string           `json:"mode"`
	Target      string           `json:"target"`
	Attempts    int64            `json:"attempts"`
	Connected   int64            `json:"connected"`
	Failed      int64            `json:"failed"`
	Disconnects int64            `json:"disconnects"`
	ConnLatency LatencyStats     `json:"conn_latency_ms"`
	Sent        int64            `json:"events_sent"`
	Acked       int64            `json:"acks"`
	AckFailed   int64            `json:"acks_failed"`
	AckLatency  LatencyStats     `json:"ack_latency_ms"`
	Received    map[string]int64 `json:"received"`
	Errors      map[string]int64 `json:"errors"`
	Seconds     float64          `json:"seconds"`
}

// client 一个模拟用户
type client struct {
	userID  string
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending sync.Map // 请求ID -> 发送时间
}

type frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (c *client) write(typ, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(frame{Type: typ, ID: id, Data: raw})
}

func main() {
	cfg := parseFlags()
	if cfg.Secret == "" {
		fmt.Fprintln(os.Stderr, "-secret 不能为空")
		os.Exit(2)
	}

	fmt.Println("=== wsbench - roadcast 压测工具 ===")
	fmt.Printf("模式: %s  目标: %s  连接数: %d  持续: %s\n\n", cfg.Mode, cfg.Target, cfg.Conns, cfg.Duration)

	stats := &Stats{
		received: make(map[string]int64),
		errors:   make(map[string]int64),
		start:    time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n收到中断信号，正在关闭...")
		cancel()
	}()

	run(ctx, cfg, stats)

	result := buildResult(cfg, stats)
	if cfg.Output == "json" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	printText(result)
}

func parseFlags() Config {
	cfg := Config{}
	flag.StringVar(&cfg.Mode, "mode", "presence", "压测模式: connect-only, presence, messaging")
	flag.StringVar(&cfg.Target, "target", "ws://localhost:8084/ws", "WebSocket URL")
	flag.StringVar(&cfg.Secret, "secret", os.Getenv("ROADCAST_JWT_SECRET"), "JWT 签名密钥")
	flag.IntVar(&cfg.Conns, "conns", 500, "总连接数")
	flag.DurationVar(&cfg.Duration, "duration", 2*time.Minute, "压测持续时间")
	flag.DurationVar(&cfg.Ramp, "ramp", 30*time.Second, "爬坡时间")
	flag.DurationVar(&cfg.PingInterval, "ping-interval", 30*time.Second, "心跳间隔")
	flag.IntVar(&cfg.Rate, "rate", 12, "每连接每分钟事件数")
	flag.Float64Var(&cfg.Lat, "lat", 40.7128, "位置中心纬度")
	flag.Float64Var(&cfg.Lng, "lng", -74.006, "位置中心经度")
	flag.Float64Var(&cfg.Spread, "spread", 3000, "位置随机偏移（米）")
	flag.StringVar(&cfg.Output, "output", "text", "输出格式: text, json")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "详细输出")
	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg Config, stats *Stats) {
	users := make([]string, cfg.Conns)
	for i := range users {
		users[i] = uuid.NewString()
	}

	perSecond := float64(cfg.Conns) / cfg.Ramp.Seconds()
	if perSecond < 1 {
		perSecond = 1
	}
	bar := progressbar.NewOptions(cfg.Conns,
		progressbar.OptionSetDescription("建立连接"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("conn"),
	)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / perSecond))
	defer ticker.Stop()

	var wg sync.WaitGroup
ramp:
	for i := 0; i < cfg.Conns; i++ {
		select {
		case <-ctx.Done():
			break ramp
		case <-ticker.C:
		}
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			c := dial(ctx, cfg, stats, userID)
			_ = bar.Add(1)
			if c == nil {
				return
			}
			drive(ctx, cfg, stats, c, users)
		}(users[i])
	}
	_ = bar.Finish()
	fmt.Println()

	report := time.NewTicker(10 * time.Second)
	defer report.Stop()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			return
		case <-report.C:
			printProgress(stats)
		}
	}
}

func issueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}).SignedString([]byte(secret))
}

func dial(ctx context.Context, cfg Config, stats *Stats, userID string) *client {
	atomic.AddInt64(&stats.Attempts, 1)

	token, err := issueToken(cfg.Secret, userID, cfg.Duration+time.Hour)
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		stats.addError(err.Error())
		return nil
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	start := time.Now()
	conn, resp, err := dialer.DialContext(ctx, cfg.Target, header)
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		if resp != nil {
			stats.addError(fmt.Sprintf("handshake %d", resp.StatusCode))
		} else {
			stats.addError(err.Error())
		}
		if cfg.Verbose {
			fmt.Printf("用户 %s 连接失败: %v\n", userID, err)
		}
		return nil
	}

	stats.mu.Lock()
	stats.connLatencies = append(stats.connLatencies, time.Since(start))
	stats.mu.Unlock()
	atomic.AddInt64(&stats.Connected, 1)
	atomic.AddInt64(&stats.Current, 1)
	return &client{userID: userID, conn: conn}
}

// drive 注册上线后按模式发送事件，直到 ctx 结束或连接断开
func drive(ctx context.Context, cfg Config, stats *Stats, c *client, users []string) {
	defer func() {
		_ = c.conn.Close()
		atomic.AddInt64(&stats.Current, -1)
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readLoop(c, stats)
	}()

	if err := c.write("register_user", "", c.userID); err != nil {
		stats.addError("register: " + err.Error())
		return
	}

	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	var events <-chan time.Time
	if cfg.Mode != "connect-only" && cfg.Rate > 0 {
		t := time.NewTicker(time.Minute / time.Duration(cfg.Rate))
		defer t.Stop()
		events = t.C
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case <-ping.C:
			seq++
			if err := c.write("ping", fmt.Sprintf("p%d", seq), nil); err != nil {
				stats.addError("ping: " + err.Error())
			}
		case <-events:
			seq++
			id := fmt.Sprintf("%s-%d", c.userID[:8], seq)
			var err error
			switch cfg.Mode {
			case "messaging":
				c.pending.Store(id, time.Now())
				err = c.write("send_message", id, map[string]string{
					"sender":   c.userID,
					"receiver": users[rng.Intn(len(users))],
					"content":  "bench " + id,
				})
			default:
				lat, lng := jitter(rng, cfg.Lat, cfg.Lng, cfg.Spread)
				err = c.write("update_location", id, map[string]any{
					"userId":    c.userID,
					"latitude":  lat,
					"longitude": lng,
				})
			}
			if err != nil {
				stats.addError("send: " + err.Error())
				continue
			}
			atomic.AddInt64(&stats.Sent, 1)
		}
	}
}

func readLoop(c *client, stats *Stats) {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				atomic.AddInt64(&stats.Disconnects, 1)
			}
			return
		}

		stats.mu.Lock()
		stats.received[f.Type]++
		stats.mu.Unlock()

		if f.Type != "ack" {
			continue
		}
		if sentAt, ok := c.pending.LoadAndDelete(f.ID); ok {
			stats.mu.Lock()
			stats.ackLatencies = append(stats.ackLatencies, time.Since(sentAt.(time.Time)))
			stats.mu.Unlock()
		}
		var ack struct {
			Status string `json:"status"`
		}
		if json.Unmarshal(f.Data, &ack) == nil && ack.Status == "success" {
			atomic.AddInt64(&stats.Acked, 1)
		} else {
			atomic.AddInt64(&stats.AckFailed, 1)
		}
	}
}

// jitter 在中心点附近随机取一个位置
func jitter(rng *rand.Rand, lat, lng, meters float64) (float64, float64) {
	const metersPerDegree = 111320.0
	dLat := (rng.Float64()*2 - 1) * meters / metersPerDegree
	dLng := (rng.Float64()*2 - 1) * meters / (metersPerDegree * math.Cos(lat*math.Pi/180))
	return lat + dLat, lng + dLng
}

func printProgress(stats *Stats) {
	fmt.Printf("[%s] 当前连接: %d | 失败: %d | 断开: %d | 发送: %d | 回执: %d/%d\n",
		time.Since(stats.start).Round(time.Second),
		atomic.LoadInt64(&stats.Current),
		atomic.LoadInt64(&stats.Failed),
		atomic.LoadInt64(&stats.Disconnects),
		atomic.LoadInt64(&stats.Sent),
		atomic.LoadInt64(&stats.Acked),
		atomic.LoadInt64(&stats.AckFailed))
}

func buildResult(cfg Config, stats *Stats) Result {
	stats.mu.Lock()
	defer stats.mu.Unlock()
	return Result{
		Mode:        cfg.Mode,
		Target:      cfg.Target,
		Attempts:    atomic.LoadInt64(&stats.Attempts),
		Connected:   atomic.LoadInt64(&stats.Connected),
		Failed:      atomic.LoadInt64(&stats.Failed),
		Disconnects: atomic.LoadInt64(&stats.Disconnects),
		ConnLatency: latencyStats(stats.connLatencies),
		Sent:        atomic.LoadInt64(&stats.Sent),
		Acked:       atomic.LoadInt64(&stats.Acked),
		AckFailed:   atomic.LoadInt64(&stats.AckFailed),
		AckLatency:  latencyStats(stats.ackLatencies),
		Received:    stats.received,
		Errors:      stats.errors,
		Seconds:     time.Since(stats.start).Seconds(),
	}
}

func latencyStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	at := func(p int) time.Duration { return sorted[len(sorted)*p/100] }
	return LatencyStats{
		Min: ms(sorted[0]),
		Avg: ms(sum / time.Duration(len(sorted))),
		P50: ms(at(50)),
		P95: ms(at(95)),
		P99: ms(at(99)),
		Max: ms(sorted[len(sorted)-1]),
	}
}

func printText(r Result) {
	fmt.Println()
	fmt.Println("==================== 压测结果 ====================")
	fmt.Printf("连接: 尝试 %d / 成功 %d / 失败 %d / 断开 %d\n", r.Attempts, r.Connected, r.Failed, r.Disconnects)
	fmt.Printf("连接延迟(ms): min %.2f avg %.2f p50 %.2f p95 %.2f p99 %.2f max %.2f\n",
		r.ConnLatency.Min, r.ConnLatency.Avg, r.ConnLatency.P50, r.ConnLatency.P95, r.ConnLatency.P99, r.ConnLatency.Max)
	fmt.Printf("事件: 发送 %d / 成功回执 %d / 失败回执 %d\n", r.Sent, r.Acked, r.AckFailed)
	if r.Mode == "messaging" {
		fmt.Printf("回执延迟(ms): p50 %.2f p95 %.2f p99 %.2f max %.2f\n",
			r.AckLatency.P50, r.AckLatency.P95, r.AckLatency.P99, r.AckLatency.Max)
	}

	types := make([]string, 0, len(r.Received))
	for t := range r.Received {
		types = append(types, t)
	}
	sort.Strings(types)
	fmt.Println("--- 收到的事件 ---")
	for _, t := range types {
		fmt.Printf("%-22s %d\n", t, r.Received[t])
	}

	if len(r.Errors) > 0 {
		fmt.Println("--- 错误 ---")
		for e, n := range r.Errors {
			fmt.Printf("%s: %d\n", e, n)
		}
	}
	fmt.Printf("--- 运行时间: %.2f 秒 ---\n", r.Seconds)
}
