package cdptest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ServerConfig 模拟DevTools端点配置
type ServerConfig struct {
	PageURL     string                   // 初始页面地址
	TraceEvents []map[string]interface{} // Tracing.end后下发的事件
	LoadDelay   time.Duration            // navigate到loadEventFired的延迟
	FailTracing bool                     // Tracing.start返回协议错误
}

// DefaultServerConfig 返回默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		PageURL:   "https://example.com/",
		LoadDelay: 10 * time.Millisecond,
	}
}

// Server 模拟DevTools端点的测试服务器，实现跟踪驱动依赖的最小协议子集
type Server struct {
	config   *ServerConfig
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	mu      sync.Mutex
	pageURL string
	tracing bool
}

// New 创建模拟端点
func New(config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config:  config,
		pageURL: config.PageURL,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start 在随机本地端口启动
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/devtools/page", s.handleWebSocket)
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("模拟DevTools端点退出: %v", err)
		}
	}()
	return nil
}

// URL 端点的WebSocket地址
func (s *Server) URL() string {
	return fmt.Sprintf("ws://%s/devtools/page", s.listener.Addr().String())
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// wsConn 带写锁的连接
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// request 入站协议请求
type request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// handleWebSocket 单连接协议循环
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	for {
		var req request
		if err := raw.ReadJSON(&req); err != nil {
			return
		}
		s.dispatch(conn, &req)
	}
}

// dispatch 按方法名处理请求
func (s *Server) dispatch(conn *wsConn, req *request) {
	reply := func(result interface{}) {
		conn.writeJSON(map[string]interface{}{"id": req.ID, "result": result})
	}
	replyError := func(code int, message string) {
		conn.writeJSON(map[string]interface{}{
			"id":    req.ID,
			"error": map[string]interface{}{"code": code, "message": message},
		})
	}
	emit := func(method string, params interface{}) {
		conn.writeJSON(map[string]interface{}{"method": method, "params": params})
	}

	switch req.Method {
	case "Page.enable", "Network.enable":
		reply(struct{}{})

	case "Page.getNavigationHistory":
		s.mu.Lock()
		url := s.pageURL
		s.mu.Unlock()
		reply(map[string]interface{}{
			"currentIndex": 0,
			"entries":      []map[string]string{{"url": url}},
		})

	case "Page.navigate":
		var params struct {
			URL string `json:"url"`
		}
		json.Unmarshal(req.Params, &params)
		s.mu.Lock()
		s.pageURL = params.URL
		s.mu.Unlock()
		reply(map[string]interface{}{"frameId": "frame-1"})

		// 模拟加载完成
		go func() {
			time.Sleep(s.config.LoadDelay)
			emit("Page.loadEventFired", map[string]interface{}{})
		}()

	case "Tracing.start":
		if s.config.FailTracing {
			replyError(-32000, "Tracing is already started")
			return
		}
		s.mu.Lock()
		s.tracing = true
		s.mu.Unlock()
		reply(struct{}{})

	case "Tracing.end":
		s.mu.Lock()
		wasTracing := s.tracing
		s.tracing = false
		s.mu.Unlock()
		if !wasTracing {
			replyError(-32000, "Tracing is not started")
			return
		}
		reply(struct{}{})

		go func() {
			emit("Tracing.dataCollected", map[string]interface{}{"value": s.config.TraceEvents})
			emit("Tracing.tracingComplete", map[string]interface{}{})
		}()

	default:
		replyError(-32601, fmt.Sprintf("'%s' wasn't found", req.Method))
	}
}
