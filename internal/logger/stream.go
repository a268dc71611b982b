package logger

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LogMessage 录制生命周期日志消息
type LogMessage struct {
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	Module     string    `json:"module"`
	Generation *int64    `json:"generation,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogStream 通过WebSocket向观察端广播录制生命周期日志
type LogStream struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan LogMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewLogStream 创建日志广播器
func NewLogStream() *LogStream {
	return &LogStream{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan LogMessage, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run 广播循环，在独立goroutine中运行
func (ls *LogStream) Run() {
	for {
		select {
		case client := <-ls.register:
			ls.mu.Lock()
			ls.clients[client] = true
			count := len(ls.clients)
			ls.mu.Unlock()
			log.Printf("日志流客户端已连接，当前连接数: %d", count)

		case client := <-ls.unregister:
			ls.mu.Lock()
			if _, ok := ls.clients[client]; ok {
				delete(ls.clients, client)
				client.Close()
			}
			count := len(ls.clients)
			ls.mu.Unlock()
			log.Printf("日志流客户端已断开，当前连接数: %d", count)

		case message := <-ls.broadcast:
			ls.mu.Lock()
			for client := range ls.clients {
				if err := client.WriteJSON(message); err != nil {
					log.Printf("发送日志消息失败: %v", err)
					delete(ls.clients, client)
					client.Close()
				}
			}
			ls.mu.Unlock()
		}
	}
}

// emit 输出到控制台并尝试广播，通道满时丢弃避免阻塞
func (ls *LogStream) emit(level, module, message string, generation *int64) {
	msg := LogMessage{
		Level:      level,
		Message:    message,
		Module:     module,
		Generation: generation,
		Timestamp:  time.Now(),
	}

	if generation != nil {
		log.Printf("[%s] [Trace-%d] %s: %s", level, *generation, module, message)
	} else {
		log.Printf("[%s] %s: %s", level, module, message)
	}

	select {
	case ls.broadcast <- msg:
	default:
	}
}

// Info 信息级日志
func (ls *LogStream) Info(module, message string, generation *int64) {
	ls.emit("INFO", module, message, generation)
}

// Error 错误级日志
func (ls *LogStream) Error(module, message string, generation *int64) {
	ls.emit("ERROR", module, message, generation)
}

// Warning 警告级日志
func (ls *LogStream) Warning(module, message string, generation *int64) {
	ls.emit("WARNING", module, message, generation)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket 观察端接入点
func (ls *LogStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	ls.register <- conn

	conn.WriteJSON(LogMessage{
		Level:     "INFO",
		Message:   "Connected to trace agent log stream",
		Module:    "logstream",
		Timestamp: time.Now(),
	})

	defer func() {
		ls.unregister <- conn
	}()

	// 读循环只用于感知断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("日志流连接错误: %v", err)
			}
			return
		}
	}
}
