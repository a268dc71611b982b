package cdpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ClientState 连接状态
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrNotConnected = errors.New("cdp client not connected")
	ErrClosed       = errors.New("cdp client closed")
)

// EventHandler DevTools协议事件处理器
type EventHandler func(method string, params json.RawMessage)

// ClientConfig 客户端配置
type ClientConfig struct {
	URL                  string
	HandshakeTimeout     time.Duration
	CallTimeout          time.Duration
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMaxElapsedTime  time.Duration
}

// DefaultClientConfig 返回默认配置
func DefaultClientConfig(url string) *ClientConfig {
	return &ClientConfig{
		URL:                  url,
		HandshakeTimeout:     10 * time.Second,
		CallTimeout:          30 * time.Second,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		RetryMaxElapsedTime:  30 * time.Second,
	}
}

// cdpMessage DevTools协议消息：带id的是请求/响应，带method无id的是事件
type cdpMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

// cdpRequest 出站请求
type cdpRequest struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// cdpError 协议层错误
type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// Client DevTools协议客户端：请求/响应配对 + 事件分发
type Client struct {
	config *ClientConfig
	dialer *websocket.Dialer
	conn   *websocket.Conn
	state  atomic.Int32

	onEvent EventHandler

	// 同步控制
	mu       sync.RWMutex
	writeMu  sync.Mutex // 专用于WebSocket写入同步
	stopChan chan struct{}

	// 请求ID与在途调用
	nextID  atomic.Int64
	pending map[int64]chan *cdpMessage
}

// New 创建DevTools协议客户端
func New(config *ClientConfig) *Client {
	if config == nil {
		panic("config cannot be nil")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.HandshakeTimeout

	client := &Client{
		config:   config,
		dialer:   &dialer,
		stopChan: make(chan struct{}),
		pending:  make(map[int64]chan *cdpMessage),
	}
	client.state.Store(int32(StateDisconnected))
	return client
}

// SetEventHandler 设置事件处理器，必须在Connect之前调用
func (c *Client) SetEventHandler(handler EventHandler) {
	c.onEvent = handler
}

// State 当前连接状态
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// Connect 拨号连接，按指数退避重试
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return errors.New("client is not in disconnected state")
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = c.config.RetryInitialInterval
	backOff.MaxInterval = c.config.RetryMaxInterval
	backOff.MaxElapsedTime = c.config.RetryMaxElapsedTime

	err := backoff.Retry(func() error {
		return c.doConnect(ctx)
	}, backoff.WithContext(backOff, ctx))
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("连接DevTools端点失败: %w", err)
	}

	c.state.Store(int32(StateConnected))
	go c.readLoop()

	log.Printf("✅ DevTools端点已连接: %s", c.config.URL)
	return nil
}

// doConnect 执行实际的拨号
func (c *Client) doConnect(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Close 关闭连接并让所有在途调用失败
func (c *Client) Close() error {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateClosed)) &&
		!c.state.CompareAndSwap(int32(StateDisconnected), int32(StateClosed)) &&
		!c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed)) {
		return nil // 已经关闭
	}

	close(c.stopChan)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	// 只清除在途登记，不close通道：readLoop可能正在向其中发送，
	// 在途调用由stopChan分支统一收到ErrClosed
	for id := range c.pending {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Call 发送请求并等待配对的响应，result非nil时反序列化到其中
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	id := c.nextID.Add(1)
	replyCh := make(chan *cdpMessage, 1)

	c.mu.Lock()
	c.pending[id] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.writeJSON(&cdpRequest{ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("send %s failed: %w", method, err)
	}

	select {
	case reply := <-replyCh:
		if reply.Error != nil {
			return fmt.Errorf("%s: %w", method, reply.Error)
		}
		if result != nil && len(reply.Result) > 0 {
			if err := json.Unmarshal(reply.Result, result); err != nil {
				return fmt.Errorf("decode %s result failed: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.stopChan:
		return ErrClosed
	}
}

// writeJSON 串行化WebSocket写入
func (c *Client) writeJSON(v interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// readLoop 读循环：响应配对到在途调用，事件交给处理器
func (c *Client) readLoop() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopChan:
			default:
				log.Printf("⚠️  DevTools连接读取失败: %v", err)
				c.state.Store(int32(StateDisconnected))
			}
			return
		}

		var msg cdpMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("⚠️  丢弃无法解析的DevTools消息: %v", err)
			continue
		}

		if msg.ID != 0 {
			c.mu.RLock()
			replyCh := c.pending[msg.ID]
			c.mu.RUnlock()
			if replyCh != nil {
				replyCh <- &msg
			}
			continue
		}

		if msg.Method != "" && c.onEvent != nil {
			c.onEvent(msg.Method, msg.Params)
		}
	}
}
