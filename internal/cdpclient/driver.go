package cdpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DriverConfig 驱动行为配置
type DriverConfig struct {
	// QuietWindow 网络静默判定窗口：这段时间内没有任何网络事件即认为静默
	QuietWindow time.Duration
	// QuiescenceTimeout 等待静默的总时长上限，到达后按尽力而为返回
	QuiescenceTimeout time.Duration
	// LoadTimeout 等待页面load事件的上限
	LoadTimeout time.Duration
}

// DefaultDriverConfig 返回默认驱动配置
func DefaultDriverConfig() *DriverConfig {
	return &DriverConfig{
		QuietWindow:       500 * time.Millisecond,
		QuiescenceTimeout: 5 * time.Second,
		LoadTimeout:       30 * time.Second,
	}
}

// Driver 基于DevTools协议的页面驱动，实现会话控制器的PageDriver接口
type Driver struct {
	client *Client
	config *DriverConfig

	// 事件等待与跟踪数据收集
	mu          sync.Mutex
	loadWaiters []chan struct{}
	armedLoad   chan struct{}
	activityCh  chan struct{}
	collecting  bool
	collected   []json.RawMessage
	completeCh  chan struct{}
}

// NewDriver 创建页面驱动并挂接事件处理，必须在client.Connect之前调用
func NewDriver(client *Client, config *DriverConfig) *Driver {
	if config == nil {
		config = DefaultDriverConfig()
	}
	d := &Driver{
		client:     client,
		config:     config,
		activityCh: make(chan struct{}, 1),
	}
	client.SetEventHandler(d.handleEvent)
	return d
}

// Prepare 启用依赖的协议域，连接建立后调用一次
func (d *Driver) Prepare(ctx context.Context) error {
	if err := d.client.Call(ctx, "Page.enable", nil, nil); err != nil {
		return fmt.Errorf("enable Page domain failed: %w", err)
	}
	if err := d.client.Call(ctx, "Network.enable", nil, nil); err != nil {
		return fmt.Errorf("enable Network domain failed: %w", err)
	}
	return nil
}

// navigationHistory Page.getNavigationHistory的结果
type navigationHistory struct {
	CurrentIndex int `json:"currentIndex"`
	Entries      []struct {
		URL string `json:"url"`
	} `json:"entries"`
}

// CurrentURL 页面当前地址
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var history navigationHistory
	if err := d.client.Call(ctx, "Page.getNavigationHistory", nil, &history); err != nil {
		return "", err
	}
	if history.CurrentIndex < 0 || history.CurrentIndex >= len(history.Entries) {
		return "", fmt.Errorf("navigation history has no current entry")
	}
	return history.Entries[history.CurrentIndex].URL, nil
}

// Navigate 导航到指定地址。load等待者在发出导航之前布好：
// loadEventFired可能在导航响应和WaitForLoad注册之间到达，
// 晚注册会把快速加载误判成超时。
func (d *Driver) Navigate(ctx context.Context, url string) error {
	waiter := make(chan struct{})
	d.mu.Lock()
	d.loadWaiters = append(d.loadWaiters, waiter)
	d.armedLoad = waiter
	d.mu.Unlock()

	params := map[string]string{"url": url}
	var result struct {
		ErrorText string `json:"errorText,omitempty"`
	}
	if err := d.client.Call(ctx, "Page.navigate", params, &result); err != nil {
		d.disarmLoad()
		return err
	}
	if result.ErrorText != "" {
		d.disarmLoad()
		return fmt.Errorf("navigate to %s failed: %s", url, result.ErrorText)
	}
	return nil
}

// disarmLoad 导航失败时撤销预布的load等待者
func (d *Driver) disarmLoad() {
	d.mu.Lock()
	d.armedLoad = nil
	d.mu.Unlock()
}

// WaitForLoad 等待页面load事件。优先消费Navigate预布的等待者，
// 事件已经到达时立即返回。
func (d *Driver) WaitForLoad(ctx context.Context) error {
	d.mu.Lock()
	waiter := d.armedLoad
	d.armedLoad = nil
	if waiter == nil {
		waiter = make(chan struct{})
		d.loadWaiters = append(d.loadWaiters, waiter)
	}
	d.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-time.After(d.config.LoadTimeout):
		return fmt.Errorf("page load timed out after %v", d.config.LoadTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForQuiescence 等待网络静默：连续QuietWindow内没有网络事件即认为静默。
// 到达总上限时按尽力而为返回nil，清场是尽量而不是必须。
func (d *Driver) WaitForQuiescence(ctx context.Context) error {
	deadline := time.After(d.config.QuiescenceTimeout)
	quiet := time.NewTimer(d.config.QuietWindow)
	defer quiet.Stop()

	for {
		select {
		case <-quiet.C:
			return nil
		case <-d.activityCh:
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(d.config.QuietWindow)
		case <-deadline:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StartTracing 启用低层捕获，类别列表必须与解析引擎保持同步
func (d *Driver) StartTracing(ctx context.Context, categories []string) error {
	d.mu.Lock()
	d.collecting = true
	d.collected = nil
	d.completeCh = make(chan struct{})
	d.mu.Unlock()

	params := map[string]string{
		"categories":   strings.Join(categories, ","),
		"transferMode": "ReportEvents",
	}
	return d.client.Call(ctx, "Tracing.start", params, nil)
}

// StopTracing 停止捕获并取回完整的原始跟踪负载（JSON事件数组）
func (d *Driver) StopTracing(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	completeCh := d.completeCh
	d.mu.Unlock()
	if completeCh == nil {
		return nil, fmt.Errorf("tracing was not started")
	}

	if err := d.client.Call(ctx, "Tracing.end", nil, nil); err != nil {
		return nil, err
	}

	// Tracing.end之后数据通过dataCollected事件分批到达，tracingComplete收尾
	select {
	case <-completeCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.client.stopChan:
		return nil, ErrClosed
	}

	d.mu.Lock()
	events := d.collected
	d.collecting = false
	d.collected = nil
	d.completeCh = nil
	d.mu.Unlock()

	return json.Marshal(events)
}

// handleEvent DevTools事件分发
func (d *Driver) handleEvent(method string, params json.RawMessage) {
	switch method {
	case "Page.loadEventFired":
		d.mu.Lock()
		waiters := d.loadWaiters
		d.loadWaiters = nil
		d.mu.Unlock()
		for _, w := range waiters {
			close(w)
		}

	case "Network.requestWillBeSent", "Network.responseReceived",
		"Network.loadingFinished", "Network.loadingFailed":
		select {
		case d.activityCh <- struct{}{}:
		default:
		}

	case "Tracing.dataCollected":
		var chunk struct {
			Value []json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(params, &chunk); err != nil {
			return
		}
		d.mu.Lock()
		if d.collecting {
			d.collected = append(d.collected, chunk.Value...)
		}
		d.mu.Unlock()

	case "Tracing.tracingComplete":
		d.mu.Lock()
		completeCh := d.completeCh
		d.mu.Unlock()
		if completeCh != nil {
			select {
			case <-completeCh:
			default:
				close(completeCh)
			}
		}
	}
}
