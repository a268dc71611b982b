package perfsession

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"BrowserPerfTraceKit/internal/perftrace"
)

// SessionState 会话状态
type SessionState int32

const (
	StateIdle      SessionState = iota // 空闲，可开始录制
	StateRecording                     // 录制中
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	default:
		return "UNKNOWN"
	}
}

// 调用方可见的固定响应文案
const (
	MsgAlreadyRunning  = "A trace recording is already in progress. Stop it before starting a new one."
	MsgNoTraceRecorded = "No trace has been recorded yet. Start and stop a recording first."
	MsgStopFailure     = "Unexpectedly failed to stop the trace recording."
)

// PageDriver 浏览器自动化驱动协作接口。导航和捕获的具体实现在驱动侧。
type PageDriver interface {
	CurrentURL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	WaitForQuiescence(ctx context.Context) error
	WaitForLoad(ctx context.Context) error
	StartTracing(ctx context.Context, categories []string) error
	StopTracing(ctx context.Context) ([]byte, error)
}

// TraceEngine 跟踪解析引擎协作接口
type TraceEngine interface {
	Parse(raw []byte) (*perftrace.ParsedTrace, error)
}

// InsightDeriver 洞察派生协作接口
type InsightDeriver interface {
	Derive(trace *perftrace.ParsedTrace) *perftrace.InsightSet
}

// Formatter 文本格式化协作接口，report.Dispatcher实现之
type Formatter interface {
	MainThreadSummary(record *perftrace.RecordedTrace, bounds perftrace.Bounds) string
	NetworkSummary(record *perftrace.RecordedTrace, bounds perftrace.Bounds) string
	CallTree(record *perftrace.RecordedTrace, event *perftrace.TraceEvent) string
	SerializeEvent(record *perftrace.RecordedTrace, key string, event *perftrace.TraceEvent) string
	InsightText(record *perftrace.RecordedTrace, name string) (string, error)
	Overview(record *perftrace.RecordedTrace) string
}

// TraceArchiver 录制归档协作接口（可选），归档失败不影响会话
type TraceArchiver interface {
	SaveTrace(ctx context.Context, record *perftrace.RecordedTrace) error
}

// Controller 跟踪会话控制器：顶层状态机，持有录制历史，
// 把查询委派给边界/事件解析器和报表分发器。
type Controller struct {
	driver    PageDriver
	engine    TraceEngine
	deriver   InsightDeriver
	formatter Formatter
	archiver  TraceArchiver

	history *perftrace.History

	// 状态标志。在任何挂起步骤之前置位，作为并发start的提交点。
	state atomic.Int32

	// 生命周期操作串行化；查询只读不需要
	lifecycleMu sync.Mutex

	targetPageURL string

	categories    []string
	autoStopDelay time.Duration
	blankURL      string
}

// ControllerOption 控制器选项
type ControllerOption func(*Controller)

// WithCategories 覆盖跟踪类别允许列表
func WithCategories(categories []string) ControllerOption {
	return func(c *Controller) {
		c.categories = categories
	}
}

// WithAutoStopDelay 覆盖autoStop的固定延迟
func WithAutoStopDelay(delay time.Duration) ControllerOption {
	return func(c *Controller) {
		c.autoStopDelay = delay
	}
}

// WithBlankURL 覆盖reload使用的空白页地址
func WithBlankURL(url string) ControllerOption {
	return func(c *Controller) {
		c.blankURL = url
	}
}

// WithArchiver 启用录制归档
func WithArchiver(archiver TraceArchiver) ControllerOption {
	return func(c *Controller) {
		c.archiver = archiver
	}
}

// NewController 创建会话控制器
func NewController(driver PageDriver, engine TraceEngine, deriver InsightDeriver, formatter Formatter, opts ...ControllerOption) *Controller {
	c := &Controller{
		driver:        driver,
		engine:        engine,
		deriver:       deriver,
		formatter:     formatter,
		history:       perftrace.NewHistory(),
		autoStopDelay: 5 * time.Second,
		blankURL:      "about:blank",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State 当前会话状态
func (c *Controller) State() SessionState {
	return SessionState(c.state.Load())
}

// History 录制历史（只读使用）
func (c *Controller) History() *perftrace.History {
	return c.history
}

// Start 开始录制。reload先把页面导航到空白页等待网络静默，
// 启用捕获后再导航回原地址，保证跟踪窗口不含之前页面的残留活动。
// autoStop则在固定延迟后自动执行停止序列并返回其输出。
func (c *Controller) Start(ctx context.Context, reload, autoStop bool) *Response {
	resp := NewResponse()

	// 提交点：置位在任何挂起步骤之前，第二个start在此被拒绝
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRecording)) {
		resp.AppendLine(MsgAlreadyRunning)
		return resp
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	pageURL, err := c.driver.CurrentURL(ctx)
	if err != nil {
		c.state.Store(int32(StateIdle))
		log.Printf("❌ 读取页面地址失败: %v", err)
		resp.AppendLine("Failed to start the trace recording.")
		resp.AppendLine(err.Error())
		return resp
	}
	c.targetPageURL = pageURL

	if reload {
		// 捕获启用前先清场，排除上一个页面的残留活动
		if err := c.driver.Navigate(ctx, c.blankURL); err != nil {
			return c.failStart(resp, err)
		}
		if err := c.driver.WaitForQuiescence(ctx); err != nil {
			return c.failStart(resp, err)
		}
	}

	categories := c.categories
	if len(categories) == 0 {
		categories = defaultCategories()
	}
	if err := c.driver.StartTracing(ctx, categories); err != nil {
		return c.failStart(resp, err)
	}

	if reload {
		// 捕获已经启用：这里的失败必须先关闭捕获再复位，
		// 否则浏览器停留在录制状态，后续start全部被协议层拒绝
		if err := c.driver.Navigate(ctx, c.targetPageURL); err != nil {
			return c.abortStart(ctx, resp, err)
		}
		if err := c.driver.WaitForLoad(ctx); err != nil {
			return c.abortStart(ctx, resp, err)
		}
	}

	if autoStop {
		// 在调用方的执行上下文上挂起固定延迟，然后自动停止
		select {
		case <-time.After(c.autoStopDelay):
		case <-ctx.Done():
		}
		stopResp := c.stopSequence(ctx)
		resp.Merge(stopResp)
		return resp
	}

	resp.AppendLine("Tracing started for %s. Call stop to finish the recording.", c.targetPageURL)
	return resp
}

// Stop 停止录制。空闲时是真正的no-op（不输出、不报错）；
// 无论成功、解析失败还是驱动异常，状态都回到空闲。
func (c *Controller) Stop(ctx context.Context) *Response {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	return c.stopSequence(ctx)
}

// stopSequence 停止序列，调用方必须持有lifecycleMu
func (c *Controller) stopSequence(ctx context.Context) *Response {
	resp := NewResponse()

	if SessionState(c.state.Load()) != StateRecording {
		return resp
	}
	// 状态复位是唯一有保证的清理点，必须覆盖所有退出路径
	defer c.state.Store(int32(StateIdle))

	raw, err := c.driver.StopTracing(ctx)
	if err != nil {
		// 意外驱动失败：内部记录细节，对调用方只给概要加错误文本
		log.Printf("❌ 停止录制时驱动异常: %v", err)
		resp.AppendLine(MsgStopFailure)
		resp.AppendLine(err.Error())
		return resp
	}

	parsed, err := c.engine.Parse(raw)
	if err != nil {
		resp.AppendLine("The recorded trace could not be parsed: %v", err)
		return resp
	}

	record := &perftrace.RecordedTrace{
		Generation: c.history.NextGeneration(),
		TargetURL:  c.targetPageURL,
		RecordedAt: time.Now(),
		Parsed:     parsed,
		Insights:   c.deriver.Derive(parsed),
	}
	// 记录完整构建后才插入，读方不会看到半成品
	c.history.Append(record)

	if c.archiver != nil {
		if err := c.archiver.SaveTrace(ctx, record); err != nil {
			log.Printf("⚠️  录制归档失败（不影响会话）: %v", err)
		}
	}

	resp.AppendLine("Recording stopped. Trace #%d captured.", record.Generation)
	resp.AppendBlock(c.formatter.Overview(record))
	return resp
}

// abortStart 捕获启用之后的启动失败路径：尽力停掉捕获（丢弃负载），
// 保证启用/停用成对出现，然后走公共失败路径
func (c *Controller) abortStart(ctx context.Context, resp *Response, err error) *Response {
	if _, stopErr := c.driver.StopTracing(ctx); stopErr != nil {
		log.Printf("⚠️  启动失败后停用捕获失败: %v", stopErr)
	}
	return c.failStart(resp, err)
}

// failStart 启动失败的公共路径：复位状态并输出失败行
func (c *Controller) failStart(resp *Response, err error) *Response {
	c.state.Store(int32(StateIdle))
	log.Printf("❌ 启动录制失败: %v", err)
	resp.AppendLine("Failed to start the trace recording.")
	resp.AppendLine(err.Error())
	return resp
}
