package report

import (
	"errors"
	"fmt"
	"strings"

	"BrowserPerfTraceKit/internal/perftrace"
)

// NoCallTreePlaceholder 事件没有可追踪的调用树时的固定占位文本
const NoCallTreePlaceholder = "No call tree could be constructed for this event."

// ErrUnknownInsight 洞察名称在本次录制中不存在
var ErrUnknownInsight = errors.New("unknown insight")

// Dispatcher 报表分发器。把已解析的录制、窗口或事件交给格式化层，
// 返回纯文本；自身不做任何状态管理。
type Dispatcher struct{}

// NewDispatcher 创建报表分发器
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// MainThreadSummary 主线程轨道概要，窗口必须已由边界解析器收敛
func (d *Dispatcher) MainThreadSummary(record *perftrace.RecordedTrace, bounds perftrace.Bounds) string {
	return formatMainThreadTrack(record.Parsed, bounds)
}

// NetworkSummary 网络轨道概要
func (d *Dispatcher) NetworkSummary(record *perftrace.RecordedTrace, bounds perftrace.Bounds) string {
	return formatNetworkTrack(record.Parsed, bounds)
}

// CallTree 事件的详细调用树。事件没有可追踪的调用树时
// 返回固定占位文本而不是报错。
func (d *Dispatcher) CallTree(record *perftrace.RecordedTrace, event *perftrace.TraceEvent) string {
	tree, ok := formatCallTree(record.Parsed, event)
	if !ok {
		return NoCallTreePlaceholder
	}
	return tree
}

// SerializeEvent 单个事件的文本序列化
func (d *Dispatcher) SerializeEvent(record *perftrace.RecordedTrace, key string, event *perftrace.TraceEvent) string {
	return formatEvent(key, event)
}

// InsightText 按名称渲染洞察文本
func (d *Dispatcher) InsightText(record *perftrace.RecordedTrace, name string) (string, error) {
	ins := record.Insights.Find(name)
	if ins == nil {
		available := strings.Join(record.Insights.Names(), ", ")
		return "", fmt.Errorf("%w: %q (available: %s)", ErrUnknownInsight, name, available)
	}
	return formatInsight(ins), nil
}

// Overview 停止录制后一次性输出的高层概要（指标+洞察一览）
func (d *Dispatcher) Overview(record *perftrace.RecordedTrace) string {
	return formatOverview(record)
}
