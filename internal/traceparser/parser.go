package traceparser

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"BrowserPerfTraceKit/internal/perftrace"
)

const (
	// MaxTraceSize 原始跟踪负载大小上限（防止内存攻击）
	MaxTraceSize = 512 * 1024 * 1024 // 512MB
	// LongTaskThresholdUs 长任务阈值（50毫秒）
	LongTaskThresholdUs = 50_000
)

var (
	ErrEmptyPayload   = errors.New("empty trace payload")
	ErrPayloadTooBig  = errors.New("trace payload too large")
	ErrMalformedTrace = errors.New("malformed trace payload")
	ErrNoEvents       = errors.New("trace contains no events")
)

// rawEnvelope Chrome导出的两种外层格式：纯数组或带traceEvents字段的对象
type rawEnvelope struct {
	TraceEvents []json.RawMessage      `json:"traceEvents"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Parser 跟踪解析引擎，将原始字节转为结构化模型并计算概要指标
type Parser struct{}

// NewParser 创建解析引擎
func NewParser() *Parser {
	return &Parser{}
}

// Parse 解析原始跟踪负载
func (p *Parser) Parse(raw []byte) (*perftrace.ParsedTrace, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(raw) > MaxTraceSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooBig, len(raw))
	}

	rawEvents, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	events := make([]*perftrace.TraceEvent, 0, len(rawEvents))
	for i, msg := range rawEvents {
		var event perftrace.TraceEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformedTrace, i, err)
		}
		if event.Name == "" {
			continue
		}
		events = append(events, &event)
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	// 按时间戳稳定排序，元数据事件ts为0排在最前
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Ts < events[j].Ts
	})

	trace := &perftrace.ParsedTrace{
		Events:  events,
		Metrics: &perftrace.TraceMetrics{EventCount: len(events)},
	}

	computeExtent(trace)
	trace.MainThread = findMainThread(events)
	buildTaskTree(trace)
	trace.Requests = rebuildNetworkRequests(events)
	computeMetrics(trace)

	return trace, nil
}

// decodeEnvelope 识别外层格式并取出事件数组
func decodeEnvelope(raw []byte) ([]json.RawMessage, error) {
	var asArray []json.RawMessage
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray, nil
	}

	var envelope rawEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTrace, err)
	}
	if envelope.TraceEvents == nil {
		return nil, fmt.Errorf("%w: missing traceEvents", ErrMalformedTrace)
	}
	return envelope.TraceEvents, nil
}

// computeExtent 计算录制的真实时间区间，忽略ts为0的元数据事件
func computeExtent(trace *perftrace.ParsedTrace) {
	var minTs, maxTs int64
	for _, e := range trace.Events {
		if e.Phase == perftrace.PhaseMetadata || e.Ts == 0 {
			continue
		}
		if minTs == 0 || e.Ts < minTs {
			minTs = e.Ts
		}
		if end := e.EndTs(); end > maxTs {
			maxTs = end
		}
	}
	trace.TraceMin = minTs
	trace.TraceMax = maxTs
}

// findMainThread 通过thread_name元数据事件定位渲染主线程
func findMainThread(events []*perftrace.TraceEvent) *perftrace.ThreadInfo {
	var fallback *perftrace.ThreadInfo
	for _, e := range events {
		if e.Phase != perftrace.PhaseMetadata || e.Name != "thread_name" {
			continue
		}
		name, _ := e.Args["name"].(string)
		info := &perftrace.ThreadInfo{Pid: e.Pid, Tid: e.Tid, Name: name}
		if name == "CrRendererMain" {
			return info
		}
		if fallback == nil {
			fallback = info
		}
	}
	return fallback
}

// computeMetrics 汇总概要指标
func computeMetrics(trace *perftrace.ParsedTrace) {
	m := trace.Metrics
	m.TotalDurationUs = trace.TraceMax - trace.TraceMin
	m.NetworkRequests = len(trace.Requests)

	for _, e := range trace.Events {
		switch e.Name {
		case "navigationStart":
			if m.NavigationStartTs == 0 || e.Ts < m.NavigationStartTs {
				m.NavigationStartTs = e.Ts
			}
		case "largestContentfulPaint::Candidate":
			if e.Ts > m.LCPTs {
				m.LCPTs = e.Ts
			}
		}

		if !isMainThreadTask(trace, e) {
			continue
		}
		m.MainThreadTasks++
		m.MainThreadBusyUs += e.SelfTime
		if e.Dur >= LongTaskThresholdUs {
			m.LongTaskCount++
		}
	}
}

// isMainThreadTask 事件是否为主线程上的完整任务
func isMainThreadTask(trace *perftrace.ParsedTrace, e *perftrace.TraceEvent) bool {
	if trace.MainThread == nil || e.Phase != perftrace.PhaseComplete {
		return false
	}
	return e.Pid == trace.MainThread.Pid && e.Tid == trace.MainThread.Tid
}
