package perftrace

import (
	"time"
)

// TracePhase Chrome trace-event格式的事件相位（ph字段）
type TracePhase string

const (
	PhaseComplete   TracePhase = "X" // 完整事件（带持续时间）
	PhaseBegin      TracePhase = "B" // 开始事件
	PhaseEnd        TracePhase = "E" // 结束事件
	PhaseInstant    TracePhase = "I" // 瞬时事件
	PhaseMetadata   TracePhase = "M" // 元数据事件
	PhaseAsyncBegin TracePhase = "b" // 异步开始
	PhaseAsyncEnd   TracePhase = "e" // 异步结束
	PhaseMark       TracePhase = "R" // 页面标记（navigationStart等）
)

// TraceEvent 单条跟踪事件，时间单位为微秒
type TraceEvent struct {
	Name       string                 `json:"name"`
	Categories string                 `json:"cat,omitempty"`
	Phase      TracePhase             `json:"ph"`
	Ts         int64                  `json:"ts"`
	Dur        int64                  `json:"dur,omitempty"`
	Pid        int                    `json:"pid"`
	Tid        int                    `json:"tid"`
	Args       map[string]interface{} `json:"args,omitempty"`

	// 主线程任务树链接，由解析器填充
	Parent   *TraceEvent   `json:"-"`
	Children []*TraceEvent `json:"-"`

	// SelfTime 去除子事件后的自身耗时（微秒），由解析器填充
	SelfTime int64 `json:"self_time,omitempty"`
}

// EndTs 事件结束时间戳（微秒）
func (e *TraceEvent) EndTs() int64 {
	return e.Ts + e.Dur
}

// ThreadInfo 线程元信息
type ThreadInfo struct {
	Pid  int    `json:"pid"`
	Tid  int    `json:"tid"`
	Name string `json:"name"`
}

// NetworkRequest 网络请求记录，由解析器从ResourceSend/Receive事件重建
type NetworkRequest struct {
	RequestID  string `json:"request_id"`
	URL        string `json:"url"`
	Method     string `json:"method,omitempty"`
	Priority   string `json:"priority,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	StartTs    int64  `json:"start_ts"`
	EndTs      int64  `json:"end_ts"`
	Duration   int64  `json:"duration"`
	Finished   bool   `json:"finished"`
	FromCache  bool   `json:"from_cache,omitempty"`
}

// TraceMetrics 一次录制的概要指标
type TraceMetrics struct {
	EventCount        int   `json:"event_count"`
	MainThreadTasks   int   `json:"main_thread_tasks"`
	LongTaskCount     int   `json:"long_task_count"`
	NetworkRequests   int   `json:"network_requests"`
	TotalDurationUs   int64 `json:"total_duration_us"`
	MainThreadBusyUs  int64 `json:"main_thread_busy_us"`
	NavigationStartTs int64 `json:"navigation_start_ts,omitempty"`
	LCPTs             int64 `json:"lcp_ts,omitempty"`
}

// ParsedTrace 结构化跟踪模型，由解析引擎从原始字节构建
type ParsedTrace struct {
	Events     []*TraceEvent     `json:"events"`
	Keyed      []*TraceEvent     `json:"-"` // 可寻址事件，下标+1即本地键
	MainThread *ThreadInfo       `json:"main_thread,omitempty"`
	Requests   []*NetworkRequest `json:"requests"`
	Metrics    *TraceMetrics     `json:"metrics"`
	TraceMin   int64             `json:"trace_min"`
	TraceMax   int64             `json:"trace_max"`
}

// Insight 单条性能洞察
type Insight struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Detail      []string `json:"detail,omitempty"`
	RelatedKeys []string `json:"related_keys,omitempty"`
}

// InsightSet 一次录制派生出的洞察集合
type InsightSet struct {
	Insights []*Insight `json:"insights"`
}

// Find 按名称查找洞察（不区分大小写由调用方自理，这里精确匹配）
func (s *InsightSet) Find(name string) *Insight {
	if s == nil {
		return nil
	}
	for _, ins := range s.Insights {
		if ins.Name == name {
			return ins
		}
	}
	return nil
}

// Names 返回全部洞察名称，用于错误提示
func (s *InsightSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Insights))
	for _, ins := range s.Insights {
		names = append(names, ins.Name)
	}
	return names
}

// RecordedTrace 一次成功停止产生的不可变录制快照
type RecordedTrace struct {
	Generation int          `json:"generation"`
	TargetURL  string       `json:"target_url"`
	RecordedAt time.Time    `json:"recorded_at"`
	Parsed     *ParsedTrace `json:"parsed"`
	Insights   *InsightSet  `json:"insights"`
}

// TraceMin 录制的最小时间戳（微秒）
func (r *RecordedTrace) TraceMin() int64 {
	return r.Parsed.TraceMin
}

// TraceMax 录制的最大时间戳（微秒）
func (r *RecordedTrace) TraceMax() int64 {
	return r.Parsed.TraceMax
}
