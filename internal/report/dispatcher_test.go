package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrowserPerfTraceKit/internal/perftrace"
)

// buildRecord 构造带任务树、请求和洞察的录制快照
func buildRecord() *perftrace.RecordedTrace {
	root := &perftrace.TraceEvent{Name: "RunTask", Phase: perftrace.PhaseComplete, Ts: 1000, Dur: 2000, SelfTime: 1400}
	child := &perftrace.TraceEvent{Name: "ParseHTML", Phase: perftrace.PhaseComplete, Ts: 1200, Dur: 600, SelfTime: 600, Parent: root}
	root.Children = []*perftrace.TraceEvent{child}
	bare := &perftrace.TraceEvent{Name: "MinorGC", Phase: perftrace.PhaseComplete, Ts: 4000, Dur: 0}

	return &perftrace.RecordedTrace{
		Generation: 1,
		TargetURL:  "https://example.com/",
		RecordedAt: time.Now(),
		Parsed: &perftrace.ParsedTrace{
			Keyed:    []*perftrace.TraceEvent{root, child, bare},
			TraceMin: 1000,
			TraceMax: 5000,
			Requests: []*perftrace.NetworkRequest{
				{URL: "https://example.com/app.js", StartTs: 1100, EndTs: 1700, Duration: 600, Finished: true, StatusCode: 200, MimeType: "application/javascript"},
				{URL: "https://example.com/late.png", StartTs: 4500, EndTs: 4900, Duration: 400, Finished: true, StatusCode: 200},
			},
			Metrics: &perftrace.TraceMetrics{EventCount: 5, MainThreadTasks: 3, TotalDurationUs: 4000},
		},
		Insights: &perftrace.InsightSet{Insights: []*perftrace.Insight{
			{Name: "LongTasks", Title: "Long main-thread tasks", Summary: "1 long task(s).", RelatedKeys: []string{"r-1"}},
		}},
	}
}

// TestMainThreadSummary 测试主线程轨道概要
func TestMainThreadSummary(t *testing.T) {
	d := NewDispatcher()
	record := buildRecord()

	out := d.MainThreadSummary(record, perftrace.Bounds{Min: 1000, Max: 3000})
	assert.Contains(t, out, "1 top-level task(s)")
	assert.Contains(t, out, "r-1 RunTask")
	assert.NotContains(t, out, "MinorGC", "窗口外任务不应出现")

	out = d.MainThreadSummary(record, perftrace.Bounds{Min: 4900, Max: 5000})
	assert.Contains(t, out, "no main-thread tasks")
}

// TestNetworkSummary 测试网络轨道概要
func TestNetworkSummary(t *testing.T) {
	d := NewDispatcher()
	record := buildRecord()

	out := d.NetworkSummary(record, perftrace.Bounds{Min: 1000, Max: 2000})
	assert.Contains(t, out, "1 request(s)")
	assert.Contains(t, out, "app.js")
	assert.NotContains(t, out, "late.png")

	out = d.NetworkSummary(record, perftrace.Bounds{Min: 1000, Max: 5000})
	assert.Contains(t, out, "2 request(s)")
	// 耗时降序
	assert.Less(t, strings.Index(out, "app.js"), strings.Index(out, "late.png"))
}

// TestCallTree 测试调用树渲染与占位文本
func TestCallTree(t *testing.T) {
	d := NewDispatcher()
	record := buildRecord()

	// 从子事件出发也渲染整棵树并标记焦点
	child := record.Parsed.Keyed[1]
	out := d.CallTree(record, child)
	assert.Contains(t, out, "RunTask")
	assert.Contains(t, out, "* r-2 ParseHTML")

	// 零耗时且无子节点的事件没有可追踪的调用树
	bare := record.Parsed.Keyed[2]
	assert.Equal(t, NoCallTreePlaceholder, d.CallTree(record, bare))
}

// TestSerializeEvent 测试单事件序列化
func TestSerializeEvent(t *testing.T) {
	d := NewDispatcher()
	record := buildRecord()

	out := d.SerializeEvent(record, "r-1", record.Parsed.Keyed[0])
	assert.Contains(t, out, "Event r-1:")
	assert.Contains(t, out, "name: RunTask")
	assert.Contains(t, out, "duration: 2.0ms")
}

// TestInsightText 测试洞察文本与未知名称错误
func TestInsightText(t *testing.T) {
	d := NewDispatcher()
	record := buildRecord()

	out, err := d.InsightText(record, "LongTasks")
	require.NoError(t, err)
	assert.Contains(t, out, "Long main-thread tasks")
	assert.Contains(t, out, "related events: r-1")

	_, err = d.InsightText(record, "Bogus")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownInsight)
	assert.Contains(t, err.Error(), "available: LongTasks")
}

// TestOverview 测试停止后的高层概要
func TestOverview(t *testing.T) {
	d := NewDispatcher()
	record := buildRecord()

	out := d.Overview(record)
	assert.Contains(t, out, "Trace #1 of https://example.com/")
	assert.Contains(t, out, "main-thread tasks: 3")
	assert.Contains(t, out, "insights: LongTasks")
}
