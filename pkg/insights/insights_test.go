package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrowserPerfTraceKit/internal/perftrace"
)

// buildTrace 构造带长任务和网络请求的测试模型
func buildTrace() *perftrace.ParsedTrace {
	longTask := &perftrace.TraceEvent{Name: "RunTask", Phase: perftrace.PhaseComplete, Ts: 2000, Dur: 80_000}
	shortTask := &perftrace.TraceEvent{Name: "RunTask", Phase: perftrace.PhaseComplete, Ts: 90_000, Dur: 1_000}

	return &perftrace.ParsedTrace{
		Keyed:    []*perftrace.TraceEvent{longTask, shortTask},
		TraceMin: 1000,
		TraceMax: 100_000,
		Requests: []*perftrace.NetworkRequest{
			{URL: "https://example.com/", MimeType: "text/html", Duration: 300_000, Finished: true},
			{URL: "https://example.com/app.css", MimeType: "text/css", Duration: 1_500_000, Finished: true},
		},
		Metrics: &perftrace.TraceMetrics{
			NavigationStartTs: 1000,
			LCPTs:             95_000,
		},
	}
}

// TestDeriveAllInsights 测试全部洞察派生与按名查找
func TestDeriveAllInsights(t *testing.T) {
	set := NewDeriver().Derive(buildTrace())

	require.NotEmpty(t, set.Insights)
	assert.Contains(t, set.Names(), InsightLongTasks)
	assert.Contains(t, set.Names(), InsightLCPBreakdown)
	assert.Contains(t, set.Names(), InsightRenderBlocking)
	assert.Contains(t, set.Names(), InsightDocumentLatency)
	assert.Contains(t, set.Names(), InsightNetworkTail)

	assert.Nil(t, set.Find("NoSuchInsight"))
}

// TestLongTasksInsight 测试长任务洞察只统计顶层长任务
func TestLongTasksInsight(t *testing.T) {
	set := NewDeriver().Derive(buildTrace())

	ins := set.Find(InsightLongTasks)
	require.NotNil(t, ins)
	assert.Contains(t, ins.Summary, "1 long task(s)")
	require.Len(t, ins.RelatedKeys, 1)
	assert.Equal(t, "r-1", ins.RelatedKeys[0])
}

// TestLCPBreakdownInsight 测试LCP分解
func TestLCPBreakdownInsight(t *testing.T) {
	set := NewDeriver().Derive(buildTrace())

	ins := set.Find(InsightLCPBreakdown)
	require.NotNil(t, ins)
	assert.Contains(t, ins.Summary, "94.0ms")

	// 没有LCP候选时不产出该洞察
	trace := buildTrace()
	trace.Metrics.LCPTs = 0
	set = NewDeriver().Derive(trace)
	assert.Nil(t, set.Find(InsightLCPBreakdown))
}

// TestRenderBlockingInsight 测试渲染阻塞请求识别
func TestRenderBlockingInsight(t *testing.T) {
	set := NewDeriver().Derive(buildTrace())

	ins := set.Find(InsightRenderBlocking)
	require.NotNil(t, ins)
	assert.Contains(t, ins.Summary, "1 request(s)")
	require.Len(t, ins.Detail, 1)
	assert.Contains(t, ins.Detail[0], "app.css")
}

// TestNetworkTailInsight 测试慢请求洞察
func TestNetworkTailInsight(t *testing.T) {
	set := NewDeriver().Derive(buildTrace())

	ins := set.Find(InsightNetworkTail)
	require.NotNil(t, ins)
	assert.Contains(t, ins.Summary, "1 request(s)")
	assert.Contains(t, ins.Detail[0], "1500.0ms")
}
