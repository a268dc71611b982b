package perfsession

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordOnce 录制一次threeTaskTrace，录制区间为[1000, 3000]
func recordOnce(t *testing.T) *Controller {
	t.Helper()

	c := newTestController(newFakeDriver(threeTaskTrace))
	ctx := context.Background()
	c.Start(ctx, false, false)
	resp := c.Stop(ctx)
	require.Contains(t, resp.Text(), "Trace #1")
	return c
}

// TestQueriesWithoutTrace 测试零录制时所有查询都得到统一提示而不是崩溃
func TestQueriesWithoutTrace(t *testing.T) {
	c := newTestController(newFakeDriver(threeTaskTrace))

	for name, resp := range map[string]*Response{
		"insight":     c.AnalyzeInsight("LongTasks"),
		"event":       c.EventByKey("r-1"),
		"main-thread": c.MainThreadSummary(0, 0),
		"network":     c.NetworkSummary(0, 0),
		"call-tree":   c.CallTree("r-1"),
	} {
		assert.Equal(t, MsgNoTraceRecorded, resp.Text(), "操作 %s", name)
	}
}

// TestAnalyzeInsight 测试洞察查询与未知名称
func TestAnalyzeInsight(t *testing.T) {
	c := recordOnce(t)

	resp := c.AnalyzeInsight("LongTasks")
	assert.Contains(t, resp.Text(), "Long main-thread tasks")

	resp = c.AnalyzeInsight("DoesNotExist")
	assert.Contains(t, resp.Text(), "unknown insight")
	assert.Contains(t, resp.Text(), "available:")
}

// TestTrackSummaryBounds 测试轨道概要的窗口收敛与拒绝
func TestTrackSummaryBounds(t *testing.T) {
	c := recordOnce(t)

	// 全覆盖窗口静默收敛到录制区间
	resp := c.MainThreadSummary(0, 10000)
	assert.Contains(t, resp.Text(), "Main thread activity in window [1000us, 3000us]")

	// 不相交窗口
	resp = c.MainThreadSummary(6000, 7000)
	assert.Contains(t, resp.Text(), "invalid bounds")

	// min>max
	resp = c.NetworkSummary(3000, 2000)
	assert.Contains(t, resp.Text(), "invalid bounds")

	// 缺省max按正无穷
	resp = c.NetworkSummary(1500, 0)
	assert.Contains(t, resp.Text(), "Network activity in window [1500us, 3000us]")
}

// TestCallTreeQuery 测试调用树查询
func TestCallTreeQuery(t *testing.T) {
	c := recordOnce(t)

	resp := c.CallTree("r-2")
	assert.Contains(t, resp.Text(), "Call tree for r-2")
	assert.Contains(t, resp.Text(), "* r-2 ParseHTML")
	assert.Contains(t, resp.Text(), "RunTask")

	resp = c.CallTree("r-42")
	assert.Contains(t, resp.Text(), "was not found in the latest trace")
}
