package perfsession

import (
	"BrowserPerfTraceKit/internal/perftrace"
)

// 查询操作。全部作用于最近一次录制（History.Last()），
// 失败一律转为响应行，预期中的用户可见情况不写内部日志。

// AnalyzeInsight 按名称输出洞察文本
func (c *Controller) AnalyzeInsight(insightName string) *Response {
	resp := NewResponse()

	latest := c.history.Last()
	if latest == nil {
		resp.AppendLine(MsgNoTraceRecorded)
		return resp
	}

	text, err := c.formatter.InsightText(latest, insightName)
	if err != nil {
		resp.AppendLine(err.Error())
		return resp
	}
	resp.AppendBlock(text)
	return resp
}

// EventByKey 按事件键输出序列化事件。键只在最近一次录制内解析，
// 旧录制里曾经有效的键在新录制后返回未找到。
func (c *Controller) EventByKey(eventKey string) *Response {
	resp := NewResponse()

	latest := c.history.Last()
	if latest == nil {
		resp.AppendLine(MsgNoTraceRecorded)
		return resp
	}

	event, err := perftrace.ResolveEvent(latest, eventKey)
	if err != nil {
		resp.AppendLine("Event %q was not found in the latest trace.", eventKey)
		return resp
	}
	resp.AppendBlock(c.formatter.SerializeEvent(latest, eventKey, event))
	return resp
}

// MainThreadSummary 主线程轨道概要，窗口是微秒时间戳
func (c *Controller) MainThreadSummary(min, max int64) *Response {
	return c.trackSummary(min, max, c.formatter.MainThreadSummary)
}

// NetworkSummary 网络轨道概要
func (c *Controller) NetworkSummary(min, max int64) *Response {
	return c.trackSummary(min, max, c.formatter.NetworkSummary)
}

// trackSummary 轨道概要的公共骨架：取最近录制，收敛窗口，再交给格式化层
func (c *Controller) trackSummary(min, max int64, format func(*perftrace.RecordedTrace, perftrace.Bounds) string) *Response {
	resp := NewResponse()

	latest := c.history.Last()
	if latest == nil {
		resp.AppendLine(MsgNoTraceRecorded)
		return resp
	}

	bounds, err := perftrace.ResolveBounds(latest.Parsed, min, max)
	if err != nil {
		resp.AppendLine(err.Error())
		return resp
	}
	resp.AppendBlock(format(latest, bounds))
	return resp
}

// CallTree 事件的详细调用树。没有可追踪调用树的事件得到固定占位文本。
func (c *Controller) CallTree(eventKey string) *Response {
	resp := NewResponse()

	latest := c.history.Last()
	if latest == nil {
		resp.AppendLine(MsgNoTraceRecorded)
		return resp
	}

	event, err := perftrace.ResolveEvent(latest, eventKey)
	if err != nil {
		resp.AppendLine("Event %q was not found in the latest trace.", eventKey)
		return resp
	}
	resp.AppendBlock(c.formatter.CallTree(latest, event))
	return resp
}
