package report

import (
	"fmt"
	"sort"
	"strings"

	"BrowserPerfTraceKit/internal/perftrace"
)

// maxSummaryRows 轨道概要的行数上限
const maxSummaryRows = 20

// formatMainThreadTrack 主线程轨道概要：窗口内顶层任务按自身耗时排序
func formatMainThreadTrack(trace *perftrace.ParsedTrace, bounds perftrace.Bounds) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Main thread activity in window [%dus, %dus] (%s):\n",
		bounds.Min, bounds.Max, usToMs(bounds.DurationUs()))

	var inWindow []*perftrace.TraceEvent
	var busy int64
	for _, task := range trace.Keyed {
		if !bounds.Contains(task) {
			continue
		}
		busy += task.SelfTime
		if task.Parent == nil {
			inWindow = append(inWindow, task)
		}
	}

	if len(inWindow) == 0 {
		b.WriteString("  (no main-thread tasks in this window)\n")
		return b.String()
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].SelfTime > inWindow[j].SelfTime
	})

	fmt.Fprintf(&b, "  %d top-level task(s), main thread busy for %s\n", len(inWindow), usToMs(busy))
	for i, task := range inWindow {
		if i >= maxSummaryRows {
			fmt.Fprintf(&b, "  ... %d more task(s) omitted\n", len(inWindow)-maxSummaryRows)
			break
		}
		fmt.Fprintf(&b, "  %s %s: total %s, self %s, start %dus\n",
			keyOf(trace, task), task.Name, usToMs(task.Dur), usToMs(task.SelfTime), task.Ts)
	}
	return b.String()
}

// formatNetworkTrack 网络轨道概要：窗口内请求按耗时降序
func formatNetworkTrack(trace *perftrace.ParsedTrace, bounds perftrace.Bounds) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Network activity in window [%dus, %dus]:\n", bounds.Min, bounds.Max)

	var inWindow []*perftrace.NetworkRequest
	for _, req := range trace.Requests {
		if req.StartTs <= bounds.Max && req.EndTs >= bounds.Min {
			inWindow = append(inWindow, req)
		}
	}

	if len(inWindow) == 0 {
		b.WriteString("  (no network requests in this window)\n")
		return b.String()
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Duration > inWindow[j].Duration
	})

	fmt.Fprintf(&b, "  %d request(s)\n", len(inWindow))
	for i, req := range inWindow {
		if i >= maxSummaryRows {
			fmt.Fprintf(&b, "  ... %d more request(s) omitted\n", len(inWindow)-maxSummaryRows)
			break
		}
		status := "pending"
		if req.Finished {
			status = fmt.Sprintf("%d", req.StatusCode)
		}
		fmt.Fprintf(&b, "  %s [%s] %s (%s, priority %s)\n",
			req.URL, status, usToMs(req.Duration), valueOr(req.MimeType, "unknown"), valueOr(req.Priority, "unknown"))
	}
	return b.String()
}

// formatCallTree 从事件的根祖先开始渲染整棵树，标记焦点事件。
// 事件既无子节点也无可计量耗时时视为没有可追踪的调用树。
func formatCallTree(trace *perftrace.ParsedTrace, event *perftrace.TraceEvent) (string, bool) {
	if len(event.Children) == 0 && event.Dur == 0 {
		return "", false
	}

	root := event
	for root.Parent != nil {
		root = root.Parent
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Call tree for %s (focus marked with *):\n", keyOf(trace, event))
	writeTreeNode(&b, trace, root, event, 0)
	return b.String(), true
}

// writeTreeNode 递归渲染树节点
func writeTreeNode(b *strings.Builder, trace *perftrace.ParsedTrace, node, focus *perftrace.TraceEvent, depth int) {
	marker := " "
	if node == focus {
		marker = "*"
	}
	fmt.Fprintf(b, "%s%s %s %s: total %s, self %s\n",
		strings.Repeat("  ", depth), marker, keyOf(trace, node), node.Name,
		usToMs(node.Dur), usToMs(node.SelfTime))
	for _, child := range node.Children {
		writeTreeNode(b, trace, child, focus, depth+1)
	}
}

// formatEvent 单事件序列化
func formatEvent(key string, event *perftrace.TraceEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event %s:\n", key)
	fmt.Fprintf(&b, "  name: %s\n", event.Name)
	fmt.Fprintf(&b, "  phase: %s\n", event.Phase)
	fmt.Fprintf(&b, "  start: %dus\n", event.Ts)
	fmt.Fprintf(&b, "  duration: %s\n", usToMs(event.Dur))
	fmt.Fprintf(&b, "  self time: %s\n", usToMs(event.SelfTime))
	if event.Categories != "" {
		fmt.Fprintf(&b, "  categories: %s\n", event.Categories)
	}
	fmt.Fprintf(&b, "  children: %d\n", len(event.Children))
	return b.String()
}

// formatInsight 洞察文本
func formatInsight(ins *perftrace.Insight) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", ins.Title, ins.Summary)
	for _, line := range ins.Detail {
		fmt.Fprintf(&b, "  - %s\n", line)
	}
	if len(ins.RelatedKeys) > 0 {
		fmt.Fprintf(&b, "  related events: %s\n", strings.Join(ins.RelatedKeys, ", "))
	}
	return b.String()
}

// formatOverview 停止录制后的一次性高层概要
func formatOverview(record *perftrace.RecordedTrace) string {
	m := record.Parsed.Metrics

	var b strings.Builder
	fmt.Fprintf(&b, "Trace #%d of %s\n", record.Generation, record.TargetURL)
	fmt.Fprintf(&b, "  extent: [%dus, %dus], duration %s\n",
		record.TraceMin(), record.TraceMax(), usToMs(m.TotalDurationUs))
	fmt.Fprintf(&b, "  events: %d, main-thread tasks: %d (busy %s), long tasks: %d, requests: %d\n",
		m.EventCount, m.MainThreadTasks, usToMs(m.MainThreadBusyUs), m.LongTaskCount, m.NetworkRequests)

	if names := record.Insights.Names(); len(names) > 0 {
		fmt.Fprintf(&b, "  insights: %s\n", strings.Join(names, ", "))
	}
	for _, ins := range record.Insights.Insights {
		fmt.Fprintf(&b, "  %s: %s\n", ins.Name, ins.Summary)
	}
	return b.String()
}

// keyOf 反查事件的外部键，不可寻址事件返回占位
func keyOf(trace *perftrace.ParsedTrace, event *perftrace.TraceEvent) string {
	for i, keyed := range trace.Keyed {
		if keyed == event {
			return perftrace.FormatEventKey(i + 1)
		}
	}
	return "r-?"
}

// valueOr 空字符串替换为占位值
func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// usToMs 微秒转毫秒文本
func usToMs(us int64) string {
	return fmt.Sprintf("%.1fms", float64(us)/1000.0)
}
