package insights

import (
	"fmt"
	"sort"
	"time"

	"BrowserPerfTraceKit/internal/perftrace"
)

// 洞察名称常量，analyze insight操作按名称寻址
const (
	InsightLongTasks       = "LongTasks"
	InsightLCPBreakdown    = "LCPBreakdown"
	InsightRenderBlocking  = "RenderBlocking"
	InsightDocumentLatency = "DocumentLatency"
	InsightNetworkTail     = "NetworkTail"
)

const (
	// longTaskThresholdUs 长任务判定阈值（50ms）
	longTaskThresholdUs = 50_000
	// slowRequestThresholdUs 慢请求判定阈值（1s）
	slowRequestThresholdUs = 1_000_000
	// maxDetailEntries 单条洞察的明细行上限
	maxDetailEntries = 10
)

// renderBlockingMimeTypes 会阻塞首次渲染的资源类型
var renderBlockingMimeTypes = map[string]bool{
	"text/css":               true,
	"application/javascript": true,
	"text/javascript":        true,
}

// Deriver 洞察派生器，对一次解析完成的录制计算全部洞察
type Deriver struct{}

// NewDeriver 创建洞察派生器
func NewDeriver() *Deriver {
	return &Deriver{}
}

// Derive 计算洞察集合。洞察只依赖解析后的模型，不回读原始字节。
func (d *Deriver) Derive(trace *perftrace.ParsedTrace) *perftrace.InsightSet {
	set := &perftrace.InsightSet{}
	set.Insights = append(set.Insights, d.longTasks(trace))
	if lcp := d.lcpBreakdown(trace); lcp != nil {
		set.Insights = append(set.Insights, lcp)
	}
	set.Insights = append(set.Insights, d.renderBlocking(trace))
	if doc := d.documentLatency(trace); doc != nil {
		set.Insights = append(set.Insights, doc)
	}
	set.Insights = append(set.Insights, d.networkTail(trace))
	return set
}

// longTasks 统计阻塞主线程的长任务
func (d *Deriver) longTasks(trace *perftrace.ParsedTrace) *perftrace.Insight {
	ins := &perftrace.Insight{
		Name:  InsightLongTasks,
		Title: "Long main-thread tasks",
	}

	var total int64
	for i, task := range trace.Keyed {
		if task.Parent != nil || task.Dur < longTaskThresholdUs {
			continue
		}
		total += task.Dur
		if len(ins.Detail) < maxDetailEntries {
			key := perftrace.FormatEventKey(i + 1)
			ins.Detail = append(ins.Detail, fmt.Sprintf("%s %s: %s at %dus",
				key, task.Name, usToMs(task.Dur), task.Ts))
			ins.RelatedKeys = append(ins.RelatedKeys, key)
		}
	}

	if len(ins.RelatedKeys) == 0 {
		ins.Summary = "No tasks longer than 50ms were found on the main thread."
	} else {
		ins.Summary = fmt.Sprintf("%d long task(s) blocked the main thread for %s in total.",
			len(ins.RelatedKeys), usToMs(total))
	}
	return ins
}

// lcpBreakdown LCP相对导航起点的分解，录制里没有LCP候选时不产出
func (d *Deriver) lcpBreakdown(trace *perftrace.ParsedTrace) *perftrace.Insight {
	m := trace.Metrics
	if m.LCPTs == 0 || m.NavigationStartTs == 0 || m.LCPTs < m.NavigationStartTs {
		return nil
	}

	elapsed := m.LCPTs - m.NavigationStartTs
	ins := &perftrace.Insight{
		Name:    InsightLCPBreakdown,
		Title:   "Largest Contentful Paint breakdown",
		Summary: fmt.Sprintf("LCP candidate painted %s after navigation start.", usToMs(elapsed)),
	}
	ins.Detail = append(ins.Detail,
		fmt.Sprintf("navigation start at %dus", m.NavigationStartTs),
		fmt.Sprintf("LCP candidate at %dus", m.LCPTs))
	return ins
}

// renderBlocking 阻塞渲染的资源请求
func (d *Deriver) renderBlocking(trace *perftrace.ParsedTrace) *perftrace.Insight {
	ins := &perftrace.Insight{
		Name:  InsightRenderBlocking,
		Title: "Render-blocking requests",
	}

	count := 0
	for _, req := range trace.Requests {
		if !renderBlockingMimeTypes[req.MimeType] || req.FromCache {
			continue
		}
		count++
		if len(ins.Detail) < maxDetailEntries {
			ins.Detail = append(ins.Detail, fmt.Sprintf("%s (%s, %s)",
				req.URL, req.MimeType, usToMs(req.Duration)))
		}
	}

	if count == 0 {
		ins.Summary = "No render-blocking requests were observed."
	} else {
		ins.Summary = fmt.Sprintf("%d request(s) likely blocked rendering.", count)
	}
	return ins
}

// documentLatency 主文档拉取耗时，以第一条请求近似主文档
func (d *Deriver) documentLatency(trace *perftrace.ParsedTrace) *perftrace.Insight {
	if len(trace.Requests) == 0 {
		return nil
	}
	doc := trace.Requests[0]
	return &perftrace.Insight{
		Name:  InsightDocumentLatency,
		Title: "Document request latency",
		Summary: fmt.Sprintf("The document request %s took %s.",
			doc.URL, usToMs(doc.Duration)),
	}
}

// networkTail 最慢的网络请求
func (d *Deriver) networkTail(trace *perftrace.ParsedTrace) *perftrace.Insight {
	ins := &perftrace.Insight{
		Name:  InsightNetworkTail,
		Title: "Slowest network requests",
	}

	slow := make([]*perftrace.NetworkRequest, 0, len(trace.Requests))
	for _, req := range trace.Requests {
		if req.Duration >= slowRequestThresholdUs {
			slow = append(slow, req)
		}
	}
	sort.Slice(slow, func(i, j int) bool {
		return slow[i].Duration > slow[j].Duration
	})

	if len(slow) == 0 {
		ins.Summary = "All requests finished within 1s."
		return ins
	}

	ins.Summary = fmt.Sprintf("%d request(s) took longer than 1s.", len(slow))
	for i, req := range slow {
		if i >= maxDetailEntries {
			break
		}
		ins.Detail = append(ins.Detail, fmt.Sprintf("%s: %s", req.URL, usToMs(req.Duration)))
	}
	return ins
}

// usToMs 微秒转毫秒的可读形式
func usToMs(us int64) string {
	return fmt.Sprintf("%.1fms", float64(us)/float64(time.Millisecond.Microseconds()))
}
