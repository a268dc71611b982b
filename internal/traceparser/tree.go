package traceparser

import (
	"sort"

	"BrowserPerfTraceKit/internal/perftrace"
)

// buildTaskTree 基于时间包含关系重建主线程任务树，
// 同时为每个主线程任务分配可寻址键（Keyed下标+1）并计算自身耗时。
func buildTaskTree(trace *perftrace.ParsedTrace) {
	if trace.MainThread == nil {
		return
	}

	var tasks []*perftrace.TraceEvent
	for _, e := range trace.Events {
		if isMainThreadTask(trace, e) {
			tasks = append(tasks, e)
		}
	}
	if len(tasks) == 0 {
		return
	}

	// 同一起点时长更长的先入栈，保证父任务先于子任务处理
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Ts != tasks[j].Ts {
			return tasks[i].Ts < tasks[j].Ts
		}
		return tasks[i].Dur > tasks[j].Dur
	})

	var stack []*perftrace.TraceEvent
	for _, task := range tasks {
		// 弹出所有不再包含当前任务的祖先
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if task.Ts < top.EndTs() && task.EndTs() <= top.EndTs() {
				break
			}
			stack = stack[:len(stack)-1]
		}

		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			task.Parent = parent
			parent.Children = append(parent.Children, task)
		}
		stack = append(stack, task)
	}

	// 自身耗时 = 总时长 - 直接子任务时长之和
	for _, task := range tasks {
		childrenDur := int64(0)
		for _, child := range task.Children {
			childrenDur += child.Dur
		}
		task.SelfTime = task.Dur - childrenDur
		if task.SelfTime < 0 {
			task.SelfTime = 0
		}
	}

	trace.Keyed = tasks
}

// rebuildNetworkRequests 从Resource*事件序列重建网络请求记录
func rebuildNetworkRequests(events []*perftrace.TraceEvent) []*perftrace.NetworkRequest {
	byID := make(map[string]*perftrace.NetworkRequest)
	var ordered []*perftrace.NetworkRequest

	for _, e := range events {
		data, ok := eventData(e)
		if !ok {
			continue
		}
		requestID, _ := data["requestId"].(string)
		if requestID == "" {
			continue
		}

		switch e.Name {
		case "ResourceSendRequest":
			req := &perftrace.NetworkRequest{
				RequestID: requestID,
				StartTs:   e.Ts,
				EndTs:     e.Ts,
			}
			req.URL, _ = data["url"].(string)
			req.Method, _ = data["requestMethod"].(string)
			req.Priority, _ = data["priority"].(string)
			byID[requestID] = req
			ordered = append(ordered, req)

		case "ResourceReceiveResponse":
			req, exists := byID[requestID]
			if !exists {
				continue
			}
			req.MimeType, _ = data["mimeType"].(string)
			if code, ok := data["statusCode"].(float64); ok {
				req.StatusCode = int(code)
			}
			if cached, ok := data["fromCache"].(bool); ok {
				req.FromCache = cached
			}
			if e.Ts > req.EndTs {
				req.EndTs = e.Ts
			}

		case "ResourceFinish":
			req, exists := byID[requestID]
			if !exists {
				continue
			}
			req.Finished = true
			if e.Ts > req.EndTs {
				req.EndTs = e.Ts
			}
		}
	}

	for _, req := range ordered {
		req.Duration = req.EndTs - req.StartTs
	}
	return ordered
}

// eventData 取出args.data子对象
func eventData(e *perftrace.TraceEvent) (map[string]interface{}, bool) {
	if e.Args == nil {
		return nil, false
	}
	data, ok := e.Args["data"].(map[string]interface{})
	return data, ok
}
