package perftrace

import (
	"sync"
)

// History 录制历史，仅追加。查询永远作用于最后一条，
// 记录在插入前已完整构建，读方不会观察到半成品。
type History struct {
	mu      sync.RWMutex
	records []*RecordedTrace
	nextGen int
}

// NewHistory 创建空历史
func NewHistory() *History {
	return &History{nextGen: 1}
}

// NextGeneration 预留下一个录制代数（单调递增）
func (h *History) NextGeneration() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	gen := h.nextGen
	h.nextGen++
	return gen
}

// Append 追加一条完整构建好的录制
func (h *History) Append(record *RecordedTrace) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)
}

// Last 最近一次录制，从未录制过返回nil
func (h *History) Last() *RecordedTrace {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.records) == 0 {
		return nil
	}
	return h.records[len(h.records)-1]
}

// Len 历史长度
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.records)
}
