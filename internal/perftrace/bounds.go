package perftrace

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBounds 时间窗口非法或与录制区间不相交
var ErrInvalidBounds = errors.New("invalid bounds")

// Bounds 查询时间窗口（微秒），仅在单次查询内有效
type Bounds struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// ResolveBounds 校验并收敛调用方给定的时间窗口到录制区间内。
// min<=0按0处理，max<=0按正无穷处理；收敛是静默的，调用方不会被告知窗口被缩小。
func ResolveBounds(trace *ParsedTrace, min, max int64) (Bounds, error) {
	if min < 0 {
		min = 0
	}
	if max <= 0 {
		max = math.MaxInt64
	}
	if min > max {
		return Bounds{}, fmt.Errorf("%w: min %d > max %d", ErrInvalidBounds, min, max)
	}

	clampedMin := min
	if clampedMin < trace.TraceMin {
		clampedMin = trace.TraceMin
	}
	clampedMax := max
	if clampedMax > trace.TraceMax {
		clampedMax = trace.TraceMax
	}

	// 收敛后不相交说明窗口完全落在录制区间之外
	if clampedMin > clampedMax {
		return Bounds{}, fmt.Errorf("%w: window [%d, %d] does not intersect trace [%d, %d]",
			ErrInvalidBounds, min, max, trace.TraceMin, trace.TraceMax)
	}

	return Bounds{Min: clampedMin, Max: clampedMax}, nil
}

// Contains 事件是否与窗口相交
func (b Bounds) Contains(e *TraceEvent) bool {
	return e.Ts <= b.Max && e.EndTs() >= b.Min
}

// DurationUs 窗口宽度（微秒）
func (b Bounds) DurationUs() int64 {
	return b.Max - b.Min
}
