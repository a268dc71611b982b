package perftrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResolveBoundsClamping 测试时间窗口收敛
func TestResolveBoundsClamping(t *testing.T) {
	trace := &ParsedTrace{TraceMin: 1000, TraceMax: 5000}

	tests := []struct {
		name    string
		min     int64
		max     int64
		want    Bounds
		wantErr bool
	}{
		{name: "全覆盖窗口收敛到录制区间", min: 0, max: 10000, want: Bounds{Min: 1000, Max: 5000}},
		{name: "窗口完全在录制之后", min: 6000, max: 7000, wantErr: true},
		{name: "窗口完全在录制之前", min: 100, max: 500, wantErr: true},
		{name: "min大于max直接失败", min: 3000, max: 2000, wantErr: true},
		{name: "缺省max按正无穷处理", min: 2000, max: 0, want: Bounds{Min: 2000, Max: 5000}},
		{name: "缺省min按0处理", min: 0, max: 4000, want: Bounds{Min: 1000, Max: 4000}},
		{name: "负数min按0处理", min: -50, max: 4000, want: Bounds{Min: 1000, Max: 4000}},
		{name: "窗口已在区间内不变", min: 2000, max: 3000, want: Bounds{Min: 2000, Max: 3000}},
		{name: "单点窗口", min: 3000, max: 3000, want: Bounds{Min: 3000, Max: 3000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveBounds(trace, tt.min, tt.max)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidBounds)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestBoundsContains 测试窗口与事件的相交判定
func TestBoundsContains(t *testing.T) {
	b := Bounds{Min: 1000, Max: 2000}

	assert.True(t, b.Contains(&TraceEvent{Ts: 1500, Dur: 100}))
	assert.True(t, b.Contains(&TraceEvent{Ts: 900, Dur: 200}), "跨越窗口起点的事件应相交")
	assert.True(t, b.Contains(&TraceEvent{Ts: 1900, Dur: 500}), "跨越窗口终点的事件应相交")
	assert.False(t, b.Contains(&TraceEvent{Ts: 2100, Dur: 50}))
	assert.False(t, b.Contains(&TraceEvent{Ts: 100, Dur: 50}))
	assert.Equal(t, int64(1000), b.DurationUs())
}
