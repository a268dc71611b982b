package perftrace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// 事件键相关错误
var (
	// ErrNoTraceRecorded 尚无任何成功录制
	ErrNoTraceRecorded = errors.New("no trace recorded")
	// ErrEventNotFound 键在最近一次录制中不可解析
	ErrEventNotFound = errors.New("event not found")
)

// eventKeyPrefix 外部键的固定前缀，形如 r-1、r-2
const eventKeyPrefix = "r-"

// EventKey 事件键的内部表示。对外是不透明字符串，内部拆成
// 录制代数+本地下标，使"跨代失效"行为显式可测。
type EventKey struct {
	Generation int
	Local      int
}

// String 外部字符串形式，不包含代数
func (k EventKey) String() string {
	return FormatEventKey(k.Local)
}

// FormatEventKey 本地下标转外部键（下标从1开始）
func FormatEventKey(local int) string {
	return fmt.Sprintf("%s%d", eventKeyPrefix, local)
}

// ParseEventKey 解析外部键字符串，返回本地下标
func ParseEventKey(s string) (int, error) {
	if !strings.HasPrefix(s, eventKeyPrefix) {
		return 0, fmt.Errorf("%w: malformed key %q", ErrEventNotFound, s)
	}
	local, err := strconv.Atoi(strings.TrimPrefix(s, eventKeyPrefix))
	if err != nil || local <= 0 {
		return 0, fmt.Errorf("%w: malformed key %q", ErrEventNotFound, s)
	}
	return local, nil
}

// ResolveEvent 在且仅在最近一次录制内解析事件键。
// latest为nil表示从未录制过；旧代数里曾经有效的键在新录制后不再可解析。
func ResolveEvent(latest *RecordedTrace, key string) (*TraceEvent, error) {
	if latest == nil {
		return nil, ErrNoTraceRecorded
	}
	local, err := ParseEventKey(key)
	if err != nil {
		return nil, err
	}
	internal := EventKey{Generation: latest.Generation, Local: local}
	if internal.Local > len(latest.Parsed.Keyed) {
		return nil, fmt.Errorf("%w: key %q not present in trace generation %d",
			ErrEventNotFound, key, latest.Generation)
	}
	return latest.Parsed.Keyed[internal.Local-1], nil
}
