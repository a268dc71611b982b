package perfsession

import (
	"fmt"
	"strings"
)

// Response 单次操作的文本响应体。所有结果（包括失败）都以
// 人类可读的行追加，绝不通过带外错误通道返回给调用方。
type Response struct {
	lines []string
}

// NewResponse 创建空响应
func NewResponse() *Response {
	return &Response{}
}

// AppendLine 追加一行（支持格式化）
func (r *Response) AppendLine(format string, args ...interface{}) {
	if len(args) == 0 {
		r.lines = append(r.lines, format)
		return
	}
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

// AppendBlock 追加多行文本块，去掉尾部空行
func (r *Response) AppendBlock(block string) {
	block = strings.TrimRight(block, "\n")
	if block == "" {
		return
	}
	r.lines = append(r.lines, strings.Split(block, "\n")...)
}

// Merge 把另一个响应的全部行并入
func (r *Response) Merge(other *Response) {
	r.lines = append(r.lines, other.lines...)
}

// Lines 响应行（追加顺序）
func (r *Response) Lines() []string {
	return r.lines
}

// Text 拼接后的完整响应文本
func (r *Response) Text() string {
	return strings.Join(r.lines, "\n")
}

// Empty 是否没有任何输出
func (r *Response) Empty() bool {
	return len(r.lines) == 0
}
