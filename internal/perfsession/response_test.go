package perfsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseAppendLine(t *testing.T) {
	resp := NewResponse()
	assert.True(t, resp.Empty())

	resp.AppendLine("Recording stopped. Trace #%d captured.", 3)
	resp.AppendLine("plain line")

	assert.False(t, resp.Empty())
	assert.Equal(t, []string{
		"Recording stopped. Trace #3 captured.",
		"plain line",
	}, resp.Lines())
	assert.Equal(t, "Recording stopped. Trace #3 captured.\nplain line", resp.Text())
}

func TestResponseAppendBlock(t *testing.T) {
	resp := NewResponse()
	resp.AppendBlock("first\nsecond\n\n")
	assert.Equal(t, []string{"first", "second"}, resp.Lines())

	resp.AppendBlock("")
	assert.Equal(t, []string{"first", "second"}, resp.Lines())
}

func TestResponseMerge(t *testing.T) {
	a := NewResponse()
	a.AppendLine("one")
	b := NewResponse()
	b.AppendLine("two")

	a.Merge(b)
	assert.Equal(t, []string{"one", "two"}, a.Lines())
}
