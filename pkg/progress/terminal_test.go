package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminal_Callback(t *testing.T) {
	var buf bytes.Buffer
	term := &Terminal{
		writer: &buf,
		op:     "verify checkpoints",
		total:  100,
	}

	term.enabled.Store(true)
	term.current.Store(0)

	cb := term.Callback()

	cb("verify checkpoints", 50, 100, "internal/unit/unit.go")

	output := buf.String()
	assert.Contains(t, output, "verify checkpoints")
	assert.Contains(t, output, "50/100")
	assert.Contains(t, output, "50%")
}

func TestTerminal_Done(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("restore", 10, true)
	term.writer = &buf

	cb := term.Callback()

	// Progress to completion
	for i := 0; i < 10; i++ {
		cb("restore", i+1, 10, "")
	}

	// Clear the buffer to check Done output
	buf.Reset()

	term.Done("complete")

	output := buf.String()
	assert.Contains(t, output, "complete")
}

func TestTerminal_Disabled(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("restore", 10, false)
	term.writer = &buf

	cb := term.Callback()
	cb("restore", 5, 10, "halfway")

	// No output when disabled
	assert.Equal(t, 0, buf.Len())
}

func TestCountingTerminal_Increment(t *testing.T) {
	var buf bytes.Buffer
	term := NewCountingTerminal("scan checkpoints", true)
	term.writer = &buf

	term.Increment()
	term.Increment()
	term.Increment()

	output := buf.String()
	assert.Contains(t, output, "scan checkpoints")
	assert.Contains(t, output, "items")
}

func TestCountingTerminal_Done(t *testing.T) {
	var buf bytes.Buffer
	term := NewCountingTerminal("scan checkpoints", true)
	term.writer = &buf

	term.Increment()
	term.Increment()

	buf.Reset()
	term.Done("all done")

	output := buf.String()
	assert.Contains(t, output, "all done")
}

func TestTerminal_ProgressBar(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("verify checkpoints", 100, true)
	term.writer = &buf

	cb := term.Callback()

	// 0% progress
	cb("verify checkpoints", 0, 100, "")
	output1 := buf.String()
	assert.Contains(t, output1, "[") // Has progress bar brackets

	// 50% progress
	buf.Reset()
	cb("verify checkpoints", 50, 100, "halfway")
	output2 := buf.String()
	assert.Contains(t, output2, "50%")
	assert.Contains(t, output2, "halfway")

	// 100% progress
	buf.Reset()
	cb("verify checkpoints", 100, 100, "done")
	output3 := buf.String()
	assert.Contains(t, output3, "100%")
	assert.Contains(t, output3, "done")
}

func TestTerminal_SetEnabled(t *testing.T) {
	term := NewTerminal("restore", 10, true)
	assert.True(t, term.IsEnabled())

	term.SetEnabled(false)
	assert.False(t, term.IsEnabled())

	term.SetEnabled(true)
	assert.True(t, term.IsEnabled())
}

func TestCountingTerminal_SetEnabled(t *testing.T) {
	term := NewCountingTerminal("scan checkpoints", true)
	term.SetEnabled(false)

	var buf bytes.Buffer
	term.writer = &buf

	term.Increment()
	assert.Equal(t, 0, buf.Len(), "no output when disabled")
}

func TestTerminal_ProgressBarFormat(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("restore files", 100, true)
	term.writer = &buf

	cb := term.Callback()
	cb("restore files", 25, 100, "processing")

	output := buf.String()

	// Check for expected elements
	assert.Contains(t, output, "restore files")
	assert.Contains(t, output, "[")
	assert.Contains(t, output, "]")
	assert.Contains(t, output, "25/100")
	assert.Contains(t, output, "25%")
	assert.Contains(t, output, "processing")

	// Check progress bar has roughly right amount of filled characters
	// 25% of 30 chars = 7-8 filled
	lines := strings.Split(output, "\r")
	lastLine := lines[len(lines)-1]
	equalCount := strings.Count(lastLine, "=")
	assert.GreaterOrEqual(t, equalCount, 5)
	assert.LessOrEqual(t, equalCount, 10)
}

// The doctor only learns the checkpoint count after enumerating tracked
// paths, so the bar's total arrives late.
func TestTerminal_SetTotalAfterConstruction(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("verify checkpoints", 0, true)
	term.writer = &buf

	term.SetTotal(40)
	cb := term.Callback()
	cb("verify checkpoints", 10, 40, "")

	output := buf.String()
	assert.Contains(t, output, "10/40")
	assert.Contains(t, output, "25%")
}

func TestTerminal_DoneSilentWhenNeverRendered(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("verify checkpoints", 0, true)
	term.writer = &buf

	// No callback invocations; an empty tree renders no bar at all.
	term.Done("")

	assert.Equal(t, 0, buf.Len())
}
