package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func TestPrinterLines(t *testing.T) {
	buf := captureOutput(t)

	KeyValue("Requests", "800")
	KeyValuePairs("p50", "120ms", "p99", "360ms")
	KeyValuePairs("odd")
	StatusLinef(false, "run %d failed", 2)

	out := buf.String()
	assert.Contains(t, out, "Requests:")
	assert.Contains(t, out, "800")
	assert.Contains(t, out, "120ms")
	assert.Contains(t, out, "│")
	assert.NotContains(t, out, "odd")
	assert.Contains(t, out, SymbolFail)
	assert.Contains(t, out, "run 2 failed")
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m05s", FormatDuration(125*time.Second))

	assert.Equal(t, "1,250ms", FormatMillis(1250))
	assert.Equal(t, "95.0%", FormatPercent(0.95))

	assert.Equal(t, "999,999", FormatReqs(999_999))
	assert.Equal(t, "2.50M", FormatReqs(2_500_000))

	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "hé...", Truncate("héllo", 2))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[░░░░░░░░░░░░░░░░░░░░]", progressBar(0, 10*time.Second))
	assert.Equal(t, "[██████████░░░░░░░░░░]", progressBar(5*time.Second, 10*time.Second))
	assert.Equal(t, "[████████████████████]", progressBar(20*time.Second, 10*time.Second))
	assert.Equal(t, "[████████████████████]", progressBar(time.Second, 0))
}

func TestProgressSpinnerStopTwice(t *testing.T) {
	captureOutput(t)

	p := NewProgressSpinner()
	p.Start(2, time.Second)
	p.Update("GET", "http://localhost")
	p.Done()
	p.Stop()
	p.Stop()
}
