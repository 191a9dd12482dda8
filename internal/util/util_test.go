package util

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a bytes.Buffer written by the reporter goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatBytesFixedWidth(t *testing.T) {
	for _, v := range []float64{0, 99, 1500, 99 * 1024, 5 << 30} {
		assert.Len(t, formatBytes(v), 8, "value %v", v)
	}
	assert.Equal(t, " 1.5 KiB", formatBytes(1536))
}

func TestLoggerWritesThroughWriter(t *testing.T) {
	var buf syncBuffer
	l := NewLogger(LogOptions{Writer: &buf, JSON: true})

	l.Infof("hello %d", 7)
	l.Debugf("hidden")
	l.Log("Client", "from worker")

	out := buf.String()
	assert.Contains(t, out, "hello 7")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "from worker")
	assert.Contains(t, out, "Client")
}

func TestStatsReporterLogsActivity(t *testing.T) {
	var buf syncBuffer
	l := NewLogger(LogOptions{Writer: &buf, JSON: true})
	var s Stats

	tm, err := NewStatsReporter(&s, l, "Server", 20*time.Millisecond)
	require.NoError(t, err)
	defer tm.Close()

	s.AddConn()
	s.AddSent(4096)
	s.AddDropped()

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "Dropped: 1")
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), s.PacketsSent.Load())
}
