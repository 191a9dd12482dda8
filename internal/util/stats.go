package util

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/1ureka/netbridge/internal/timer"
)

// Stats counts traffic for one network worker. All fields are atomic so the
// worker, the simulation goroutine and the reporter may touch them freely.
type Stats struct {
	TotalConns  atomic.Int64 // cumulative connections since the worker started
	ClosedConns atomic.Int64 // cumulative closed connections
	BytesSent   atomic.Int64
	BytesRecv   atomic.Int64
	PacketsSent atomic.Int64
	PacketsRecv atomic.Int64
	Dropped     atomic.Int64 // inbound packets rejected before dispatch
}

func (s *Stats) AddConn()    { s.TotalConns.Add(1) }
func (s *Stats) RemoveConn() { s.ClosedConns.Add(1) }
func (s *Stats) AddDropped() { s.Dropped.Add(1) }

func (s *Stats) AddSent(n int) {
	s.PacketsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *Stats) AddRecv(n int) {
	s.PacketsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// NewStatsReporter returns a started timer that logs per-interval traffic
// rates whenever anything changed. The caller owns the timer and must Close it.
func NewStatsReporter(s *Stats, log *Logger, origin string, interval time.Duration) (*timer.Timer, error) {
	var prevSent, prevRecv, prevTotal, prevClosed, prevDropped int64
	secs := interval.Seconds()

	report := func() {
		total := s.TotalConns.Load()
		closed := s.ClosedConns.Load()
		sent := s.BytesSent.Load()
		recv := s.BytesRecv.Load()
		dropped := s.Dropped.Load()

		outS := float64(sent-prevSent) / secs
		inS := float64(recv-prevRecv) / secs
		inC := total - prevTotal
		outC := closed - prevClosed
		drops := dropped - prevDropped

		if inC > 0 || outC > 0 || inS > 10 || outS > 10 || drops > 0 {
			log.Infof("[%s] %s", origin, formatStats(inS, outS, inC, outC, drops))
		}

		prevSent = sent
		prevRecv = recv
		prevTotal = total
		prevClosed = closed
		prevDropped = dropped
	}

	return timer.New(interval, report, true, true)
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a fixed-width (8 chars) string,
// e.g. "99.0   B", " 1.5 KiB".
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

func formatStats(inS, outS float64, inC, outC, drops int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Conn: %2d↑ %2d↓ | Dropped: %d",
		formatBytes(inS),
		formatBytes(outS),
		inC,
		outC,
		drops,
	)
}
