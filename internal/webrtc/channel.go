package webrtc

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
)

// Send blocks above HighWaterMark until the buffer falls under LowWaterMark.
const (
	HighWaterMark = 256 * 1024
	LowWaterMark  = 64 * 1024

	drainPoll = 5 * time.Millisecond
)

// ErrChannelNotOpen is returned by Send before open or after close.
var ErrChannelNotOpen = errors.New("data channel not open")

// DataChannel wraps a pion DataChannel with send-side backpressure.
type DataChannel struct {
	raw      *webrtc.DataChannel
	lowWater chan struct{}
}

// NewDataChannel wraps raw and installs the low-water callback.
func NewDataChannel(raw *webrtc.DataChannel) *DataChannel {
	ch := &DataChannel{
		raw:      raw,
		lowWater: make(chan struct{}, 1),
	}

	raw.SetBufferedAmountLowThreshold(uint64(LowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case ch.lowWater <- struct{}{}:
		default:
		}
	})

	return ch
}

// Send blocks while the buffer is above the high-water mark, then sends
// data as one binary message.
func (c *DataChannel) Send(ctx context.Context, data []byte) error {
	if c.raw.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	for c.raw.BufferedAmount() > uint64(HighWaterMark) {
		select {
		case <-c.lowWater:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(drainPoll):
			// The low-water event can fire before we start waiting.
		}
	}
	return c.raw.Send(data)
}

// Drain waits until nothing is left buffered or ctx ends.
func (c *DataChannel) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for c.raw.ReadyState() == webrtc.DataChannelStateOpen && c.raw.BufferedAmount() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// OnMessage registers a callback for every received message.
func (c *DataChannel) OnMessage(fn func([]byte)) {
	c.raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *DataChannel) OnOpen(fn func())  { c.raw.OnOpen(fn) }
func (c *DataChannel) OnClose(fn func()) { c.raw.OnClose(fn) }

// Buffered reports bytes queued but not yet sent.
func (c *DataChannel) Buffered() uint64 { return c.raw.BufferedAmount() }

func (c *DataChannel) Raw() *webrtc.DataChannel { return c.raw }
