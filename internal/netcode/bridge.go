package netcode

import (
	"context"
	"time"

	"github.com/1ureka/netbridge/internal/queue"
)

// DefaultIdlePoll is the WaitIdle polling interval.
const DefaultIdlePoll = 100 * time.Millisecond

// Bridge holds the three queues between the simulation goroutine and the
// network worker. Each queue is FIFO; there is no ordering across queues.
//
// Queues are unbounded. A stalled simulation lets SimCmds grow; Stats
// counters and the reporter make that visible rather than shedding load.
type Bridge[O any] struct {
	Outgoing   *queue.Queue[O]             // sim → worker packets
	WorkerCmds *queue.Queue[WorkerCommand] // sim → worker control
	SimCmds    *queue.Queue[SimCommand]    // worker → sim
}

func NewBridge[O any]() *Bridge[O] {
	return &Bridge[O]{
		Outgoing:   queue.New[O](),
		WorkerCmds: queue.New[WorkerCommand](),
		SimCmds:    queue.New[SimCommand](),
	}
}

// Idle reports whether all three queues are empty.
func (b *Bridge[O]) Idle() bool {
	return b.Outgoing.Empty() && b.WorkerCmds.Empty() && b.SimCmds.Empty()
}

// WaitIdle polls until the bridge is idle or ctx ends. Once the worker has
// stopped nothing will transmit Outgoing or act on WorkerCmds, so those are
// discarded on every poll; it is the simulation draining SimCmds that is
// being waited for. It returns the number of discarded entries.
func (b *Bridge[O]) WaitIdle(ctx context.Context, interval time.Duration) (int, error) {
	if interval <= 0 {
		interval = DefaultIdlePoll
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	discarded := 0
	for {
		discarded += b.discard()
		if b.Idle() {
			return discarded, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return discarded, ctx.Err()
		}
	}
}

func (b *Bridge[O]) discard() int {
	return b.Outgoing.Clear() + b.WorkerCmds.Clear()
}
