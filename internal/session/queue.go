package session

import (
	"sync"
	"sync/atomic"

	"github.com/projection-ui/host/internal/logger"
)

// OutboundQueue is the single channel through which every outbound
// envelope reaches the writer goroutine. It distinguishes two delivery
// policies:
//
//   - intents are loss-tolerant: a full queue means the controller is
//     behind, and blocking the UI event loop to wait for it would stall
//     rendering, so a full queue just drops the envelope.
//   - control envelopes (Ready) must eventually be delivered: the
//     session has no other way to reach the controller, so a full queue
//     falls back to a blocking send off the event loop.
type OutboundQueue struct {
	ch     chan []byte
	closed atomic.Bool
	once   sync.Once

	dropped atomic.Uint64
}

// NewOutboundQueue returns a queue with the given capacity. A cap of 0
// is legal (every TrySendIntent drops unless the writer is ready to
// receive at that instant).
func NewOutboundQueue(cap int) *OutboundQueue {
	return &OutboundQueue{ch: make(chan []byte, cap)}
}

// Chan exposes the underlying channel for the writer goroutine to drain.
func (q *OutboundQueue) Chan() <-chan []byte { return q.ch }

// TrySendIntent attempts a non-blocking send. On a full queue it drops
// the envelope and logs at power-of-two drop counts (1, 2, 4, 8, ...) so
// a sustained backlog doesn't flood the log.
func (q *OutboundQueue) TrySendIntent(payload []byte) {
	if q.closed.Load() {
		q.logDisconnectedOnce()
		return
	}
	// The closed check above and the send below are not atomic with
	// each other: Close() can run in between, closing q.ch out from
	// under this select. recover() covers that race the same way
	// SendControlBlocking's fallback goroutine does.
	defer func() {
		if r := recover(); r != nil {
			q.logDisconnectedOnce()
		}
	}()
	select {
	case q.ch <- payload:
	default:
		n := q.dropped.Add(1)
		if isPowerOfTwo(n) {
			logger.Warn("dropping outbound intent, queue full", "dropped_total", n)
		}
	}
}

// SendControlBlocking attempts a non-blocking send first; if the queue
// is full it falls back to a blocking send on a spawned goroutine so the
// caller (the UI event loop) is never stalled waiting for the writer.
func (q *OutboundQueue) SendControlBlocking(payload []byte) {
	if q.closed.Load() {
		q.logDisconnectedOnce()
		return
	}
	select {
	case q.ch <- payload:
		return
	default:
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				q.logDisconnectedOnce()
			}
		}()
		q.ch <- payload
	}()
}

// DroppedCount returns the number of intents dropped so far.
func (q *OutboundQueue) DroppedCount() uint64 {
	return q.dropped.Load()
}

// Close marks the queue disconnected and closes the underlying channel.
// Sends after Close are recovered no-ops (see SendControlBlocking) so a
// racing blocking-send goroutine can never panic the process.
func (q *OutboundQueue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

func (q *OutboundQueue) logDisconnectedOnce() {
	q.once.Do(func() {
		logger.Warn("outbound queue disconnected, further sends are dropped")
	})
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}
