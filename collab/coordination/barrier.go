package coordination

import (
	"context"
	"sync"
	"time"
)

// SyncBarrier is a rendezvous for a fixed number of expected arrivals.
type SyncBarrier struct {
	Name     string
	Expected int

	mu       sync.Mutex
	arrived  map[string]struct{}
	done     chan struct{}
}

// NewSyncBarrier creates a barrier named name, requiring expected distinct
// arrivals to complete.
func NewSyncBarrier(name string, expected int) *SyncBarrier {
	return &SyncBarrier{
		Name:     name,
		Expected: expected,
		arrived:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Arrive records agentName's arrival (idempotent for duplicate names) and
// returns true once arrivals have reached Expected.
func (b *SyncBarrier) Arrive(agentName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arrived[agentName] = struct{}{}
	complete := len(b.arrived) >= b.Expected
	if complete {
		select {
		case <-b.done:
			// already closed
		default:
			close(b.done)
		}
	}
	return complete
}

// Wait blocks until every expected arrival has occurred, ctx is cancelled, or
// timeout elapses (timeout <= 0 means no timeout). Returns false on timeout
// or cancellation; once complete, Wait returns true immediately.
func (b *SyncBarrier) Wait(ctx context.Context, timeout time.Duration) bool {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-done:
		return true
	case <-timeoutCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// ArrivedCount returns the number of distinct arrivals recorded so far.
func (b *SyncBarrier) ArrivedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.arrived)
}

// IsComplete reports whether arrivals have reached Expected.
func (b *SyncBarrier) IsComplete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.arrived) >= b.Expected
}

// Reset empties recorded arrivals and re-arms the completion latch.
func (b *SyncBarrier) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arrived = make(map[string]struct{})
	b.done = make(chan struct{})
}
