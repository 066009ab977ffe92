package bus

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestPropertyFIFOWithinPriority checks spec.md §8's universal invariant: for
// all dequeues on a single inbox, if m1 was enqueued before m2 at the same
// priority, m1 dequeues before m2; across priorities, lower rank always
// dequeues first regardless of arrival order.
func TestPropertyFIFOWithinPriority(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		priorities := []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}
		n := rapid.IntRange(1, 30).Draw(rt, "n")

		b := New(n + 1)
		b.RegisterAgent("recv")

		type sent struct {
			priority Priority
			seq      int
		}
		var order []sent
		seqByPriority := map[Priority]int{}

		for i := 0; i < n; i++ {
			p := priorities[rapid.IntRange(0, len(priorities)-1).Draw(rt, "p")]
			seqByPriority[p]++
			order = append(order, sent{priority: p, seq: seqByPriority[p]})
			b.Send(AgentMessage{
				Receiver: "recv",
				Priority: p,
				Content:  map[string]any{"priority": string(p), "seq": seqByPriority[p]},
			})
		}

		lastRank := -1
		lastSeqAtRank := map[int]int{}
		for i := 0; i < n; i++ {
			msg := b.Receive(context.Background(), "recv", time.Second)
			if msg == nil {
				rt.Fatalf("expected message %d, got nil", i)
			}
			rank := rankOf(Priority(msg.Content["priority"].(string)))
			if rank < lastRank {
				rt.Fatalf("dequeued a higher priority (rank %d) after a lower one (rank %d)", rank, lastRank)
			}
			seq := msg.Content["seq"].(int)
			if rank == lastRank && seq < lastSeqAtRank[rank] {
				rt.Fatalf("FIFO violated within priority %d: got seq %d after %d", rank, seq, lastSeqAtRank[rank])
			}
			lastRank = rank
			lastSeqAtRank[rank] = seq
		}
	})
}
