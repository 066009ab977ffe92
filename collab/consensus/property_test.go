package consensus

import (
	"testing"

	"pgregory.net/rapid"
)

// TestPropertyResolveIdempotent checks spec.md §8's universal invariant:
// once a session is resolved, further votes and resolve calls never change
// the stored result.
func TestPropertyResolveIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		methods := []Method{MethodMajority, MethodUnanimous, MethodWeighted, MethodQuorum}
		method := methods[rapid.IntRange(0, len(methods)-1).Draw(rt, "method")]

		b := NewBuilder()
		s := b.CreateSession("t", method, 0.5)

		voteTypes := []VoteType{Approve, Reject, Abstain}
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		for i := 0; i < n; i++ {
			vt := voteTypes[rapid.IntRange(0, len(voteTypes)-1).Draw(rt, "vt")]
			b.CastVote(s.ID, rapid.StringMatching(`agent-[0-9]`).Draw(rt, "agent")+string(rune('0'+i)), vt, "")
		}

		first, firstOK := b.Resolve(s.ID, 0)
		if !firstOK {
			return
		}

		extra := rapid.IntRange(0, 5).Draw(rt, "extra")
		for i := 0; i < extra; i++ {
			b.CastVote(s.ID, "late-voter", Approve, "")
			second, secondOK := b.Resolve(s.ID, 0)
			if !secondOK || second != first {
				rt.Fatalf("resolved result changed after resolution: first=%v second=%v (ok=%v)", first, second, secondOK)
			}
		}
	})
}
