package team

import (
	"testing"

	"pgregory.net/rapid"
)

// TestPropertySingleLeaderInvariant checks spec.md §8's universal invariant:
// a team never has more than one leader, and loses its leader only when it
// loses every member.
func TestPropertySingleLeaderInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := NewManager()
		agents := []string{"a", "b", "c", "d"}
		for _, a := range agents {
			m.RegisterAgent(a, nil, 0)
		}
		tm := m.CreateTeam("squad", "obj", nil, len(agents), nil)

		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			agent := agents[rapid.IntRange(0, len(agents)-1).Draw(rt, "agent")]
			m.RemoveMember(tm.ID, agent)

			got := m.Team(tm.ID)
			leaders := 0
			for _, mem := range got.Members {
				if mem.Role == RoleLeader {
					leaders++
				}
			}
			if leaders > 1 {
				rt.Fatalf("more than one leader present: %+v", got.Members)
			}
			if len(got.Members) > 0 && leaders != 1 {
				rt.Fatalf("nonempty team has no leader: %+v", got.Members)
			}
		}
	})
}
