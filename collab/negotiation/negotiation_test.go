package negotiation

import "testing"

func TestEligibleAgentsSupersetMatch(t *testing.T) {
	m := NewManager()
	m.RegisterCapabilities("a", []string{"go", "rust"})
	m.RegisterCapabilities("b", []string{"go"})
	m.RegisterCapabilities("c", []string{"python"})

	got := m.EligibleAgents([]string{"go"})
	want := map[string]bool{"a": true, "b": true}
	if len(got) != 2 {
		t.Fatalf("expected 2 eligible agents, got %v", got)
	}
	for _, g := range got {
		if !want[g] {
			t.Fatalf("unexpected eligible agent %s", g)
		}
	}
}

func TestEligibleAgentsEmptyRequirementMatchesAll(t *testing.T) {
	m := NewManager()
	m.RegisterCapabilities("a", []string{"go"})
	m.RegisterCapabilities("b", nil)

	got := m.EligibleAgents(nil)
	if len(got) != 2 {
		t.Fatalf("expected all registered agents, got %v", got)
	}
}

func TestRegisterCapabilitiesReplacesNotUnions(t *testing.T) {
	m := NewManager()
	m.RegisterCapabilities("a", []string{"go", "rust"})
	m.RegisterCapabilities("a", []string{"python"})

	if got := m.EligibleAgents([]string{"go"}); len(got) != 0 {
		t.Fatalf("expected capabilities to be replaced, got %v", got)
	}
	if got := m.EligibleAgents([]string{"python"}); len(got) != 1 {
		t.Fatalf("expected updated capability set, got %v", got)
	}
}

func TestSubmitBidRejectedOutsideBidding(t *testing.T) {
	m := NewManager()
	n := m.CreateCFP("init", "task", nil, nil, 0)
	m.EvaluateBids(n.ID) // no bids -> state becomes failed

	if b := m.SubmitBid(n.ID, "a", 10, 0.5, 5, nil); b != nil {
		t.Fatal("expected bid submission after failure to be rejected")
	}
}

func TestSubmitBidUnknownNegotiation(t *testing.T) {
	m := NewManager()
	if b := m.SubmitBid("ghost", "a", 10, 0.5, 5, nil); b != nil {
		t.Fatal("expected nil for unknown negotiation")
	}
}

func TestEvaluateBidsPicksHighestScore(t *testing.T) {
	m := NewManager()
	n := m.CreateCFP("init", "task", nil, nil, 0)

	m.SubmitBid(n.ID, "cheap-slow", 10, 0.5, 100, nil)
	m.SubmitBid(n.ID, "best", 50, 1.0, 10, nil)
	m.SubmitBid(n.ID, "expensive-fast", 100, 0.6, 5, nil)

	winner := m.EvaluateBids(n.ID)
	if winner != "best" {
		t.Fatalf("expected best to win, got %s", winner)
	}

	got := m.Negotiation(n.ID)
	if got.State != StateAwarded {
		t.Fatalf("expected state awarded, got %s", got.State)
	}
	for _, b := range got.Bids {
		if b.AgentName == "best" && b.Status != BidAccepted {
			t.Fatal("expected winning bid accepted")
		}
		if b.AgentName != "best" && b.Status != BidRejected {
			t.Fatalf("expected losing bid %s rejected, got %s", b.AgentName, b.Status)
		}
	}
}

func TestEvaluateBidsTieBreaksByInsertionOrder(t *testing.T) {
	m := NewManager()
	n := m.CreateCFP("init", "task", nil, nil, 0)
	m.SubmitBid(n.ID, "first", 10, 0.5, 10, nil)
	m.SubmitBid(n.ID, "second", 10, 0.5, 10, nil)

	winner := m.EvaluateBids(n.ID)
	if winner != "first" {
		t.Fatalf("expected first bid to win tie, got %s", winner)
	}
}

func TestEvaluateBidsNoPendingFails(t *testing.T) {
	m := NewManager()
	n := m.CreateCFP("init", "task", nil, nil, 0)
	if winner := m.EvaluateBids(n.ID); winner != "" {
		t.Fatalf("expected empty winner with no bids, got %s", winner)
	}
	if got := m.Negotiation(n.ID); got.State != StateFailed {
		t.Fatalf("expected state failed, got %s", got.State)
	}
}

func TestCompleteRequiresAwarded(t *testing.T) {
	m := NewManager()
	n := m.CreateCFP("init", "task", nil, nil, 0)
	if m.CompleteNegotiation(n.ID) {
		t.Fatal("expected complete to fail before award")
	}
	m.SubmitBid(n.ID, "a", 10, 0.5, 5, nil)
	m.EvaluateBids(n.ID)
	if !m.CompleteNegotiation(n.ID) {
		t.Fatal("expected complete to succeed after award")
	}
}

func TestCancelWithdrawsPendingBids(t *testing.T) {
	m := NewManager()
	n := m.CreateCFP("init", "task", nil, nil, 0)
	m.SubmitBid(n.ID, "a", 10, 0.5, 5, nil)

	if !m.CancelNegotiation(n.ID) {
		t.Fatal("expected cancel to succeed")
	}
	got := m.Negotiation(n.ID)
	if got.State != StateCancelled {
		t.Fatalf("expected state cancelled, got %s", got.State)
	}
	if got.Bids[0].Status != BidWithdrawn {
		t.Fatalf("expected bid withdrawn, got %s", got.Bids[0].Status)
	}
}

func TestCancelAlreadyTerminalFails(t *testing.T) {
	m := NewManager()
	n := m.CreateCFP("init", "task", nil, nil, 0)
	m.CancelNegotiation(n.ID)
	if m.CancelNegotiation(n.ID) {
		t.Fatal("expected second cancel to fail")
	}
}

func TestEvaluateUsesCustomCriteria(t *testing.T) {
	m := NewManager()
	n := m.CreateCFP("init", "task", nil, map[string]float64{
		"capability_score":   0.0,
		"price":              1.0,
		"estimated_duration": 0.0,
	}, 0)
	m.SubmitBid(n.ID, "cheap", 1, 0.1, 100, nil)
	m.SubmitBid(n.ID, "pricey", 100, 1.0, 1, nil)

	winner := m.EvaluateBids(n.ID)
	if winner != "cheap" {
		t.Fatalf("expected price-only criteria to favor cheap, got %s", winner)
	}
}
