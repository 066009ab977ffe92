// Package negotiation implements the Contract Net Protocol: call for
// proposals, bidding, weighted evaluation, and award, grounded on
// app/core/collaboration/negotiation.py.
package negotiation

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a Negotiation's lifecycle stage.
type State string

const (
	StateOpen      State = "open"
	StateBidding   State = "bidding"
	StateAwarded   State = "awarded"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// BidStatus is a Bid's disposition within its owning negotiation.
type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

// Default criteria weights applied when a Negotiation's Criteria map omits a key.
const (
	DefaultCapabilityWeight = 0.5
	DefaultPriceWeight      = 0.3
	DefaultDurationWeight   = 0.2
)

// Bid is one agent's proposal against an open Negotiation.
type Bid struct {
	ID               string
	AgentName        string
	NegotiationID    string
	Price            float64
	CapabilityScore  float64
	EstimatedDuration float64
	Proposal         map[string]any
	Status           BidStatus
}

// Negotiation is a single Contract Net Protocol round.
type Negotiation struct {
	ID               string
	TaskDescription  string
	Initiator        string
	State            State
	Criteria         map[string]float64
	Bids             []*Bid
	Winner           string
	DeadlineSeconds  float64
	CreatedAt        time.Time
}

// Manager tracks agent capability registrations and active negotiations.
type Manager struct {
	mu            sync.Mutex
	capabilities  map[string]map[string]struct{}
	negotiations  map[string]*Negotiation
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		capabilities: make(map[string]map[string]struct{}),
		negotiations: make(map[string]*Negotiation),
	}
}

// RegisterCapabilities replaces agent's capability set (not a union).
func (m *Manager) RegisterCapabilities(agent string, capabilities []string) {
	set := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		set[c] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilities[agent] = set
}

// EligibleAgents returns every registered agent whose capability set is a
// superset of required (an empty requirement matches every registered agent).
func (m *Manager) EligibleAgents(required []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for agent, caps := range m.capabilities {
		if hasAll(caps, required) {
			out = append(out, agent)
		}
	}
	sort.Strings(out)
	return out
}

func hasAll(caps map[string]struct{}, required []string) bool {
	for _, r := range required {
		if _, ok := caps[r]; !ok {
			return false
		}
	}
	return true
}

// CreateCFP opens a negotiation in state bidding. criteria may be nil or
// partial; missing weights fall back to the package defaults at evaluation
// time.
func (m *Manager) CreateCFP(initiator, taskDescription string, requiredCapabilities []string, criteria map[string]float64, deadlineSeconds float64) *Negotiation {
	n := &Negotiation{
		ID:              uuid.NewString(),
		TaskDescription: taskDescription,
		Initiator:       initiator,
		State:           StateBidding,
		Criteria:        criteria,
		DeadlineSeconds: deadlineSeconds,
		CreatedAt:       time.Now(),
	}
	m.mu.Lock()
	m.negotiations[n.ID] = n
	m.mu.Unlock()
	return n
}

// Negotiation returns the negotiation with the given id, or nil if unknown.
func (m *Manager) Negotiation(id string) *Negotiation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.negotiations[id]
}

// SubmitBid records agent's bid against negotiationID. Returns nil if the
// negotiation is unknown or not in state bidding.
func (m *Manager) SubmitBid(negotiationID, agent string, price, capabilityScore, estimatedDuration float64, proposal map[string]any) *Bid {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.negotiations[negotiationID]
	if !ok || n.State != StateBidding {
		return nil
	}

	bid := &Bid{
		ID:                uuid.NewString(),
		AgentName:         agent,
		NegotiationID:     negotiationID,
		Price:             price,
		CapabilityScore:   capabilityScore,
		EstimatedDuration: estimatedDuration,
		Proposal:          proposal,
		Status:            BidPending,
	}
	n.Bids = append(n.Bids, bid)
	return bid
}

func criterionWeight(criteria map[string]float64, key string, fallback float64) float64 {
	if criteria == nil {
		return fallback
	}
	if w, ok := criteria[key]; ok {
		return w
	}
	return fallback
}

// EvaluateBids scores every pending bid and awards the negotiation to the
// strict highest scorer (first bid wins on a tie, by submission order). If
// no pending bids exist, the negotiation fails. Returns the winning agent's
// name, or "" if the negotiation could not be evaluated.
func (m *Manager) EvaluateBids(negotiationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.negotiations[negotiationID]
	if !ok {
		return ""
	}

	var pending []*Bid
	for _, b := range n.Bids {
		if b.Status == BidPending {
			pending = append(pending, b)
		}
	}
	if len(pending) == 0 {
		n.State = StateFailed
		return ""
	}

	maxPrice := 1.0
	maxDuration := 1.0
	for _, b := range pending {
		if b.Price > maxPrice {
			maxPrice = b.Price
		}
		if b.EstimatedDuration > maxDuration {
			maxDuration = b.EstimatedDuration
		}
	}

	wCap := criterionWeight(n.Criteria, "capability_score", DefaultCapabilityWeight)
	wPrice := criterionWeight(n.Criteria, "price", DefaultPriceWeight)
	wDur := criterionWeight(n.Criteria, "estimated_duration", DefaultDurationWeight)

	var winner *Bid
	bestScore := -1.0
	for _, b := range pending {
		score := wCap*b.CapabilityScore +
			wPrice*(1-b.Price/maxPrice) +
			wDur*(1-b.EstimatedDuration/maxDuration)
		if score > bestScore {
			bestScore = score
			winner = b
		}
	}

	for _, b := range pending {
		if b == winner {
			b.Status = BidAccepted
		} else {
			b.Status = BidRejected
		}
	}
	n.State = StateAwarded
	n.Winner = winner.AgentName
	return winner.AgentName
}

// CompleteNegotiation marks an awarded negotiation completed. Returns false
// if it is not currently awarded.
func (m *Manager) CompleteNegotiation(negotiationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.negotiations[negotiationID]
	if !ok || n.State != StateAwarded {
		return false
	}
	n.State = StateCompleted
	return true
}

// CancelNegotiation cancels a non-terminal negotiation, withdrawing every
// still-pending bid. Returns false if the negotiation is unknown or already
// terminal (completed or cancelled).
func (m *Manager) CancelNegotiation(negotiationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.negotiations[negotiationID]
	if !ok {
		return false
	}
	if n.State == StateCompleted || n.State == StateCancelled {
		return false
	}
	for _, b := range n.Bids {
		if b.Status == BidPending {
			b.Status = BidWithdrawn
		}
	}
	n.State = StateCancelled
	return true
}
