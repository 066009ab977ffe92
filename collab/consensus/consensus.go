// Package consensus implements multi-agent voting and resolution over
// proposals, grounded on app/core/collaboration/consensus.py.
package consensus

import (
	"sync"

	"github.com/google/uuid"
)

// Method selects the algorithm Resolve uses to combine votes.
type Method string

const (
	MethodMajority  Method = "majority"
	MethodUnanimous Method = "unanimous"
	MethodWeighted  Method = "weighted"
	MethodQuorum    Method = "quorum"
)

// VoteType is an agent's stance on a proposal.
type VoteType string

const (
	Approve VoteType = "approve"
	Reject  VoteType = "reject"
	Abstain VoteType = "abstain"
)

// Vote is a single agent's cast ballot in a Session.
type Vote struct {
	ID        string
	AgentName string
	VoteType  VoteType
	Weight    float64
	Reason    string
}

// Session is a single round of voting over a topic.
type Session struct {
	ID       string
	Topic    string
	Method   Method
	Quorum   float64 // fraction in (0,1]; consulted by MethodQuorum and the participation gate

	mu       sync.Mutex
	votes    []Vote
	resolved bool
	result   VoteType
}

// Builder tracks agent weights and open/resolved voting sessions.
type Builder struct {
	mu       sync.Mutex
	weights  map[string]float64
	sessions map[string]*Session
}

// NewBuilder creates an empty Builder. Agents default to weight 1.0 until
// SetAgentWeight is called.
func NewBuilder() *Builder {
	return &Builder{
		weights:  make(map[string]float64),
		sessions: make(map[string]*Session),
	}
}

// SetAgentWeight assigns agentName's voting weight, clamped to a minimum of
// 0 (negative weights are nonsensical and silently floored).
func (b *Builder) SetAgentWeight(agentName string, weight float64) {
	if weight < 0 {
		weight = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.weights[agentName] = weight
}

func (b *Builder) weightOf(agentName string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.weights[agentName]; ok {
		return w
	}
	return 1.0
}

// CreateSession opens a new voting session over topic using method, with
// quorum a fraction in (0, 1] used by MethodQuorum and the participation
// gate in Resolve.
func (b *Builder) CreateSession(topic string, method Method, quorum float64) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		Topic:  topic,
		Method: method,
		Quorum: quorum,
	}
	b.mu.Lock()
	b.sessions[s.ID] = s
	b.mu.Unlock()
	return s
}

// Session returns the session with the given id, or nil if unknown.
func (b *Builder) Session(id string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[id]
}

// CastVote records agentName's vote in the named session. Returns nil if
// the session is unknown, already resolved, or agentName has already voted
// in it.
func (b *Builder) CastVote(sessionID, agentName string, voteType VoteType, reason string) *Vote {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return nil
	}
	for _, v := range s.votes {
		if v.AgentName == agentName {
			return nil
		}
	}

	vote := Vote{
		ID:        uuid.NewString(),
		AgentName: agentName,
		VoteType:  voteType,
		Weight:    b.weightOf(agentName),
		Reason:    reason,
	}
	s.votes = append(s.votes, vote)
	return &vote
}

// Resolve computes and caches the session's outcome according to its
// configured Method, gated by participation when totalAgents is positive.
// Resolve on an already-resolved session returns the cached result without
// recomputation (idempotent). Returns ("", false) when unresolvable.
func (b *Builder) Resolve(sessionID string, totalAgents int) (VoteType, bool) {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return s.result, true
	}
	if len(s.votes) == 0 {
		return "", false
	}

	if totalAgents > 0 {
		participation := float64(len(s.votes)) / float64(totalAgents)
		if participation < s.Quorum {
			return "", false
		}
	}

	var result VoteType
	switch s.Method {
	case MethodUnanimous:
		result = resolveUnanimous(s.votes)
	case MethodWeighted:
		result = resolveWeighted(s.votes)
	case MethodQuorum:
		result = resolveQuorum(s.votes, s.Quorum)
	default:
		result = resolveMajority(s.votes)
	}

	s.resolved = true
	s.result = result
	return result, true
}

func resolveMajority(votes []Vote) VoteType {
	var approve, reject int
	for _, v := range votes {
		switch v.VoteType {
		case Approve:
			approve++
		case Reject:
			reject++
		}
	}
	switch {
	case approve > reject:
		return Approve
	case reject > approve:
		return Reject
	default:
		return Abstain
	}
}

func resolveUnanimous(votes []Vote) VoteType {
	nonAbstain := 0
	allApprove := true
	for _, v := range votes {
		if v.VoteType == Abstain {
			continue
		}
		nonAbstain++
		if v.VoteType != Approve {
			allApprove = false
		}
	}
	if nonAbstain == 0 {
		return Abstain
	}
	if allApprove {
		return Approve
	}
	return Reject
}

func resolveWeighted(votes []Vote) VoteType {
	var approveWeight, rejectWeight float64
	for _, v := range votes {
		switch v.VoteType {
		case Approve:
			approveWeight += v.Weight
		case Reject:
			rejectWeight += v.Weight
		}
	}
	switch {
	case approveWeight > rejectWeight:
		return Approve
	case rejectWeight > approveWeight:
		return Reject
	default:
		return Abstain
	}
}

func resolveQuorum(votes []Vote, quorum float64) VoteType {
	var approve, nonAbstain int
	for _, v := range votes {
		if v.VoteType == Abstain {
			continue
		}
		nonAbstain++
		if v.VoteType == Approve {
			approve++
		}
	}
	if nonAbstain == 0 {
		return Abstain
	}
	if float64(approve)/float64(nonAbstain) >= quorum {
		return Approve
	}
	return Reject
}
