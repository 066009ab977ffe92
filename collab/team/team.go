// Package team implements capability- and workload-based team formation,
// grounded on app/core/collaboration/team.py.
package team

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Role is a TeamMember's function within a Team.
type Role string

const (
	RoleLeader     Role = "leader"
	RoleMember     Role = "member"
	RoleSpecialist Role = "specialist"
	RoleObserver   Role = "observer"
)

// Status is a Team's lifecycle stage.
type Status string

const (
	StatusForming   Status = "forming"
	StatusActive    Status = "active"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusDisbanded Status = "disbanded"
)

// Member is one agent's participation record within a Team.
type Member struct {
	AgentName    string
	Role         Role
	Capabilities []string
	Workload     float64
}

// Team is a collection of members pursuing an objective.
type Team struct {
	ID                   string
	Name                 string
	Objective            string
	Members              []*Member
	RequiredCapabilities []string
	Status               Status
	Metadata             map[string]any
}

type profile struct {
	capabilities map[string]struct{}
	workload     float64
	order        int
}

// Manager tracks agent profiles and the teams built from them.
type Manager struct {
	mu       sync.Mutex
	profiles map[string]*profile
	order    []string // insertion order of profiled agents, for tie-breaking
	teams    map[string]*Team
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		profiles: make(map[string]*profile),
		teams:    make(map[string]*Team),
	}
}

// RegisterAgent records or replaces agent's capability and workload profile.
// workload is clamped to [0,1].
func (m *Manager) RegisterAgent(name string, capabilities []string, workload float64) {
	workload = clamp01(workload)
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	order := len(m.order)
	if existing, exists := m.profiles[name]; exists {
		order = existing.order
	} else {
		m.order = append(m.order, name)
	}
	m.profiles[name] = &profile{capabilities: caps, workload: workload, order: order}
}

// UpdateWorkload sets agent's current workload, clamped to [0,1]. No-op if
// the agent was never registered.
func (m *Manager) UpdateWorkload(name string, workload float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[name]
	if !ok {
		return
	}
	p.workload = clamp01(workload)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type candidate struct {
	agent string
	score float64
	order int
}

// findCandidates scores every profiled agent against requiredCapabilities
// and returns the top n, highest score first, ties broken by registration
// order. Caller must hold m.mu.
func (m *Manager) findCandidates(requiredCapabilities []string, n int) []candidate {
	var pool []candidate
	for agent, p := range m.profiles {
		ratio := matchRatio(p.capabilities, requiredCapabilities)
		if ratio == 0 && len(requiredCapabilities) > 0 {
			continue
		}
		score := 0.7*ratio + 0.3*(1-p.workload)
		pool = append(pool, candidate{agent: agent, score: score, order: p.order})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].order < pool[j].order
	})
	if n > 0 && n < len(pool) {
		pool = pool[:n]
	}
	return pool
}

func matchRatio(caps map[string]struct{}, required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	matched := 0
	for _, r := range required {
		if _, ok := caps[r]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// CreateTeam selects up to maxMembers candidates by capability/workload
// score, promotes the first to leader, and returns the new team. Status is
// active if any members were selected, else forming.
func (m *Manager) CreateTeam(name, objective string, requiredCapabilities []string, maxMembers int, metadata map[string]any) *Team {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := m.findCandidates(requiredCapabilities, maxMembers)

	t := &Team{
		ID:                   uuid.NewString(),
		Name:                 name,
		Objective:            objective,
		RequiredCapabilities: append([]string(nil), requiredCapabilities...),
		Metadata:             metadata,
		Status:               StatusForming,
	}

	for i, c := range candidates {
		p := m.profiles[c.agent]
		role := RoleMember
		if i == 0 {
			role = RoleLeader
		}
		t.Members = append(t.Members, &Member{
			AgentName:    c.agent,
			Role:         role,
			Capabilities: capsToSlice(p.capabilities),
			Workload:     p.workload,
		})
	}
	if len(t.Members) > 0 {
		t.Status = StatusActive
	}

	m.teams[t.ID] = t
	return t
}

func capsToSlice(caps map[string]struct{}) []string {
	out := make([]string, 0, len(caps))
	for c := range caps {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Team returns the team with the given id, or nil if unknown.
func (m *Manager) Team(id string) *Team {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teams[id]
}

func findMember(t *Team, agent string) (*Member, int) {
	for i, mem := range t.Members {
		if mem.AgentName == agent {
			return mem, i
		}
	}
	return nil, -1
}

// AddMember appends agent to team with role (defaulting to member). Returns
// false if team is unknown or agent is already a member.
func (m *Manager) AddMember(teamID, agent string, role Role) bool {
	if role == "" {
		role = RoleMember
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return false
	}
	if mem, _ := findMember(t, agent); mem != nil {
		return false
	}

	var caps []string
	var workload float64
	if p, ok := m.profiles[agent]; ok {
		caps = capsToSlice(p.capabilities)
		workload = p.workload
	}
	t.Members = append(t.Members, &Member{AgentName: agent, Role: role, Capabilities: caps, Workload: workload})
	return true
}

// RemoveMember removes agent from team. If this leaves the team with no
// leader and at least one remaining member, the first remaining member (by
// list order) is promoted to leader. Returns false if team or membership is
// unknown.
func (m *Manager) RemoveMember(teamID, agent string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return false
	}
	_, idx := findMember(t, agent)
	if idx == -1 {
		return false
	}
	t.Members = append(t.Members[:idx], t.Members[idx+1:]...)

	if len(t.Members) > 0 && !hasLeader(t) {
		t.Members[0].Role = RoleLeader
	}
	return true
}

func hasLeader(t *Team) bool {
	for _, mem := range t.Members {
		if mem.Role == RoleLeader {
			return true
		}
	}
	return false
}

// AssignRole changes agent's role within team. Returns false if team or
// membership is unknown.
func (m *Manager) AssignRole(teamID, agent string, role Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return false
	}
	mem, _ := findMember(t, agent)
	if mem == nil {
		return false
	}
	mem.Role = role
	return true
}

// DisbandTeam marks team disbanded and clears its membership. Returns false
// if the team is unknown.
func (m *Manager) DisbandTeam(teamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return false
	}
	t.Status = StatusDisbanded
	t.Members = nil
	return true
}

// AgentTeams returns the IDs of every team agent belongs to.
func (m *Manager) AgentTeams(agent string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, t := range m.teams {
		if mem, _ := findMember(t, agent); mem != nil {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// TeamLeader returns the name of team's current leader, or "" if none.
func (m *Manager) TeamLeader(teamID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return ""
	}
	for _, mem := range t.Members {
		if mem.Role == RoleLeader {
			return mem.AgentName
		}
	}
	return ""
}

// TeamCapabilities returns the sorted union of every member's capabilities.
func (m *Manager) TeamCapabilities(teamID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return nil
	}
	set := make(map[string]struct{})
	for _, mem := range t.Members {
		for _, c := range mem.Capabilities {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ActiveTeams returns every team currently in status active or executing.
func (m *Manager) ActiveTeams() []*Team {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Team
	for _, t := range m.teams {
		if t.Status == StatusActive || t.Status == StatusExecuting {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
