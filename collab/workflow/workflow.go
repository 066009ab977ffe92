// Package workflow executes DAGs of task/sequence/parallel/conditional/merge
// nodes against an externally supplied Executor, grounded on
// app/core/collaboration/workflow.py and engine/graph in the teacher repo.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeKind selects a WorkflowNode's dispatch behavior.
type NodeKind string

const (
	KindTask        NodeKind = "task"
	KindSequence    NodeKind = "sequence"
	KindParallel    NodeKind = "parallel"
	KindConditional NodeKind = "conditional"
	KindMerge       NodeKind = "merge"
)

// Status is a Node's or Definition's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Context is the shared, mutable key/value store threaded through a single
// workflow execution. Every successful TASK node's result is also recorded
// here under its node id; failed tasks are not. Safe for concurrent use by
// PARALLEL children.
type Context struct {
	mu   sync.Mutex
	data map[string]any
}

// NewContext creates a Context seeded from initial (nil treated as empty).
func NewContext(initial map[string]any) *Context {
	data := make(map[string]any, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &Context{data: data}
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores value under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Snapshot returns a shallow copy of the current key/value pairs.
func (c *Context) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Executor runs agentName against params and returns a result map, or an
// error. The workflow engine never inspects agent logic itself.
type Executor func(ctx context.Context, agentName string, params map[string]any) (map[string]any, error)

// Node is one vertex of a workflow DAG.
type Node struct {
	ID         string
	Name       string
	Kind       NodeKind
	AgentName  string
	TaskParams map[string]any
	Condition  string
	Children   []string
	Status     Status
	Result     map[string]any
}

// Definition is a named DAG of nodes. The first node added becomes RootID,
// which is immutable thereafter.
type Definition struct {
	ID       string
	Name     string
	Nodes    map[string]*Node
	RootID   string
	Status   Status
	Metadata map[string]any
}

// Result summarizes one execution of a Definition.
type Result struct {
	WorkflowID     string
	Success        bool
	NodeResults    map[string]map[string]any
	TotalDuration  time.Duration
	FailedNodes    []string
}

// Engine owns a set of workflow definitions and runs them against an
// Executor.
type Engine struct {
	mu          sync.Mutex
	definitions map[string]*Definition
	executor    Executor
	observer    func(event string, data map[string]any)
}

// NewEngine creates an Engine that dispatches TASK nodes through executor.
func NewEngine(executor Executor) *Engine {
	return &Engine{
		definitions: make(map[string]*Definition),
		executor:    executor,
	}
}

// SetObserver registers fn to be notified of TASK node lifecycle events
// (node.before / node.after); other node kinds emit no events. For
// observability only, grounded on the
// teacher's engine/hooks.Hook shape. The engine never logs on its own.
func (e *Engine) SetObserver(fn func(event string, data map[string]any)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = fn
}

func (e *Engine) notify(event string, data map[string]any) {
	e.mu.Lock()
	fn := e.observer
	e.mu.Unlock()
	if fn != nil {
		fn(event, data)
	}
}

// CreateWorkflow registers a new, empty Definition.
func (e *Engine) CreateWorkflow(name, description string, metadata map[string]any) *Definition {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	if description != "" {
		metadata["description"] = description
	}
	d := &Definition{
		ID:       uuid.NewString(),
		Name:     name,
		Nodes:    make(map[string]*Node),
		Status:   StatusPending,
		Metadata: metadata,
	}
	e.mu.Lock()
	e.definitions[d.ID] = d
	e.mu.Unlock()
	return d
}

// Workflow returns the definition with the given id, or nil if unknown.
func (e *Engine) Workflow(id string) *Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.definitions[id]
}

// AddNode appends a node to workflow. The first node added becomes the
// workflow's root.
func (e *Engine) AddNode(workflow *Definition, name string, kind NodeKind, agentName string, taskParams map[string]any, condition string) *Node {
	n := &Node{
		ID:         uuid.NewString(),
		Name:       name,
		Kind:       kind,
		AgentName:  agentName,
		TaskParams: taskParams,
		Condition:  condition,
		Status:     StatusPending,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	workflow.Nodes[n.ID] = n
	if workflow.RootID == "" {
		workflow.RootID = n.ID
	}
	return n
}

// ConnectNodes adds child as a child of parent, in declared order. Duplicate
// connections are ignored. Returns false if either node is unknown.
func (e *Engine) ConnectNodes(workflow *Definition, parentID, childID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	parent, ok := workflow.Nodes[parentID]
	if !ok {
		return false
	}
	if _, ok := workflow.Nodes[childID]; !ok {
		return false
	}
	for _, c := range parent.Children {
		if c == childID {
			return true
		}
	}
	parent.Children = append(parent.Children, childID)
	return true
}

// execState accumulates node results and failure ids across a single
// Execute call. All fields are written by potentially concurrent PARALLEL
// children, so access is mutex-guarded.
type execState struct {
	mu          sync.Mutex
	nodeResults map[string]map[string]any
	failedNodes []string
}

func newExecState() *execState {
	return &execState{nodeResults: make(map[string]map[string]any)}
}

func (s *execState) recordResult(nodeID string, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeResults[nodeID] = result
}

func (s *execState) recordFailure(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedNodes = append(s.failedNodes, nodeID)
}

func (s *execState) failed(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.failedNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

func (s *execState) snapshot() (map[string]map[string]any, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make(map[string]map[string]any, len(s.nodeResults))
	for k, v := range s.nodeResults {
		results[k] = v
	}
	return results, append([]string(nil), s.failedNodes...)
}

// Execute runs workflow from its root with initialContext, returning the
// aggregate Result once every reachable node has terminated.
func (e *Engine) Execute(ctx context.Context, workflow *Definition, initialContext map[string]any) Result {
	start := time.Now()

	workflow.Status = StatusRunning
	wfCtx := NewContext(initialContext)
	state := newExecState()

	if workflow.RootID != "" {
		e.executeNode(ctx, workflow, workflow.RootID, wfCtx, state)
	}

	nodeResults, failedNodes := state.snapshot()
	success := len(failedNodes) == 0
	if success {
		workflow.Status = StatusCompleted
	} else {
		workflow.Status = StatusFailed
	}

	return Result{
		WorkflowID:    workflow.ID,
		Success:       success,
		NodeResults:   nodeResults,
		TotalDuration: time.Since(start),
		FailedNodes:   failedNodes,
	}
}

func (e *Engine) executeNode(ctx context.Context, workflow *Definition, nodeID string, wfCtx *Context, state *execState) {
	node, ok := workflow.Nodes[nodeID]
	if !ok {
		return
	}
	node.Status = StatusRunning

	switch node.Kind {
	case KindSequence:
		e.executeSequence(ctx, workflow, node, wfCtx, state)
	case KindParallel:
		e.executeParallel(ctx, workflow, node, wfCtx, state)
	case KindConditional:
		e.executeConditional(ctx, workflow, node, wfCtx, state)
	case KindMerge:
		e.executeMerge(ctx, workflow, node, wfCtx, state)
	default:
		e.executeTask(ctx, node, wfCtx, state)
	}
}

func (e *Engine) executeTask(ctx context.Context, node *Node, wfCtx *Context, state *execState) {
	e.notify("node.before", map[string]any{"node_id": node.ID, "name": node.Name, "agent": node.AgentName})

	if e.executor == nil || node.AgentName == "" {
		fail(node, state, fmt.Errorf("task node %q missing executor or agent_name", node.Name))
		e.notify("node.after", map[string]any{"node_id": node.ID, "status": node.Status})
		return
	}

	params := make(map[string]any, len(node.TaskParams)+1)
	for k, v := range node.TaskParams {
		params[k] = v
	}
	params["_context"] = wfCtx.Snapshot()

	result, err := e.executor(ctx, node.AgentName, params)
	if err != nil {
		fail(node, state, err)
		e.notify("node.after", map[string]any{"node_id": node.ID, "status": node.Status})
		return
	}

	node.Status = StatusCompleted
	node.Result = result
	state.recordResult(node.ID, result)
	wfCtx.Set(node.ID, result)
	e.notify("node.after", map[string]any{"node_id": node.ID, "status": node.Status})
}

func fail(node *Node, state *execState, err error) {
	node.Status = StatusFailed
	result := map[string]any{"error": err.Error()}
	node.Result = result
	state.recordResult(node.ID, result)
	state.recordFailure(node.ID)
}

func (e *Engine) executeSequence(ctx context.Context, workflow *Definition, node *Node, wfCtx *Context, state *execState) {
	for _, childID := range node.Children {
		e.executeNode(ctx, workflow, childID, wfCtx, state)
		if state.failed(childID) {
			node.Status = StatusFailed
			state.recordFailure(node.ID)
			return
		}
	}
	node.Status = StatusCompleted
}

// executeMerge runs every child in order like executeSequence but does not
// short-circuit on the first failure: every child dispatches regardless of
// earlier failures, and the merge node fails if any child failed.
func (e *Engine) executeMerge(ctx context.Context, workflow *Definition, node *Node, wfCtx *Context, state *execState) {
	anyFailed := false
	for _, childID := range node.Children {
		e.executeNode(ctx, workflow, childID, wfCtx, state)
		if state.failed(childID) {
			anyFailed = true
		}
	}
	if anyFailed {
		node.Status = StatusFailed
		state.recordFailure(node.ID)
		return
	}
	node.Status = StatusCompleted
}

func (e *Engine) executeParallel(ctx context.Context, workflow *Definition, node *Node, wfCtx *Context, state *execState) {
	var wg sync.WaitGroup
	for _, childID := range node.Children {
		childID := childID
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.executeNode(ctx, workflow, childID, wfCtx, state)
		}()
	}
	wg.Wait()

	anyFailed := false
	for _, childID := range node.Children {
		if state.failed(childID) {
			anyFailed = true
			break
		}
	}
	if anyFailed {
		node.Status = StatusFailed
		state.recordFailure(node.ID)
		return
	}
	node.Status = StatusCompleted
}

func (e *Engine) executeConditional(ctx context.Context, workflow *Definition, node *Node, wfCtx *Context, state *execState) {
	met := evaluateCondition(node.Condition, wfCtx)

	var branch string
	switch {
	case met && len(node.Children) >= 1:
		branch = node.Children[0]
	case !met && len(node.Children) >= 2:
		branch = node.Children[1]
	default:
		node.Status = StatusCompleted
		return
	}

	e.executeNode(ctx, workflow, branch, wfCtx, state)
	if state.failed(branch) {
		node.Status = StatusFailed
		state.recordFailure(node.ID)
		return
	}
	node.Status = StatusCompleted
}

// evaluateCondition implements the three supported condition shapes: empty
// (always true), "key" (truthy lookup), and "key == value" (string equality
// after trimming).
func evaluateCondition(condition string, wfCtx *Context) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true
	}

	if idx := strings.Index(condition, "=="); idx != -1 {
		key := strings.TrimSpace(condition[:idx])
		want := strings.TrimSpace(condition[idx+2:])
		actual := ""
		if got, ok := wfCtx.Get(key); ok {
			actual = fmt.Sprintf("%v", got)
		}
		return actual == want
	}

	val, ok := wfCtx.Get(condition)
	if !ok {
		return false
	}
	return truthy(val)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case nil:
		return false
	case int:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}

// PauseWorkflow sets workflow's status to paused, but only from running.
// Returns false otherwise. Does not interrupt in-flight executor calls.
func (e *Engine) PauseWorkflow(workflow *Definition) bool {
	if workflow.Status != StatusRunning {
		return false
	}
	workflow.Status = StatusPaused
	return true
}

// CancelWorkflow sets workflow's status to cancelled from any non-terminal
// status. Does not interrupt in-flight executor calls.
func (e *Engine) CancelWorkflow(workflow *Definition) bool {
	switch workflow.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return false
	}
	workflow.Status = StatusCancelled
	return true
}
