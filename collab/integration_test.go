// Package collab_test exercises the six subsystems together: a negotiation
// decides who does the work, the team votes on the plan by consensus, the
// team rendezvous at a barrier, then a workflow carries out the winning
// agent's task.
package collab_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlasmesh/collabcore/collab/bus"
	"github.com/atlasmesh/collabcore/collab/consensus"
	"github.com/atlasmesh/collabcore/collab/coordination"
	"github.com/atlasmesh/collabcore/collab/negotiation"
	"github.com/atlasmesh/collabcore/collab/team"
	"github.com/atlasmesh/collabcore/collab/workflow"
)

func TestContractNetThenConsensusThenBarrierThenWorkflow(t *testing.T) {
	agents := []string{"alpha", "beta", "gamma"}

	messageBus := bus.New(0)
	teams := team.NewManager()
	negotiations := negotiation.NewManager()
	votes := consensus.NewBuilder()

	for _, name := range agents {
		messageBus.RegisterAgent(name)
	}
	teams.RegisterAgent("alpha", []string{"planning"}, 0.1)
	teams.RegisterAgent("beta", []string{"planning", "coding"}, 0.2)
	teams.RegisterAgent("gamma", []string{"coding"}, 0.1)
	negotiations.RegisterCapabilities("alpha", []string{"planning"})
	negotiations.RegisterCapabilities("beta", []string{"planning", "coding"})
	negotiations.RegisterCapabilities("gamma", []string{"coding"})

	tm := teams.CreateTeam("delivery", "ship the feature", []string{"coding"}, 3, nil)
	if teams.TeamLeader(tm.ID) == "" {
		t.Fatal("expected a leader to be promoted")
	}

	cfp := negotiations.CreateCFP("alpha", "implement the feature", []string{"coding"}, nil, 60)
	negotiations.SubmitBid(cfp.ID, "beta", 10, 0.95, 5, nil)
	negotiations.SubmitBid(cfp.ID, "gamma", 12, 0.4, 8, nil)
	winner := negotiations.EvaluateBids(cfp.ID)
	if winner != "beta" {
		t.Fatalf("expected beta to win on higher capability score, got %s", winner)
	}
	negotiations.CompleteNegotiation(cfp.ID)

	session := votes.CreateSession("approve assignment", consensus.MethodMajority, 0.5)
	for _, name := range agents {
		votes.CastVote(session.ID, name, consensus.Approve, "agreed")
	}
	result, resolved := votes.Resolve(session.ID, len(agents))
	if !resolved || result != consensus.Approve {
		t.Fatalf("expected approved consensus, got %s (resolved=%v)", result, resolved)
	}

	barrier := coordination.NewSyncBarrier("ready", len(agents))
	var complete bool
	for _, name := range agents {
		complete = barrier.Arrive(name)
	}
	if !complete {
		t.Fatal("expected barrier to complete once every agent arrives")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !barrier.Wait(ctx, 0) {
		t.Fatal("expected Wait to return immediately once complete")
	}

	repoLock := coordination.NewMutexLock("repo")
	var dispatched []string
	executor := func(ctx context.Context, agentName string, params map[string]any) (map[string]any, error) {
		if !repoLock.Acquire(ctx, agentName, time.Second) {
			return nil, context.DeadlineExceeded
		}
		defer repoLock.Release(agentName)
		dispatched = append(dispatched, agentName)
		return map[string]any{"done": true}, nil
	}
	engine := workflow.NewEngine(executor)
	wf := engine.CreateWorkflow("implement", "", nil)
	root := engine.AddNode(wf, "pipeline", workflow.KindSequence, "", nil, "")
	task := engine.AddNode(wf, "implement-feature", workflow.KindTask, winner, nil, "")
	engine.ConnectNodes(wf, root.ID, task.ID)

	wfResult := engine.Execute(context.Background(), wf, nil)
	if !wfResult.Success {
		t.Fatalf("expected workflow to succeed, failed nodes: %v", wfResult.FailedNodes)
	}
	if len(dispatched) != 1 || dispatched[0] != winner {
		t.Fatalf("expected the negotiation winner to execute the task, got %v", dispatched)
	}
}

func TestMutexLockSerializesConcurrentAgents(t *testing.T) {
	lock := coordination.NewMutexLock("repo")
	ctx := context.Background()

	if !lock.Acquire(ctx, "alpha", 0) {
		t.Fatal("expected alpha to acquire the free lock")
	}

	released := make(chan struct{})
	acquired := make(chan bool, 1)
	go func() {
		acquired <- lock.Acquire(ctx, "beta", time.Second)
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("expected beta to block while alpha holds the lock")
	case <-time.After(20 * time.Millisecond):
	}

	lock.Release("alpha")

	select {
	case ok := <-acquired:
		if !ok {
			t.Fatal("expected beta to acquire the lock once alpha released it")
		}
	case <-time.After(time.Second):
		t.Fatal("expected beta's acquire to unblock after release")
	}
	if lock.Holder() != "beta" {
		t.Fatalf("expected beta to hold the lock, got %q", lock.Holder())
	}
}
