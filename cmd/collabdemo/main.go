// Command collabdemo wires the six collaboration-core subsystems together in
// a single scenario: a team negotiates a task via Contract Net, the winner's
// plan is voted on by consensus, the whole team rendezvous at a barrier, and
// a workflow executes the agreed plan while publishing status on the bus.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/atlasmesh/collabcore/collab/bus"
	"github.com/atlasmesh/collabcore/collab/consensus"
	"github.com/atlasmesh/collabcore/collab/coordination"
	"github.com/atlasmesh/collabcore/collab/negotiation"
	"github.com/atlasmesh/collabcore/collab/snapshot"
	"github.com/atlasmesh/collabcore/collab/team"
	"github.com/atlasmesh/collabcore/collab/workflow"
)

func main() {
	ctx := context.Background()

	store, err := snapshot.New(":memory:")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	messageBus := bus.New(0)
	board := coordination.NewBlackboard(0)
	teams := team.NewManager()
	negotiations := negotiation.NewManager()
	votes := consensus.NewBuilder()

	for _, name := range []string{"architect", "developer", "reviewer"} {
		messageBus.RegisterAgent(name)
	}

	teams.RegisterAgent("architect", []string{"architecture", "planning"}, 0.1)
	teams.RegisterAgent("developer", []string{"coding", "testing"}, 0.3)
	teams.RegisterAgent("reviewer", []string{"code_review"}, 0.2)

	negotiations.RegisterCapabilities("architect", []string{"architecture", "planning"})
	negotiations.RegisterCapabilities("developer", []string{"coding", "testing"})
	negotiations.RegisterCapabilities("reviewer", []string{"code_review"})

	fmt.Println("=== Contract Net: who designs the API? ===")
	cfp := negotiations.CreateCFP("architect", "design the user-management API", []string{"architecture"}, nil, 30)
	negotiations.SubmitBid(cfp.ID, "architect", 20, 0.9, 15, nil)
	negotiations.SubmitBid(cfp.ID, "developer", 10, 0.4, 5, nil)
	winner := negotiations.EvaluateBids(cfp.ID)
	fmt.Printf("  winner: %s\n", winner)
	negotiations.CompleteNegotiation(cfp.ID)

	fmt.Println("\n=== Consensus: approve the design ===")
	session := votes.CreateSession("approve design", consensus.MethodMajority, 0.5)
	votes.CastVote(session.ID, "architect", consensus.Approve, "authored it")
	votes.CastVote(session.ID, "developer", consensus.Approve, "looks buildable")
	votes.CastVote(session.ID, "reviewer", consensus.Reject, "needs more detail")
	result, _ := votes.Resolve(session.ID, 0)
	fmt.Printf("  result: %s\n", result)

	board.Write("design", "api-plan", "REST API for user management", winner)

	fmt.Println("\n=== Barrier: team rendezvous before kickoff ===")
	barrier := coordination.NewSyncBarrier("kickoff", 3)
	for _, name := range []string{"architect", "developer", "reviewer"} {
		complete := barrier.Arrive(name)
		fmt.Printf("  %s arrived (complete=%v)\n", name, complete)
	}

	fmt.Println("\n=== MutexLock: exclusive access to the shared repo ===")
	repoLock := coordination.NewMutexLock("repo")
	executor := func(ctx context.Context, agentName string, params map[string]any) (map[string]any, error) {
		if !repoLock.Acquire(ctx, agentName, 2*time.Second) {
			return nil, fmt.Errorf("%s: could not acquire repo lock", agentName)
		}
		defer repoLock.Release(agentName)
		fmt.Printf("  %s holds the repo lock\n", agentName)
		time.Sleep(5 * time.Millisecond)
		messageBus.Publish(agentName, "status", map[string]any{"agent": agentName, "done": true})
		return map[string]any{"agent": agentName, "ok": true}, nil
	}

	fmt.Println("\n=== Workflow: execute the build pipeline (serialized by the repo lock) ===")
	engine := workflow.NewEngine(executor)
	wf := engine.CreateWorkflow("ship-feature", "architect, developer, reviewer run concurrently but share one repo lock", nil)
	root := engine.AddNode(wf, "pipeline", workflow.KindParallel, "", nil, "")
	design := engine.AddNode(wf, "design", workflow.KindTask, "architect", map[string]any{"step": "design"}, "")
	build := engine.AddNode(wf, "build", workflow.KindTask, "developer", map[string]any{"step": "build"}, "")
	review := engine.AddNode(wf, "review", workflow.KindTask, "reviewer", map[string]any{"step": "review"}, "")
	engine.ConnectNodes(wf, root.ID, design.ID)
	engine.ConnectNodes(wf, root.ID, build.ID)
	engine.ConnectNodes(wf, root.ID, review.ID)

	messageBus.Subscribe("architect", "status")
	wfResult := engine.Execute(ctx, wf, map[string]any{"feature": "user-management"})
	fmt.Printf("  success=%v duration=%s\n", wfResult.Success, wfResult.TotalDuration)

	if err := store.SaveBlackboardHistory(ctx, board.History(0)); err != nil {
		log.Fatal(err)
	}
	if err := store.SaveMessageLog(ctx, messageBus.MessageLog(0)); err != nil {
		log.Fatal(err)
	}
	if err := store.SaveWorkflowResult(ctx, wfResult); err != nil {
		log.Fatal(err)
	}

	rows, err := store.ListWorkflowResults(ctx, wf.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\n  persisted %d workflow result row(s) to the snapshot store\n", len(rows))
}
