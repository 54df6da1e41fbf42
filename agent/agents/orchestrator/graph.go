package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

func (o *Orchestrator) compileProcessGraph(
	ctx context.Context,
) (compose.Runnable[graphInput, contractx.OutboundReply], error) {
	graph := compose.NewGraph[graphInput, contractx.OutboundReply]()

	if err := graph.AddLambdaNode("validate_event",
		compose.InvokableLambda(func(ctx context.Context, in graphInput) (*graphState, error) {
			return validateEvent(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_event: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_rotate_session",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return loadOrRotateSession(ctx, in, o.store, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_rotate_session: %w", err)
	}

	if err := graph.AddLambdaNode("run_dispatch",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return runDispatch(ctx, in, o.loop)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_dispatch: %w", err)
	}

	if err := graph.AddLambdaNode("advance_state",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return advanceState(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node advance_state: %w", err)
	}

	if err := graph.AddLambdaNode("record_turn",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return recordTurn(ctx, in, o.recorder, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node record_turn: %w", err)
	}

	if err := graph.AddLambdaNode("persist_session",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return persistSession(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node persist_session: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (contractx.OutboundReply, error) {
			return finalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_event"},
		{"validate_event", "load_or_rotate_session"},
		{"load_or_rotate_session", "run_dispatch"},
		{"run_dispatch", "advance_state"},
		{"advance_state", "record_turn"},
		{"record_turn", "persist_session"},
		{"persist_session", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.process"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
