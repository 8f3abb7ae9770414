package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/gateway"
	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/retry"
)

type scriptedAdapter struct {
	provider string
	step     func(call int, req StepRequest) (*TurnOutput, error)
	calls    atomic.Int32
}

func (a *scriptedAdapter) Provider() string { return a.provider }

func (a *scriptedAdapter) Step(ctx context.Context, req StepRequest) (*TurnOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.step(int(a.calls.Add(1)), req)
}

type fakeGateway struct {
	invocations atomic.Int32
	invoke      func(tool string, args map[string]any) (*gateway.ToolResult, error)
}

func (g *fakeGateway) Invoke(ctx context.Context, tool string, args map[string]any) (*gateway.ToolResult, error) {
	g.invocations.Add(1)
	if g.invoke != nil {
		return g.invoke(tool, args)
	}
	return &gateway.ToolResult{Tool: tool, Data: json.RawMessage(`{"results":[]}`)}, nil
}

func (g *fakeGateway) Specs() []gateway.ToolSpec {
	return []gateway.ToolSpec{{Name: "web_search", Description: "search"}}
}

func testTask() models.AgentTask {
	return models.AgentTask{
		ID:         "t1",
		Provider:   "openai",
		Model:      "gpt-4o",
		Segment:    "precision fermentation",
		TurnBudget: 3,
		ToolBudget: 5,
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func searchCall(id string) ToolCall {
	return ToolCall{ID: id, Name: "web_search", Args: map[string]any{"query": "x"}}
}

func TestRun_TurnBudgetExhaustedIsPartial(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: "openai",
		step: func(call int, req StepRequest) (*TurnOutput, error) {
			return &TurnOutput{
				Text:      fmt.Sprintf("still researching, turn %d", call),
				ToolCalls: []ToolCall{searchCall(fmt.Sprintf("c%d", call))},
				Usage:     models.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
			}, nil
		},
	}
	r := NewRunner(adapter, &fakeGateway{}, testPolicy(), zap.NewNop())

	res := r.Run(context.Background(), testTask())
	require.Equal(t, models.RunPartial, res.Status)
	require.Equal(t, 0, res.RetryCount)
	require.NotEmpty(t, res.RawText)
	require.Equal(t, 3, res.Turns)
	require.Equal(t, 45, res.Usage.TotalTokens)
}

func TestRun_FinalTurnForcesAnswer(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: "openai",
		step: func(call int, req StepRequest) (*TurnOutput, error) {
			if call < 3 {
				require.False(t, req.ForceAnswer)
				require.NotEmpty(t, req.Tools)
				return &TurnOutput{ToolCalls: []ToolCall{searchCall(fmt.Sprintf("c%d", call))}}, nil
			}
			// Last budgeted turn: converge, no tools offered.
			require.True(t, req.ForceAnswer)
			require.Empty(t, req.Tools)
			return &TurnOutput{Text: `{"companies":[]}`, Terminal: true}, nil
		},
	}
	r := NewRunner(adapter, &fakeGateway{}, testPolicy(), zap.NewNop())

	res := r.Run(context.Background(), testTask())
	require.Equal(t, models.RunCompleted, res.Status)
	require.Equal(t, `{"companies":[]}`, res.RawText)
	require.Equal(t, 2, res.ToolUsage["web_search"])
}

func TestRun_ToolBudgetStopsNewCalls(t *testing.T) {
	gw := &fakeGateway{}
	adapter := &scriptedAdapter{
		provider: "openai",
		step: func(call int, req StepRequest) (*TurnOutput, error) {
			if call == 1 {
				return &TurnOutput{ToolCalls: []ToolCall{
					searchCall("c1"), searchCall("c2"), searchCall("c3"),
				}}, nil
			}
			// Budget of 2 is spent, so this turn must be a convergence turn.
			require.True(t, req.ForceAnswer)
			return &TurnOutput{Text: "done", Terminal: true}, nil
		},
	}
	task := testTask()
	task.ToolBudget = 2
	r := NewRunner(adapter, gw, testPolicy(), zap.NewNop())

	res := r.Run(context.Background(), task)
	require.Equal(t, models.RunCompleted, res.Status)
	require.Equal(t, int32(2), gw.invocations.Load(), "third call exceeds the budget and must not reach the gateway")
	require.Equal(t, 3, res.ToolUsage["web_search"], "tally counts issued calls, dispatched or not")
}

func TestRun_TransientFailureRetriedThenCompletes(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: "anthropic",
		step: func(call int, req StepRequest) (*TurnOutput, error) {
			if call == 1 {
				return nil, fmt.Errorf("%w: 529 overloaded", ErrVendorTransient)
			}
			return &TurnOutput{Text: `{"companies":[]}`, Terminal: true}, nil
		},
	}
	r := NewRunner(adapter, &fakeGateway{}, testPolicy(), zap.NewNop())

	res := r.Run(context.Background(), testTask())
	require.Equal(t, models.RunCompleted, res.Status)
	require.Equal(t, 1, res.RetryCount)
}

func TestRun_AuthFailureIsFailed(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: "openai",
		step: func(call int, req StepRequest) (*TurnOutput, error) {
			return nil, fmt.Errorf("%w: invalid api key", ErrVendorAuth)
		},
	}
	r := NewRunner(adapter, &fakeGateway{}, testPolicy(), zap.NewNop())

	res := r.Run(context.Background(), testTask())
	require.Equal(t, models.RunFailed, res.Status)
	require.Equal(t, int32(1), adapter.calls.Load(), "auth failures must not be retried")
	require.NotEmpty(t, res.Errors)
}

func TestRun_CancelBetweenTurnsYieldsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &scriptedAdapter{
		provider: "openai",
		step: func(call int, req StepRequest) (*TurnOutput, error) {
			cancel() // cancellation lands while a turn is in flight
			return &TurnOutput{
				Text:      "partial findings so far",
				ToolCalls: []ToolCall{searchCall("c1")},
			}, nil
		},
	}
	r := NewRunner(adapter, &fakeGateway{}, testPolicy(), zap.NewNop())

	res := r.Run(ctx, testTask())
	require.Equal(t, models.RunPartial, res.Status)
	require.Equal(t, "partial findings so far", res.RawText)
}

func TestRun_ToolFailureFedBackNotFatal(t *testing.T) {
	gw := &fakeGateway{
		invoke: func(tool string, args map[string]any) (*gateway.ToolResult, error) {
			return nil, fmt.Errorf("%w: host down", gateway.ErrUpstream)
		},
	}
	adapter := &scriptedAdapter{
		provider: "openai",
		step: func(call int, req StepRequest) (*TurnOutput, error) {
			if call == 1 {
				return &TurnOutput{ToolCalls: []ToolCall{searchCall("c1")}}, nil
			}
			// The failure comes back as an error tool message.
			last := req.Messages[len(req.Messages)-1]
			require.Equal(t, RoleTool, last.Role)
			require.True(t, last.IsError)
			return &TurnOutput{Text: "done without that source", Terminal: true}, nil
		},
	}
	r := NewRunner(adapter, gw, testPolicy(), zap.NewNop())

	res := r.Run(context.Background(), testTask())
	require.Equal(t, models.RunCompleted, res.Status)
}
