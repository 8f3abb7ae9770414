package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/agent"
)

type stubMessages struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessages) New(_ context.Context, params sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = params
	return s.resp, s.err
}

func stepReq() agent.StepRequest {
	return agent.StepRequest{
		Model:  "claude-3-5-sonnet-latest",
		System: "you are an analyst",
		Messages: []agent.Message{
			{Role: agent.RoleUser, Content: "find companies"},
		},
		Tools: []agent.ToolDef{{
			Name:        "web_search",
			Description: "search the web",
			InputSchema: map[string]any{"type": "object"},
		}},
	}
}

func TestStep_TextTerminal(t *testing.T) {
	stub := &stubMessages{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "all done"}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 20, OutputTokens: 10},
	}}
	a := NewWithMessages(stub, zap.NewNop())

	out, err := a.Step(context.Background(), stepReq())
	require.NoError(t, err)
	require.True(t, out.Terminal)
	require.Equal(t, "all done", out.Text)
	require.Equal(t, 30, out.Usage.TotalTokens)

	require.Equal(t, sdk.Model("claude-3-5-sonnet-latest"), stub.lastParams.Model)
	require.Len(t, stub.lastParams.System, 1)
	require.Len(t, stub.lastParams.Tools, 1)
}

func TestStep_ToolUse(t *testing.T) {
	stub := &stubMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "let me look that up"},
			{Type: "tool_use", ID: "tu_1", Name: "web_search", Input: json.RawMessage(`{"query":"acme"}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}}
	a := NewWithMessages(stub, zap.NewNop())

	out, err := a.Step(context.Background(), stepReq())
	require.NoError(t, err)
	require.False(t, out.Terminal)
	require.Len(t, out.ToolCalls, 1)
	require.Equal(t, "tu_1", out.ToolCalls[0].ID)
	require.Equal(t, "web_search", out.ToolCalls[0].Name)
	require.Equal(t, "acme", out.ToolCalls[0].Args["query"])
	require.Equal(t, "web_search", agent.ExtractToolName(out.ToolCalls[0].Raw))
}

func TestStep_ForceAnswerOmitsTools(t *testing.T) {
	stub := &stubMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "final"}},
	}}
	a := NewWithMessages(stub, zap.NewNop())

	req := stepReq()
	req.ForceAnswer = true
	_, err := a.Step(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, stub.lastParams.Tools)
}

func TestStep_ToolResultsFoldIntoUserMessage(t *testing.T) {
	stub := &stubMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}},
	}}
	a := NewWithMessages(stub, zap.NewNop())

	req := stepReq()
	req.Messages = []agent.Message{
		{Role: agent.RoleUser, Content: "find companies"},
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{
			{ID: "tu_1", Name: "web_search", Args: map[string]any{"query": "a"}},
			{ID: "tu_2", Name: "web_search", Args: map[string]any{"query": "b"}},
		}},
		{Role: agent.RoleTool, ToolCallID: "tu_1", Content: `{"results":[]}`},
		{Role: agent.RoleTool, ToolCallID: "tu_2", Content: "failed", IsError: true},
	}
	_, err := a.Step(context.Background(), req)
	require.NoError(t, err)
	// user, assistant, then one combined user message with both results
	require.Len(t, stub.lastParams.Messages, 3)
}

func TestStep_ErrorClassification(t *testing.T) {
	stub := &stubMessages{err: errors.New("dial tcp: connection refused")}
	a := NewWithMessages(stub, zap.NewNop())

	_, err := a.Step(context.Background(), stepReq())
	require.ErrorIs(t, err, agent.ErrVendorTransient)
}
