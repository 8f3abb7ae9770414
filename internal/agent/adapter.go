// Package agent drives one LLM-backed research loop per task: repeated turns
// of tool calling through the gateway under hard turn/tool budgets, with the
// whole run wrapped in a retry policy for transient vendor failures.
package agent

import (
	"context"
	"encoding/json"

	"github.com/meridianvc/scout/internal/models"
)

// Role identifies who produced a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool request issued by the model in a turn. Raw preserves
// the vendor payload so the usage tally can recover a name when the adapter
// could not map the shape.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
	Raw  json.RawMessage
}

// Message is one entry in the provider-neutral conversation transcript.
// Adapters translate to and from their vendor's wire shapes.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall // assistant messages only

	// Tool result fields (RoleTool only).
	ToolCallID string
	ToolName   string
	IsError    bool
}

// ToolDef advertises one gateway tool to the model.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// StepRequest is one model turn.
type StepRequest struct {
	Model    string
	System   string
	Messages []Message
	Tools    []ToolDef

	// ForceAnswer signals a convergence turn: no tools are offered and
	// the model is instructed to produce its final answer now.
	ForceAnswer bool
}

// TurnOutput is the adapter-neutral result of one model turn.
type TurnOutput struct {
	Text      string
	ToolCalls []ToolCall
	Usage     models.TokenUsage

	// Terminal is true when the model finished without requesting tools.
	Terminal bool
}

// Adapter abstracts one LLM vendor's conversation and tool-calling protocol.
// Implementations classify failures with ErrVendorAuth / ErrVendorTransient
// so the runner's retry policy can tell them apart.
type Adapter interface {
	Provider() string
	Step(ctx context.Context, req StepRequest) (*TurnOutput, error)
}
