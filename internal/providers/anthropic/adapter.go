// Package anthropic adapts the Anthropic Messages tool-use protocol to the
// provider-neutral agent contract.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/agent"
)

const defaultMaxTokens = 4096

// MessagesAPI is the slice of the Anthropic SDK the adapter uses.
type MessagesAPI interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Adapter implements agent.Adapter over the Anthropic Messages API.
type Adapter struct {
	messages MessagesAPI
	logger   *zap.Logger
}

// New builds an adapter with a real API client.
func New(apiKey string, logger *zap.Logger) *Adapter {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewWithMessages(&client.Messages, logger)
}

// NewWithMessages injects the messages service, mainly for tests.
func NewWithMessages(messages MessagesAPI, logger *zap.Logger) *Adapter {
	return &Adapter{messages: messages, logger: logger}
}

func (a *Adapter) Provider() string { return "anthropic" }

// Step executes one model turn.
func (a *Adapter) Step(ctx context.Context, req agent.StepRequest) (*agent.TurnOutput, error) {
	params := sdk.MessageNewParams{
		MaxTokens: defaultMaxTokens,
		Model:     sdk.Model(req.Model),
		Messages:  buildMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if !req.ForceAnswer {
		params.Tools = buildTools(req.Tools)
	}

	msg, err := a.messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	out := &agent.TurnOutput{}
	out.Usage.InputTokens = int(msg.Usage.InputTokens)
	out.Usage.OutputTokens = int(msg.Usage.OutputTokens)
	out.Usage.TotalTokens = int(msg.Usage.InputTokens + msg.Usage.OutputTokens)

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			call := agent.ToolCall{ID: block.ID, Name: block.Name}
			if raw, merr := json.Marshal(map[string]any{
				"type":  "tool_use",
				"name":  block.Name,
				"input": block.Input,
			}); merr == nil {
				call.Raw = raw
			}
			if len(block.Input) > 0 {
				if uerr := json.Unmarshal(block.Input, &call.Args); uerr != nil {
					a.logger.Debug("tool use input not parseable",
						zap.String("tool", block.Name), zap.Error(uerr))
				}
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	out.Terminal = len(out.ToolCalls) == 0
	return out, nil
}

// buildMessages converts the neutral transcript. Consecutive tool results
// are folded into a single user message, as the Messages API requires.
func buildMessages(msgs []agent.Message) []sdk.MessageParam {
	var (
		params      []sdk.MessageParam
		toolResults []sdk.ContentBlockParamUnion
	)
	flushResults := func() {
		if len(toolResults) > 0 {
			params = append(params, sdk.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case agent.RoleUser:
			flushResults()
			params = append(params, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case agent.RoleAssistant:
			flushResults()
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input, _ := json.Marshal(tc.Args)
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, json.RawMessage(input), tc.Name))
			}
			params = append(params, sdk.NewAssistantMessage(blocks...))
		case agent.RoleTool:
			toolResults = append(toolResults, sdk.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		}
	}
	flushResults()
	return params
}

func buildTools(defs []agent.ToolDef) []sdk.ToolUnionParam {
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := sdk.ToolInputSchemaParam{}
		if len(d.InputSchema) > 0 {
			schema.ExtraFields = d.InputSchema
		}
		tool := sdk.ToolUnionParamOfTool(schema, d.Name)
		if tool.OfTool != nil && d.Description != "" {
			tool.OfTool.Description = sdk.String(d.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func classifyError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized ||
			apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", agent.ErrVendorAuth, err)
		case apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", agent.ErrVendorTransient, err)
		default:
			return err
		}
	}
	return fmt.Errorf("%w: %v", agent.ErrVendorTransient, err)
}
