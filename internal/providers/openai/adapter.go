// Package openai adapts the OpenAI chat-completions tool-calling protocol to
// the provider-neutral agent contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/agent"
)

// Client is the slice of the OpenAI SDK the adapter uses.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Adapter implements agent.Adapter over the OpenAI API.
type Adapter struct {
	client Client
	logger *zap.Logger
}

// New builds an adapter with a real API client.
func New(apiKey string, logger *zap.Logger) *Adapter {
	return NewWithClient(openai.NewClient(apiKey), logger)
}

// NewWithClient injects a client, mainly for tests.
func NewWithClient(client Client, logger *zap.Logger) *Adapter {
	return &Adapter{client: client, logger: logger}
}

func (a *Adapter) Provider() string { return "openai" }

// Step executes one model turn.
func (a *Adapter) Step(ctx context.Context, req agent.StepRequest) (*agent.TurnOutput, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: buildMessages(req),
	}
	if !req.ForceAnswer {
		chatReq.Tools = buildTools(req.Tools)
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", agent.ErrVendorTransient)
	}

	choice := resp.Choices[0]
	out := &agent.TurnOutput{
		Text: choice.Message.Content,
	}
	out.Usage.InputTokens = resp.Usage.PromptTokens
	out.Usage.OutputTokens = resp.Usage.CompletionTokens
	out.Usage.TotalTokens = resp.Usage.TotalTokens

	for _, tc := range choice.Message.ToolCalls {
		call := agent.ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if raw, merr := json.Marshal(tc); merr == nil {
			call.Raw = raw
		}
		if tc.Function.Arguments != "" {
			if uerr := json.Unmarshal([]byte(tc.Function.Arguments), &call.Args); uerr != nil {
				a.logger.Debug("tool call arguments not parseable",
					zap.String("tool", tc.Function.Name), zap.Error(uerr))
			}
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	out.Terminal = len(out.ToolCalls) == 0
	return out, nil
}

func buildMessages(req agent.StepRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case agent.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		case agent.RoleAssistant:
			om := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			msgs = append(msgs, om)
		case agent.RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return msgs
}

func buildTools(defs []agent.ToolDef) []openai.Tool {
	tools := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return tools
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized ||
			apiErr.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", agent.ErrVendorAuth, err)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", agent.ErrVendorTransient, err)
		default:
			return err
		}
	}
	// Connection-level failures are transient.
	return fmt.Errorf("%w: %v", agent.ErrVendorTransient, err)
}
