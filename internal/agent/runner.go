package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/gateway"
	"github.com/meridianvc/scout/internal/metrics"
	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/pricing"
	"github.com/meridianvc/scout/internal/retry"
)

// ToolGateway is the slice of the gateway the runner needs.
type ToolGateway interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (*gateway.ToolResult, error)
	Specs() []gateway.ToolSpec
}

// Runner executes AgentTasks against one vendor adapter.
type Runner struct {
	adapter Adapter
	gw      ToolGateway
	policy  retry.Policy
	logger  *zap.Logger
}

// NewRunner wires a vendor adapter to the tool gateway. The retry policy
// governs whole-run re-attempts on transient vendor failures.
func NewRunner(adapter Adapter, gw ToolGateway, policy retry.Policy, logger *zap.Logger) *Runner {
	policy.Retryable = IsRetryable
	return &Runner{adapter: adapter, gw: gw, policy: policy, logger: logger}
}

// Provider reports the vendor this runner is bound to.
func (r *Runner) Provider() string { return r.adapter.Provider() }

type runState struct {
	status  models.RunStatus
	rawText string
	tally   map[string]int
	turns   int
}

// Run drives one research loop to a terminal state. It always returns a
// result: budget exhaustion and cancellation yield Partial, vendor failures
// after the retry budget yield Failed. Errors never escape to the caller.
func (r *Runner) Run(ctx context.Context, task models.AgentTask) models.AgentRunResult {
	start := time.Now()
	provider := r.adapter.Provider()
	log := r.logger.With(
		zap.String("task_id", task.ID),
		zap.String("provider", provider),
		zap.String("segment", task.Segment))
	log.Info("agent run started",
		zap.Int("turn_budget", task.TurnBudget),
		zap.Int("tool_budget", task.ToolBudget))

	var (
		state    runState
		usage    models.TokenUsage
		attempts []string
	)
	retries, err := r.policy.Do(ctx, func() error {
		st, attemptUsage, aerr := r.attempt(ctx, task, log)
		usage.Add(attemptUsage)
		if aerr != nil {
			attempts = append(attempts, aerr.Error())
			return aerr
		}
		state = st
		return nil
	})

	usage.CostUSD = pricing.Cost(task.Model, usage.InputTokens, usage.OutputTokens)
	result := models.AgentRunResult{
		TaskID:     task.ID,
		Provider:   provider,
		Segment:    task.Segment,
		RetryCount: retries,
		Usage:      usage,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = models.RunFailed
		result.Errors = attempts
	} else {
		result.Status = state.status
		result.RawText = state.rawText
		result.ToolUsage = state.tally
		result.Turns = state.turns
	}

	metrics.AgentRuns.WithLabelValues(provider, string(result.Status)).Inc()
	metrics.AgentRunDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	metrics.AgentRunTokens.WithLabelValues(provider).Observe(float64(usage.TotalTokens))
	metrics.AgentRunCostUSD.WithLabelValues(provider).Observe(usage.CostUSD)

	log.Info("agent run finished",
		zap.String("status", string(result.Status)),
		zap.Int("turns", result.Turns),
		zap.Int("retries", retries),
		zap.Int("total_tokens", usage.TotalTokens))
	return result
}

// attempt runs one full conversation. Transient vendor failures are returned
// as errors for the whole-run retry policy; budget exhaustion and
// cancellation terminate the attempt normally with a Partial state.
func (r *Runner) attempt(ctx context.Context, task models.AgentTask, log *zap.Logger) (runState, models.TokenUsage, error) {
	state := runState{
		status: models.RunPartial,
		tally:  make(map[string]int),
	}
	var usage models.TokenUsage

	toolDefs := r.toolDefs()
	messages := []Message{{Role: RoleUser, Content: userPrompt(task)}}
	system := systemPrompt()
	toolsUsed := 0

	for turn := 1; turn <= task.TurnBudget; turn++ {
		if ctx.Err() != nil {
			return state, usage, nil
		}
		state.turns = turn

		force := turn == task.TurnBudget || toolsUsed >= task.ToolBudget
		req := StepRequest{
			Model:       task.Model,
			System:      system,
			Messages:    messages,
			ForceAnswer: force,
		}
		if !force {
			req.Tools = toolDefs
		}

		out, err := r.adapter.Step(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return state, usage, nil
			}
			return state, usage, err
		}
		usage.Add(out.Usage)
		if out.Text != "" {
			state.rawText = out.Text
		}

		if out.Terminal || len(out.ToolCalls) == 0 {
			state.status = models.RunCompleted
			return state, usage, nil
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   out.Text,
			ToolCalls: out.ToolCalls,
		})
		// Results are applied in the order the model issued the calls.
		for _, tc := range out.ToolCalls {
			messages = append(messages, r.resolveToolCall(ctx, tc, &toolsUsed, task.ToolBudget, state.tally, log))
		}
	}
	return state, usage, nil
}

func (r *Runner) resolveToolCall(ctx context.Context, tc ToolCall, toolsUsed *int, budget int, tally map[string]int, log *zap.Logger) Message {
	name := callName(tc)
	tally[name]++
	msg := Message{Role: RoleTool, ToolCallID: tc.ID, ToolName: name}

	if *toolsUsed >= budget {
		msg.Content = "tool budget exhausted; produce your final answer from findings so far"
		msg.IsError = true
		return msg
	}
	*toolsUsed++

	res, err := r.gw.Invoke(ctx, name, tc.Args)
	if err != nil {
		log.Debug("tool call failed", zap.String("tool", name), zap.Error(err))
		msg.Content = fmt.Sprintf("tool %s failed: %v", name, err)
		msg.IsError = true
		return msg
	}
	msg.Content = string(res.Data)
	return msg
}

func (r *Runner) toolDefs() []ToolDef {
	specs := r.gw.Specs()
	defs := make([]ToolDef, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, ToolDef{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	return defs
}

func systemPrompt() string {
	return "You are a venture research analyst. Discover companies matching the " +
		"given investment segment using the available lookup tools. Cite source " +
		"URLs for every claim. When done, answer with a single JSON object of the " +
		"form {\"companies\": [{\"company\", \"summary\", \"website\", " +
		"\"geography\", \"kpi_alignment\", \"sources\"}]}."
}

func userPrompt(task models.AgentTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research segment: %s\n", task.Segment)
	if len(task.SeedHints) > 0 {
		b.WriteString("Known relevant companies to anchor the search: ")
		b.WriteString(strings.Join(task.SeedHints, ", "))
		b.WriteString("\n")
	}
	b.WriteString("Find additional companies in this segment and report them as JSON.")
	return b.String()
}
