package sentinel

import (
	"context"
	"log/slog"
)

const defaultMaxIter = 10

// LLMAgent is an Agent that uses an LLM with tools to complete tasks.
// Optionally keeps per-thread conversation history when configured via
// WithConversationMemory.
type LLMAgent struct {
	name          string
	description   string
	provider      Provider
	tools         *ToolRegistry
	processors    *ProcessorChain
	systemPrompt  string
	maxIter       int
	dynamicPrompt PromptFunc
	tracer        Tracer
	logger        *slog.Logger
	mem           agentMemory
}

// NewLLMAgent creates an LLMAgent with the given provider and options.
func NewLLMAgent(name, description string, provider Provider, opts ...AgentOption) *LLMAgent {
	cfg := buildConfig(opts)
	a := &LLMAgent{
		name:         name,
		description:  description,
		provider:     provider,
		tools:        NewToolRegistry(),
		processors:   NewProcessorChain(),
		systemPrompt: cfg.prompt,
		maxIter:      defaultMaxIter,
		mem: agentMemory{
			store:      cfg.store,
			embedding:  cfg.embedding,
			maxHistory: cfg.maxHistory,
			logger:     cfg.logger,
		},
	}
	if cfg.maxIter > 0 {
		a.maxIter = cfg.maxIter
	}
	for _, t := range cfg.tools {
		a.tools.Add(t)
	}
	for _, p := range cfg.processors {
		a.processors.Add(p)
	}
	a.dynamicPrompt = cfg.dynamicPrompt
	a.tracer = cfg.tracer
	a.logger = cfg.logger
	return a
}

func (a *LLMAgent) Name() string        { return a.name }
func (a *LLMAgent) Description() string { return a.description }

// Execute runs the tool-calling loop until the LLM produces a final text response.
func (a *LLMAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	ctx = WithTaskContext(ctx, task)

	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "agent.execute",
			StringAttr("agent.name", a.name),
			StringAttr("agent.type", "LLMAgent"))
		defer span.End()

		a.logger.Info("agent started", "agent", a.name)
		result, err := runLoop(ctx, a.buildLoopConfig(ctx, task), task)

		span.SetAttr(
			IntAttr("tokens.input", result.Usage.InputTokens),
			IntAttr("tokens.output", result.Usage.OutputTokens))
		if err != nil {
			span.Error(err)
			span.SetAttr(StringAttr("agent.status", "error"))
		} else {
			span.SetAttr(StringAttr("agent.status", "ok"))
		}
		a.logger.Info("agent completed", "agent", a.name,
			"status", statusStr(err),
			"tokens.input", result.Usage.InputTokens,
			"tokens.output", result.Usage.OutputTokens)
		return result, err
	}
	return runLoop(ctx, a.buildLoopConfig(ctx, task), task)
}

func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// buildLoopConfig wires LLMAgent fields into a loopConfig for runLoop.
// Resolves the dynamic prompt when configured.
func (a *LLMAgent) buildLoopConfig(ctx context.Context, task AgentTask) loopConfig {
	prompt := a.systemPrompt
	if a.dynamicPrompt != nil {
		prompt = a.dynamicPrompt(ctx, task)
	}

	return loopConfig{
		name:         "agent:" + a.name,
		provider:     a.provider,
		tools:        a.tools.AllDefinitions(),
		processors:   a.processors,
		maxIter:      a.maxIter,
		mem:          &a.mem,
		dispatch:     a.makeDispatch(a.tools.Execute),
		systemPrompt: prompt,
		tracer:       a.tracer,
		logger:       a.logger,
	}
}

// makeDispatch returns a DispatchFunc that executes tools via the given
// executor function. Tool failures come back as error strings so they feed
// into the model as conversational input instead of aborting the request.
func (a *LLMAgent) makeDispatch(executeTool toolExecFunc) DispatchFunc {
	return func(ctx context.Context, tc ToolCall) DispatchResult {
		result, execErr := executeTool(ctx, tc.Name, tc.Args)
		content := result.Content
		isErr := false
		if execErr != nil {
			content = "error: " + execErr.Error()
			isErr = true
		} else if result.Error != "" {
			content = "error: " + result.Error
			isErr = true
		}
		return DispatchResult{Content: content, IsError: isErr}
	}
}

// compile-time check
var _ Agent = (*LLMAgent)(nil)
