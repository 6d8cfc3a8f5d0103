package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Network is an Agent that coordinates subagents and tools via an LLM router.
// The router sees subagents as callable tools ("agent_<name>") and decides
// which primitives to invoke, in what order, and with what data.
//
// Each delegation runs the specialist under a sub-thread id derived from the
// parent task's thread id (see SubThreadID), so specialist conversation
// memory is isolated per user session and per specialist.
type Network struct {
	name          string
	description   string
	router        Provider
	agents        map[string]Agent // keyed by name
	tools         *ToolRegistry
	processors    *ProcessorChain
	systemPrompt  string
	maxIter       int
	dynamicPrompt PromptFunc
	tracer        Tracer
	logger        *slog.Logger
	mem           agentMemory
}

// NewNetwork creates a Network with the given router provider and options.
func NewNetwork(name, description string, router Provider, opts ...AgentOption) *Network {
	cfg := buildConfig(opts)
	n := &Network{
		name:         name,
		description:  description,
		router:       router,
		agents:       make(map[string]Agent),
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
		n.maxIter = cfg.maxIter
	}
	for _, t := range cfg.tools {
		n.tools.Add(t)
	}
	for _, a := range cfg.agents {
		n.agents[a.Name()] = a
	}
	for _, p := range cfg.processors {
		n.processors.Add(p)
	}
	n.dynamicPrompt = cfg.dynamicPrompt
	n.tracer = cfg.tracer
	n.logger = cfg.logger
	return n
}

func (n *Network) Name() string        { return n.name }
func (n *Network) Description() string { return n.description }

// Execute runs the network's routing loop.
func (n *Network) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	ctx = WithTaskContext(ctx, task)
	return runLoop(ctx, n.buildLoopConfig(ctx, task), task)
}

// buildLoopConfig wires Network fields into a loopConfig for runLoop.
func (n *Network) buildLoopConfig(ctx context.Context, task AgentTask) loopConfig {
	prompt := n.systemPrompt
	if n.dynamicPrompt != nil {
		prompt = n.dynamicPrompt(ctx, task)
	}

	return loopConfig{
		name:         "network:" + n.name,
		provider:     n.router,
		tools:        n.buildToolDefs(),
		processors:   n.processors,
		maxIter:      n.maxIter,
		mem:          &n.mem,
		dispatch:     n.makeDispatch(task),
		systemPrompt: prompt,
		tracer:       n.tracer,
		logger:       n.logger,
	}
}

// makeDispatch returns a DispatchFunc that routes tool calls to subagents
// or direct tools. Subagent delegations rewrite the task context: the
// specialist's thread id is derived from the parent's via SubThreadID so
// each specialist keeps its own history scope.
func (n *Network) makeDispatch(parentTask AgentTask) DispatchFunc {
	return func(ctx context.Context, tc ToolCall) DispatchResult {
		// Agent call (prefixed with "agent_")
		if len(tc.Name) > 6 && tc.Name[:6] == "agent_" {
			agentName := tc.Name[6:]
			agent, ok := n.agents[agentName]
			if !ok {
				return DispatchResult{Content: fmt.Sprintf("error: unknown agent %q", agentName), IsError: true}
			}

			var params struct {
				Task string `json:"task"`
			}
			if err := json.Unmarshal(tc.Args, &params); err != nil {
				return DispatchResult{Content: "error: invalid agent call args: " + err.Error(), IsError: true}
			}

			n.logger.Info("delegating", "network", n.name, "agent", agentName, "task", truncateStr(params.Task, 80))

			result, err := agent.Execute(ctx, AgentTask{
				Input:   params.Task,
				Context: subTaskContext(parentTask, agentName),
			})
			if err != nil {
				return DispatchResult{Content: "error: " + err.Error(), IsError: true}
			}
			return DispatchResult{Content: result.Output, Usage: result.Usage}
		}

		// Regular tool call
		result, err := n.tools.Execute(ctx, tc.Name, tc.Args)
		if err != nil {
			return DispatchResult{Content: "error: " + err.Error(), IsError: true}
		}
		if result.Error != "" {
			return DispatchResult{Content: "error: " + result.Error, IsError: true}
		}
		return DispatchResult{Content: result.Content}
	}
}

// subTaskContext copies the parent task context and swaps the thread id for
// the specialist's derived sub-thread id. The parent map is never mutated.
func subTaskContext(parent AgentTask, agentName string) map[string]any {
	sub := make(map[string]any, len(parent.Context)+1)
	for k, v := range parent.Context {
		sub[k] = v
	}
	if parentThread := parent.TaskThreadID(); parentThread != "" {
		sub[ContextThreadID] = SubThreadID(parentThread, agentName)
	}
	return sub
}

// buildToolDefs builds tool definitions from subagents and direct tools.
func (n *Network) buildToolDefs() []ToolDefinition {
	var defs []ToolDefinition

	for name, agent := range n.agents {
		defs = append(defs, ToolDefinition{
			Name:        "agent_" + name,
			Description: agent.Description(),
			Parameters: json.RawMessage(
				`{"type":"object","properties":{"task":{"type":"string","description":"The user's original message, copied verbatim. Do not paraphrase, translate, or summarize."}},"required":["task"]}`,
			),
		})
	}

	defs = append(defs, n.tools.AllDefinitions()...)
	return defs
}

// compile-time check
var _ Agent = (*Network)(nil)
