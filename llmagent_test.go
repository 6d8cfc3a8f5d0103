package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLLMAgentNoTools(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{{Content: "hello there"}}}
	agent := NewLLMAgent("greeter", "greets people", provider)

	result, err := agent.Execute(context.Background(), AgentTask{Input: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != "hello there" {
		t.Errorf("Output = %q, want %q", result.Output, "hello there")
	}
}

func TestLLMAgentToolLoop(t *testing.T) {
	tool := &echoTool{reply: "syllabus says 40% final"}
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "echo", Args: json.RawMessage(`{"text":"grading"}`)}}},
		{Content: "The final is worth 40%."},
	}}

	agent := NewLLMAgent("advisor", "answers course questions", provider,
		WithTools(tool))

	result, err := agent.Execute(context.Background(), AgentTask{Input: "grading policy?"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != "The final is worth 40%." {
		t.Errorf("Output = %q", result.Output)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("tool called %d times, want 1", len(tool.calls))
	}

	// The second request must carry the tool result back to the model.
	req := provider.lastRequest()
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "tool" || last.Content != "syllabus says 40% final" {
		t.Errorf("tool result message = %+v", last)
	}
	if last.ToolCallID != "c1" {
		t.Errorf("ToolCallID = %q, want c1", last.ToolCallID)
	}
}

func TestLLMAgentToolErrorFeedsBack(t *testing.T) {
	tool := &echoTool{fail: "calendar unreachable"}
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "echo", Args: json.RawMessage(`{}`)}}},
		{Content: "Sorry, I could not reach the calendar."},
	}}

	agent := NewLLMAgent("calendar", "manages events", provider, WithTools(tool))

	result, err := agent.Execute(context.Background(), AgentTask{Input: "add event"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output == "" {
		t.Error("expected a final response after tool error")
	}

	req := provider.lastRequest()
	last := req.Messages[len(req.Messages)-1]
	if !strings.HasPrefix(last.Content, "error: ") {
		t.Errorf("tool error not surfaced to model: %q", last.Content)
	}
}

func TestLLMAgentMaxIterForcesSynthesis(t *testing.T) {
	tool := &echoTool{reply: "partial result"}
	// Every tool-calling turn requests another tool call; the loop must stop
	// at maxIter and force a summary.
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "echo", Args: json.RawMessage(`{}`)}}},
		{ToolCalls: []ToolCall{{ID: "c2", Name: "echo", Args: json.RawMessage(`{}`)}}},
		{Content: "Here is what I found so far."},
	}}

	agent := NewLLMAgent("worker", "does work", provider,
		WithTools(tool), WithMaxIter(2))

	result, err := agent.Execute(context.Background(), AgentTask{Input: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != "Here is what I found so far." {
		t.Errorf("Output = %q", result.Output)
	}

	req := provider.lastRequest()
	var sawSynthesisNudge bool
	for _, m := range req.Messages {
		if m.Role == "user" && strings.Contains(m.Content, "used all available tool calls") {
			sawSynthesisNudge = true
		}
	}
	if !sawSynthesisNudge {
		t.Error("forced synthesis message missing from final request")
	}
}

func TestLLMAgentProviderError(t *testing.T) {
	provider := &mockProvider{err: errors.New("boom")}
	agent := NewLLMAgent("a", "d", provider)

	_, err := agent.Execute(context.Background(), AgentTask{Input: "hi"})
	if err == nil || err.Error() != "boom" {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestLLMAgentDynamicPrompt(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{{Content: "ok"}}}
	agent := NewLLMAgent("a", "d", provider,
		WithDynamicPrompt(func(_ context.Context, task AgentTask) string {
			return "prompt for " + task.TaskUserID()
		}))

	_, err := agent.Execute(context.Background(), AgentTask{
		Input:   "hi",
		Context: map[string]any{ContextUserID: "42"},
	})
	if err != nil {
		t.Fatal(err)
	}

	req := provider.lastRequest()
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "prompt for 42" {
		t.Errorf("system message = %+v", req.Messages[0])
	}
}

func TestLLMAgentConversationMemory(t *testing.T) {
	store := newMemStore()
	store.messages["thread1"] = []Message{
		{ID: "1", ThreadID: "thread1", Role: "user", Content: "earlier question"},
		{ID: "2", ThreadID: "thread1", Role: "assistant", Content: "earlier answer"},
	}

	provider := &mockProvider{responses: []ChatResponse{{Content: "new answer"}}}
	agent := NewLLMAgent("a", "d", provider,
		WithPrompt("be helpful"),
		WithConversationMemory(store, nil))

	result, err := agent.Execute(context.Background(), AgentTask{
		Input:   "new question",
		Context: map[string]any{ContextThreadID: "thread1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != "new answer" {
		t.Errorf("Output = %q", result.Output)
	}

	// system + 2 history + user input
	req := provider.lastRequest()
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(req.Messages) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(req.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if req.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, req.Messages[i].Role, role)
		}
	}

	// Persist happens in the background; poll until both messages land.
	deadline := time.Now().Add(2 * time.Second)
	for store.threadLen("thread1") < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("exchange not persisted, thread has %d messages", store.threadLen("thread1"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLLMAgentNoThreadSkipsPersist(t *testing.T) {
	store := newMemStore()
	provider := &mockProvider{responses: []ChatResponse{{Content: "ok"}}}
	agent := NewLLMAgent("a", "d", provider, WithConversationMemory(store, nil))

	if _, err := agent.Execute(context.Background(), AgentTask{Input: "hi"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(store.messages); got != 0 {
		t.Errorf("stored to %d threads without a thread id", got)
	}
}

// haltingProcessor halts every request with a canned response.
type haltingProcessor struct{ response string }

func (h *haltingProcessor) PreLLM(context.Context, *ChatRequest) error {
	return &ErrHalt{Response: h.response}
}

func TestLLMAgentProcessorHalt(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{{Content: "unreached"}}}
	agent := NewLLMAgent("a", "d", provider,
		WithProcessors(&haltingProcessor{response: "blocked"}))

	result, err := agent.Execute(context.Background(), AgentTask{Input: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != "blocked" {
		t.Errorf("Output = %q, want blocked", result.Output)
	}
	if len(provider.requests) != 0 {
		t.Error("provider should not be called after halt")
	}
}

func TestLLMAgentStepTraces(t *testing.T) {
	tool := &echoTool{reply: "data"}
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "echo", Args: json.RawMessage(`{"text":"q"}`)}}},
		{Content: "done"},
	}}
	agent := NewLLMAgent("a", "d", provider, WithTools(tool))

	result, err := agent.Execute(context.Background(), AgentTask{Input: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(result.Steps))
	}
	step := result.Steps[0]
	if step.Name != "echo" || step.Type != "tool" {
		t.Errorf("step = %+v", step)
	}
	if step.Output != "data" {
		t.Errorf("step output = %q", step.Output)
	}
}

func TestTruncateStr(t *testing.T) {
	if got := truncateStr("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := truncateStr("hello", 3); got != "hel" {
		t.Errorf("got %q", got)
	}
	// Rune-aware truncation.
	if got := truncateStr("héllo", 2); got != "hé" {
		t.Errorf("got %q", got)
	}
}

func TestTaskContextRoundTrip(t *testing.T) {
	task := AgentTask{Input: "hi", Context: map[string]any{ContextUserID: "42"}}
	ctx := WithTaskContext(context.Background(), task)

	got, ok := TaskFromContext(ctx)
	if !ok {
		t.Fatal("task not found in context")
	}
	if got.TaskUserID() != "42" {
		t.Errorf("TaskUserID = %q", got.TaskUserID())
	}

	if _, ok := TaskFromContext(context.Background()); ok {
		t.Error("empty context should not carry a task")
	}
}
