package sentinel

import (
	"context"
	"errors"
	"testing"
)

// orderProcessor records the order its hooks run in.
type orderProcessor struct {
	id    string
	log   *[]string
	preE  error
	postE error
}

func (p *orderProcessor) PreLLM(context.Context, *ChatRequest) error {
	*p.log = append(*p.log, p.id+":pre")
	return p.preE
}

func (p *orderProcessor) PostLLM(context.Context, *ChatResponse) error {
	*p.log = append(*p.log, p.id+":post")
	return p.postE
}

func TestProcessorChainOrder(t *testing.T) {
	var log []string
	chain := NewProcessorChain()
	chain.Add(&orderProcessor{id: "a", log: &log})
	chain.Add(&orderProcessor{id: "b", log: &log})

	if err := chain.RunPreLLM(context.Background(), &ChatRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := chain.RunPostLLM(context.Background(), &ChatResponse{}); err != nil {
		t.Fatal(err)
	}

	want := []string{"a:pre", "b:pre", "a:post", "b:post"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestProcessorChainStopsOnError(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	chain := NewProcessorChain()
	chain.Add(&orderProcessor{id: "a", log: &log, preE: boom})
	chain.Add(&orderProcessor{id: "b", log: &log})

	err := chain.RunPreLLM(context.Background(), &ChatRequest{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if len(log) != 1 {
		t.Errorf("second processor ran after error: %v", log)
	}
}

func TestProcessorChainPanicsOnNonProcessor(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Add accepted a value implementing no processor interface")
		}
	}()
	NewProcessorChain().Add(struct{}{})
}

func TestErrHaltDetection(t *testing.T) {
	var halt *ErrHalt
	err := error(&ErrHalt{Response: "stop"})
	if !errors.As(err, &halt) {
		t.Fatal("errors.As failed on ErrHalt")
	}
	if halt.Response != "stop" {
		t.Errorf("Response = %q", halt.Response)
	}
}

func TestPostToolHook(t *testing.T) {
	chain := NewProcessorChain()
	chain.Add(&redactingPostTool{})

	result := ToolResult{Content: "secret data"}
	if err := chain.RunPostTool(context.Background(), ToolCall{Name: "echo"}, &result); err != nil {
		t.Fatal(err)
	}
	if result.Content != "[redacted]" {
		t.Errorf("Content = %q", result.Content)
	}
}

type redactingPostTool struct{}

func (redactingPostTool) PostTool(_ context.Context, _ ToolCall, result *ToolResult) error {
	result.Content = "[redacted]"
	return nil
}
