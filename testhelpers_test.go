package sentinel

import (
	"context"
	"encoding/json"
	"sync"
)

// mockProvider is a test Provider that returns canned responses in order.
type mockProvider struct {
	mu        sync.Mutex
	responses []ChatResponse
	idx       int
	requests  []ChatRequest // every request seen, in order
	toolDefs  [][]ToolDefinition
	err       error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	return m.record(req, nil)
}

func (m *mockProvider) ChatWithTools(_ context.Context, req ChatRequest, tools []ToolDefinition) (ChatResponse, error) {
	return m.record(req, tools)
}

func (m *mockProvider) record(req ChatRequest, tools []ToolDefinition) (ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.toolDefs = append(m.toolDefs, tools)
	if m.err != nil {
		return ChatResponse{}, m.err
	}
	if m.idx >= len(m.responses) {
		return ChatResponse{Content: "exhausted"}, nil
	}
	resp := m.responses[m.idx]
	m.idx++
	return resp, nil
}

// lastRequest returns the most recent request, or a zero value if none.
func (m *mockProvider) lastRequest() ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ChatRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// stubAgent is a minimal Agent for network tests.
type stubAgent struct {
	name string
	desc string
	fn   func(ctx context.Context, task AgentTask) (AgentResult, error)
}

func (s *stubAgent) Name() string        { return s.name }
func (s *stubAgent) Description() string { return s.desc }
func (s *stubAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	return s.fn(ctx, task)
}

// echoTool is a single-function tool that echoes its args back.
type echoTool struct {
	mu    sync.Mutex
	calls []json.RawMessage
	reply string
	fail  string // when set, Execute returns ToolResult{Error: fail}
}

func (e *echoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        "echo",
		Description: "Echoes input back.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
	}}
}

func (e *echoTool) Execute(_ context.Context, name string, args json.RawMessage) (ToolResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, args)
	if e.fail != "" {
		return ToolResult{Error: e.fail}, nil
	}
	if e.reply != "" {
		return ToolResult{Content: e.reply}, nil
	}
	return ToolResult{Content: string(args)}, nil
}

// memStore is an in-memory VectorStore for conversation memory tests.
type memStore struct {
	mu       sync.Mutex
	messages map[string][]Message // keyed by thread id
	getErr   error
}

func newMemStore() *memStore {
	return &memStore{messages: make(map[string][]Message)}
}

func (s *memStore) StoreMessage(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ThreadID] = append(s.messages[msg.ThreadID], msg)
	return nil
}

func (s *memStore) GetMessages(_ context.Context, threadID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	msgs := s.messages[threadID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memStore) StoreDocument(context.Context, Document, []Chunk) error { return nil }
func (s *memStore) SearchChunks(context.Context, []float32, int) ([]Chunk, error) {
	return nil, nil
}
func (s *memStore) Init(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

func (s *memStore) threadLen(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[threadID])
}

var _ VectorStore = (*memStore)(nil)
