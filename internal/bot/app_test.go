package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

type stubFrontend struct {
	mu     sync.Mutex
	msgs   chan sentinel.IncomingMessage
	sent   []string
	typing int
}

func newStubFrontend() *stubFrontend {
	return &stubFrontend{msgs: make(chan sentinel.IncomingMessage, 4)}
}

func (f *stubFrontend) Poll(_ context.Context) (<-chan sentinel.IncomingMessage, error) {
	return f.msgs, nil
}

func (f *stubFrontend) Send(_ context.Context, _ string, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return "m1", nil
}

func (f *stubFrontend) SendTyping(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *stubFrontend) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type stubStore struct {
	sentinel.VectorStore
	initCalled bool
}

func (s *stubStore) Init(_ context.Context) error {
	s.initCalled = true
	return nil
}

type recordingAgent struct {
	mu    sync.Mutex
	tasks []sentinel.AgentTask
	out   string
	err   error
}

func (a *recordingAgent) Name() string        { return "recorder" }
func (a *recordingAgent) Description() string { return "" }

func (a *recordingAgent) Execute(_ context.Context, task sentinel.AgentTask) (sentinel.AgentResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = append(a.tasks, task)
	if a.err != nil {
		return sentinel.AgentResult{}, a.err
	}
	return sentinel.AgentResult{Output: a.out}, nil
}

func (a *recordingAgent) gotTasks() []sentinel.AgentTask {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentinel.AgentTask(nil), a.tasks...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHandleRoutesReplyWithThreadContext(t *testing.T) {
	front := newStubFrontend()
	agent := &recordingAgent{out: "the exam is Friday"}
	store := &stubStore{}
	app := New(front, agent, store, sentinel.NewSessions(30*time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	front.msgs <- sentinel.IncomingMessage{ID: "1", ChatID: "chan-1", UserID: "alice", Text: "when is the exam"}

	waitFor(t, func() bool { return len(front.sentMessages()) == 1 })
	if got := front.sentMessages()[0]; got != "the exam is Friday" {
		t.Errorf("reply = %q", got)
	}
	if !store.initCalled {
		t.Error("store was not initialized")
	}

	tasks := agent.gotTasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.Input != "when is the exam" {
		t.Errorf("task input = %q", task.Input)
	}
	if task.TaskUserID() != "alice" || task.TaskChatID() != "chan-1" {
		t.Errorf("task context: %+v", task.Context)
	}
	if task.TaskThreadID() == "" {
		t.Error("task has no thread id")
	}

	cancel()
	<-done
}

func TestSameUserSameThreadWithinSession(t *testing.T) {
	front := newStubFrontend()
	agent := &recordingAgent{out: "ok"}
	app := New(front, agent, &stubStore{}, sentinel.NewSessions(30*time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.Run(ctx)

	front.msgs <- sentinel.IncomingMessage{ID: "1", ChatID: "c", UserID: "bob", Text: "first"}
	waitFor(t, func() bool { return len(agent.gotTasks()) == 1 })
	front.msgs <- sentinel.IncomingMessage{ID: "2", ChatID: "c", UserID: "bob", Text: "second"}
	waitFor(t, func() bool { return len(agent.gotTasks()) == 2 })

	tasks := agent.gotTasks()
	if tasks[0].TaskThreadID() != tasks[1].TaskThreadID() {
		t.Errorf("thread ids differ: %q vs %q", tasks[0].TaskThreadID(), tasks[1].TaskThreadID())
	}
}

func TestHandleAgentErrorSendsFallback(t *testing.T) {
	front := newStubFrontend()
	agent := &recordingAgent{err: context.DeadlineExceeded}
	app := New(front, agent, &stubStore{}, sentinel.NewSessions(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.Run(ctx)

	front.msgs <- sentinel.IncomingMessage{ID: "1", ChatID: "c", UserID: "u", Text: "hi"}
	waitFor(t, func() bool { return len(front.sentMessages()) == 1 })
	if got := front.sentMessages()[0]; got != "Something went wrong, please try again." {
		t.Errorf("fallback = %q", got)
	}
}

func TestHandleIgnoresEmptyText(t *testing.T) {
	front := newStubFrontend()
	agent := &recordingAgent{out: "never"}
	app := New(front, agent, &stubStore{}, sentinel.NewSessions(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.Run(ctx)

	front.msgs <- sentinel.IncomingMessage{ID: "1", ChatID: "c", UserID: "u", Text: ""}
	front.msgs <- sentinel.IncomingMessage{ID: "2", ChatID: "c", UserID: "u", Text: "real"}
	waitFor(t, func() bool { return len(agent.gotTasks()) == 1 })
	if agent.gotTasks()[0].Input != "real" {
		t.Errorf("unexpected task: %+v", agent.gotTasks())
	}
}

func TestRunStopsWhenPollChannelCloses(t *testing.T) {
	front := newStubFrontend()
	app := New(front, &recordingAgent{}, &stubStore{}, sentinel.NewSessions(time.Minute))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	close(front.msgs)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
