// Package bot wires a Frontend to the supervisor agent: it polls incoming
// messages, resolves each user's conversation thread, runs the agent, and
// sends the reply back.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

// defaultRequestTimeout bounds one end-to-end agent run. Routing plus a few
// specialist delegations and tool calls fit comfortably; anything longer is
// stuck.
const defaultRequestTimeout = 3 * time.Minute

// App connects a Frontend to an Agent. All routing, tool-calling, and
// conversation history are handled by the agent primitives (Network,
// LLMAgent); App only moves messages.
type App struct {
	frontend sentinel.Frontend
	agent    sentinel.Agent
	store    sentinel.VectorStore
	sessions *sentinel.Sessions
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an App.
type Option func(*App)

// WithRequestTimeout bounds each message's end-to-end handling.
func WithRequestTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets a structured logger for the app.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New creates an App.
func New(frontend sentinel.Frontend, agent sentinel.Agent, store sentinel.VectorStore, sessions *sentinel.Sessions, opts ...Option) *App {
	a := &App{
		frontend: frontend,
		agent:    agent,
		store:    store,
		sessions: sessions,
		timeout:  defaultRequestTimeout,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run starts the application: init the store, poll messages, dispatch each
// one to the agent on its own goroutine.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Init(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	msgs, err := a.frontend.Poll(ctx)
	if err != nil {
		return fmt.Errorf("frontend poll: %w", err)
	}

	a.logger.Info("sentinel: app running")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("sentinel: shutting down")
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			go a.handle(ctx, msg)
		}
	}
}

// RunWithSignal wraps Run with OS signal handling for graceful shutdown.
func (a *App) RunWithSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

// handle processes a single incoming message.
func (a *App) handle(ctx context.Context, msg sentinel.IncomingMessage) {
	a.logger.Info("sentinel: message received", "user", msg.UserID, "chat", msg.ChatID)

	if msg.Text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	_ = a.frontend.SendTyping(ctx, msg.ChatID)

	threadID := a.sessions.Resolve(msg.UserID)

	task := sentinel.AgentTask{
		Input: msg.Text,
		Context: map[string]any{
			sentinel.ContextThreadID: threadID,
			sentinel.ContextUserID:   msg.UserID,
			sentinel.ContextChatID:   msg.ChatID,
		},
	}

	result, err := a.agent.Execute(ctx, task)
	if err != nil {
		a.logger.Error("sentinel: agent error", "user", msg.UserID, "thread", threadID, "error", err)
		if _, sendErr := a.frontend.Send(ctx, msg.ChatID, "Something went wrong, please try again."); sendErr != nil {
			a.logger.Error("sentinel: send error reply failed", "error", sendErr)
		}
		return
	}

	if result.Output == "" {
		return
	}
	if _, err := a.frontend.Send(ctx, msg.ChatID, result.Output); err != nil {
		a.logger.Error("sentinel: send failed", "chat", msg.ChatID, "error", err)
	}
}
