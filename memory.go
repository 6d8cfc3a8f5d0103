package sentinel

import (
	"context"
	"log/slog"
)

// defaultMaxHistory is the number of recent messages loaded from a thread
// when MaxHistory is not passed to WithConversationMemory.
const defaultMaxHistory = 20

// agentMemory provides shared conversation-memory wiring for LLMAgent and
// Network. All fields are optional — a nil store disables the feature.
type agentMemory struct {
	store      VectorStore
	embedding  EmbeddingProvider // embeds messages before storing; optional
	maxHistory int               // 0 = defaultMaxHistory
	logger     *slog.Logger      // never nil after agent construction
}

// buildMessages constructs the message list: system prompt + conversation
// history + user input. History is scoped to the task's thread id, so a
// specialist running under a sub-thread id never sees the supervisor's or a
// sibling's messages.
func (m *agentMemory) buildMessages(ctx context.Context, agentName, systemPrompt string, task AgentTask) []ChatMessage {
	var messages []ChatMessage

	if systemPrompt != "" {
		messages = append(messages, SystemMessage(systemPrompt))
	}

	threadID := task.TaskThreadID()
	if m.store != nil && threadID != "" {
		limit := m.maxHistory
		if limit <= 0 {
			limit = defaultMaxHistory
		}
		history, err := m.store.GetMessages(ctx, threadID, limit)
		if err != nil {
			m.logger.Warn("load history failed", "agent", agentName, "thread", threadID, "err", err)
		}
		for _, msg := range history {
			messages = append(messages, ChatMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	messages = append(messages, UserMessage(task.Input))
	return messages
}

// persistMessages stores the user and assistant messages in the background.
// No-op if the store is not configured or thread_id is absent.
func (m *agentMemory) persistMessages(ctx context.Context, agentName string, task AgentTask, userText, assistantText string) {
	threadID := task.TaskThreadID()
	if m.store == nil || threadID == "" {
		return
	}

	go func() {
		// Detach from parent cancellation so the write can finish even after
		// the handler returns. Inherits context values (trace IDs).
		bgCtx := context.WithoutCancel(ctx)

		userMsg := Message{
			ID: NewID(), ThreadID: threadID,
			Role: "user", Content: userText, CreatedAt: NowUnix(),
		}

		// Embed before storing so we only write once.
		if m.embedding != nil {
			embs, err := m.embedding.Embed(bgCtx, []string{userText})
			if err == nil && len(embs) > 0 {
				userMsg.Embedding = embs[0]
			}
		}

		if err := m.store.StoreMessage(bgCtx, userMsg); err != nil {
			m.logger.Warn("persist user msg failed", "agent", agentName, "thread", threadID, "err", err)
		}

		asstMsg := Message{
			ID: NewID(), ThreadID: threadID,
			Role: "assistant", Content: assistantText, CreatedAt: NowUnix(),
		}
		if err := m.store.StoreMessage(bgCtx, asstMsg); err != nil {
			m.logger.Warn("persist assistant msg failed", "agent", agentName, "thread", threadID, "err", err)
		}
	}()
}
