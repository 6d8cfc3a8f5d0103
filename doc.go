// Package sentinel implements the agent runtime behind the Drexel Sentinel
// campus assistant: a supervisor that routes user messages to specialist
// agents (course documents, calendar, web research), a bounded tool-calling
// loop, and per-thread conversation memory.
//
// The building blocks are small and composable:
//
//   - Provider / EmbeddingProvider abstract the hosted LLM (provider/gemini).
//   - VectorStore abstracts persistence (store/sqlite, store/postgres).
//   - Tool exposes callable functions to the LLM (tools/calendar,
//     tools/syllabus, tools/websearch).
//   - LLMAgent runs one model with a prompt, tools, and optional memory.
//   - Network is an Agent whose router LLM sees subagents as agent_* tools.
//
// Conversation identity is explicit: every AgentTask carries a thread id in
// its Context, derived from the user id and a half-hour time bucket (see
// ThreadKey and Sessions). When a Network delegates, the specialist runs
// under a sub-thread id derived from the parent's, so each specialist keeps
// its own isolated history.
package sentinel
