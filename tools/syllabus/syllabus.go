// Package syllabus exposes semantic search over ingested course documents
// as the search_syllabi agent tool.
package syllabus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

// defaultTopK is the number of chunks returned per query.
const defaultTopK = 3

// Tool implements search_syllabi over a vector store.
type Tool struct {
	store     sentinel.VectorStore
	embedding sentinel.EmbeddingProvider
	topK      int
	logger    *slog.Logger
}

// Option configures a syllabus Tool.
type Option func(*Tool)

// WithTopK overrides the number of chunks returned per query.
func WithTopK(k int) Option {
	return func(t *Tool) {
		if k > 0 {
			t.topK = k
		}
	}
}

// WithLogger sets a structured logger for the tool.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates a syllabus search tool.
func New(store sentinel.VectorStore, embedding sentinel.EmbeddingProvider, opts ...Option) *Tool {
	t := &Tool{
		store:     store,
		embedding: embedding,
		topK:      defaultTopK,
		logger:    slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func (t *Tool) Definitions() []sentinel.ToolDefinition {
	return []sentinel.ToolDefinition{{
		Name:        "search_syllabi",
		Description: "Search course syllabuses for academic policies, grading, and office hours.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"What to look up in the course documents"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (sentinel.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return sentinel.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Query) == "" {
		return sentinel.ToolResult{Error: "query is required"}, nil
	}

	content, err := t.Search(ctx, params.Query)
	if err != nil {
		return sentinel.ToolResult{Error: err.Error()}, nil
	}
	return sentinel.ToolResult{Content: content}, nil
}

// Search embeds the query, retrieves the closest chunks, and joins their
// content with blank lines.
func (t *Tool) Search(ctx context.Context, query string) (string, error) {
	vecs, err := t.embedding.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return "", fmt.Errorf("embed query: empty result")
	}

	chunks, err := t.store.SearchChunks(ctx, vecs[0], t.topK)
	if err != nil {
		return "", fmt.Errorf("search chunks: %w", err)
	}
	t.logger.Debug("syllabus: search", "query", query, "results", len(chunks))

	if len(chunks) == 0 {
		return "No matching syllabus content found.", nil
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n"), nil
}
